package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/opensource-finance/halalscan/internal/domain"
)

// SharedRulesKey is the shared cache key holding the active rule snapshot.
const SharedRulesKey = "rules:active"

// DefaultCacheTTL applies when a cache is built with a non-positive TTL.
const DefaultCacheTTL = 5 * time.Minute

var tracer = otel.Tracer("halalscan-rules")

// RuleCache holds the active rule set in memory and refreshes it from the
// store. Concurrent misses share one in-flight load.
type RuleCache struct {
	store  domain.RuleStore
	shared domain.Cache
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu         sync.RWMutex
	snapshot   []domain.RulingRule
	loadedAt   time.Time
	loaded     bool
	generation uint64

	group singleflight.Group
}

// NewRuleCache creates a rule cache. shared may be nil.
func NewRuleCache(store domain.RuleStore, shared domain.Cache, ttl time.Duration, logger *slog.Logger) *RuleCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleCache{
		store:  store,
		shared: shared,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the active rules, loading them when the snapshot is missing
// or older than the TTL.
func (c *RuleCache) Get(ctx context.Context) ([]domain.RulingRule, error) {
	c.mu.RLock()
	if c.loaded && c.now().Sub(c.loadedAt) < c.ttl {
		rules := c.snapshot
		c.mu.RUnlock()
		return rules, nil
	}
	gen := c.generation
	c.mu.RUnlock()

	// Callers of one generation share a load; a reset starts a new key.
	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		return c.load(context.WithoutCancel(ctx), gen)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.RulingRule), nil
}

// Invalidate drops the snapshot so the next Get reloads. Loads that started
// before the call cannot repopulate the cache. The shared snapshot is
// deleted as well; its error is returned after the local reset is done.
func (c *RuleCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	c.snapshot = nil
	c.loaded = false
	c.generation++
	c.mu.Unlock()

	if c.shared == nil {
		return nil
	}
	if err := c.shared.Delete(ctx, SharedRulesKey); err != nil {
		return fmt.Errorf("failed to delete shared rule snapshot: %w", err)
	}
	return nil
}

// Generation returns the number of resets so far.
func (c *RuleCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

func (c *RuleCache) load(ctx context.Context, gen uint64) ([]domain.RulingRule, error) {
	// A caller that missed may arrive after the previous load finished.
	c.mu.RLock()
	if c.loaded && c.generation == gen && c.now().Sub(c.loadedAt) < c.ttl {
		rules := c.snapshot
		c.mu.RUnlock()
		return rules, nil
	}
	c.mu.RUnlock()

	ctx, span := tracer.Start(ctx, "rules.load",
		trace.WithAttributes(attribute.Int64("rules.generation", int64(gen))),
	)
	defer span.End()

	rules, fromShared := c.readShared(ctx)
	if !fromShared {
		stored, err := c.store.ListActiveRules(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "store read failed")
			return nil, fmt.Errorf("failed to list active rules: %w", err)
		}
		rules = stored
	}

	valid, issues := domain.ValidateRuleSet(rules)
	for _, issue := range issues {
		c.logger.Warn("dropping invalid rule",
			"rule_id", issue.RuleID,
			"pattern", issue.Pattern,
			"error", issue.Err,
		)
	}
	span.SetAttributes(
		attribute.Bool("rules.shared_hit", fromShared),
		attribute.Int("rules.count", len(valid)),
		attribute.Int("rules.rejected", len(issues)),
	)

	c.mu.Lock()
	current := c.generation == gen
	if current {
		c.snapshot = valid
		c.loadedAt = c.now()
		c.loaded = true
	}
	c.mu.Unlock()

	if current && !fromShared {
		c.writeShared(ctx, valid)
	}

	c.logger.Debug("rule snapshot loaded",
		"rules", len(valid),
		"rejected", len(issues),
		"shared_hit", fromShared,
		"stale", !current,
	)
	return valid, nil
}

func (c *RuleCache) readShared(ctx context.Context) ([]domain.RulingRule, bool) {
	if c.shared == nil {
		return nil, false
	}
	data, err := c.shared.Get(ctx, SharedRulesKey)
	if err != nil {
		c.logger.Warn("shared rule cache read failed", "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	var rules []domain.RulingRule
	if err := json.Unmarshal(data, &rules); err != nil {
		c.logger.Warn("discarding malformed shared rule snapshot", "error", err)
		return nil, false
	}
	return rules, true
}

func (c *RuleCache) writeShared(ctx context.Context, rules []domain.RulingRule) {
	if c.shared == nil {
		return
	}
	data, err := json.Marshal(rules)
	if err != nil {
		c.logger.Warn("failed to encode rule snapshot", "error", err)
		return
	}
	if err := c.shared.Set(ctx, SharedRulesKey, data, c.ttl); err != nil {
		c.logger.Warn("shared rule cache write failed", "error", err)
	}
}
