// Package worker keeps the in-process rule cache consistent with rule
// writes made on any node.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/opensource-finance/halalscan/internal/domain"
)

// Invalidator drops cached rules. Implemented by rules.RuleCache.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Worker resets the rule cache whenever a rule-change event arrives.
type Worker struct {
	bus   domain.EventBus
	cache Invalidator

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// NewWorker creates a new invalidation worker.
func NewWorker(bus domain.EventBus, cache Invalidator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		cache:  cache,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to rule-change events.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicRulesChanged, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicRulesChanged, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("rule invalidation worker started",
		"topic", domain.TopicRulesChanged,
	)
	return nil
}

// handleMessage resets the cache. A malformed payload still invalidates,
// since something changed the rule table.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var event domain.RulesChangedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Warn("malformed rule change event",
			"message_id", msg.ID,
			"error", err,
		)
	}

	if err := w.cache.Invalidate(ctx); err != nil {
		w.failed.Add(1)
		return fmt.Errorf("failed to invalidate rule cache: %w", err)
	}
	w.processed.Add(1)

	slog.Debug("rule cache invalidated",
		"message_id", msg.ID,
		"source", msg.Source,
		"rule_id", event.RuleID,
		"action", event.Action,
	)
	return nil
}

// Stop unsubscribes and cancels in-flight handlers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("rule invalidation worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}

// PublishRulesChanged announces a rule write to every node.
func PublishRulesChanged(ctx context.Context, bus domain.EventBus, event domain.RulesChangedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal rule change event: %w", err)
	}
	return bus.Publish(ctx, domain.TopicRulesChanged, payload)
}
