package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/halalscan/internal/domain"
	"github.com/opensource-finance/halalscan/internal/match"
	"github.com/opensource-finance/halalscan/internal/normalize"
	"github.com/opensource-finance/halalscan/internal/repository"
	"github.com/opensource-finance/halalscan/internal/rules"
	"github.com/opensource-finance/halalscan/internal/verdict"
	"github.com/opensource-finance/halalscan/internal/worker"
)

const (
	// MaxBatchSize caps the ingredients accepted by POST /resolve/batch.
	MaxBatchSize = 500

	maxBodyBytes = 1 << 20
)

// Handler holds dependencies for API handlers.
type Handler struct {
	store     domain.RuleStore
	cache     domain.Cache
	bus       domain.EventBus
	ruleCache *rules.RuleCache
	resolver  *rules.Resolver
	policy    *verdict.Policy
	version   string
}

// NewHandler creates a new API handler. cache and bus may be nil.
func NewHandler(store domain.RuleStore, cache domain.Cache, bus domain.EventBus, ruleCache *rules.RuleCache, resolver *rules.Resolver, policy *verdict.Policy, version string) *Handler {
	return &Handler{
		store:     store,
		cache:     cache,
		bus:       bus,
		ruleCache: ruleCache,
		resolver:  resolver,
		policy:    policy,
		version:   version,
	}
}

// ResolveRequest is the request body for POST /resolve.
type ResolveRequest struct {
	Text   string `json:"text"`
	Madhab string `json:"madhab,omitempty"`
}

// BatchRequest is the request body for POST /resolve/batch.
type BatchRequest struct {
	Ingredients []string `json:"ingredients"`
	Madhab      string   `json:"madhab,omitempty"`
}

// BatchResponse is the response for POST /resolve/batch.
type BatchResponse struct {
	Verdicts []domain.Verdict `json:"verdicts"`
	TraceID  string           `json:"traceId,omitempty"`
}

// Resolve handles POST /resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	madhab, err := domain.ParseMadhab(req.Madhab)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	res, err := h.resolver.ResolveText(ctx, req.Text, madhab)
	if err != nil {
		slog.Error("resolve failed", "error", err, "trace_id", GetTraceID(ctx))
		writeError(w, http.StatusServiceUnavailable, "rules unavailable")
		return
	}

	writeJSON(w, http.StatusOK, h.verdict(ctx, req.Text, madhab, res))
}

// ResolveBatch handles POST /resolve/batch. Verdicts keep input order.
func (h *Handler) ResolveBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.Ingredients) > MaxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d ingredients per batch", MaxBatchSize))
		return
	}
	madhab, err := domain.ParseMadhab(req.Madhab)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	results, err := h.resolver.ResolveTextBatch(ctx, req.Ingredients, madhab)
	if err != nil {
		slog.Error("batch resolve failed", "error", err, "trace_id", GetTraceID(ctx))
		writeError(w, http.StatusServiceUnavailable, "rules unavailable")
		return
	}

	resp := BatchResponse{
		Verdicts: make([]domain.Verdict, len(req.Ingredients)),
		TraceID:  GetTraceID(ctx),
	}
	for i, text := range req.Ingredients {
		resp.Verdicts[i] = h.verdict(ctx, text, madhab, results[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) verdict(ctx context.Context, text string, madhab domain.Madhab, res rules.Resolution) domain.Verdict {
	v, err := h.policy.Verdict(text, res.Normalized, madhab, res.Matches)
	if err != nil {
		slog.Warn("verdict policy fell back to doubtful",
			"error", err,
			"expression", h.policy.Expression(),
			"trace_id", GetTraceID(ctx),
		)
	}
	return v
}

// Normalize handles POST /normalize.
func (h *Handler) Normalize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"normalized":         h.resolver.Normalizer().Normalize(req.Text),
		"needsNormalization": normalize.NeedsNormalization(req.Text),
	})
}

// MatchRequest is the request body for POST /match.
type MatchRequest struct {
	Text      string           `json:"text"`
	Pattern   string           `json:"pattern"`
	MatchType domain.MatchType `json:"matchType"`
}

// Match handles POST /match, testing one pattern without touching the store.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if !req.MatchType.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown matchType %q", req.MatchType))
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{
		"matched": match.TestPattern(req.Text, req.Pattern, req.MatchType),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether every backend answers.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := make(map[string]string)
	ready := true

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			return
		}
		checks[name] = "ok"
	}
	if h.store != nil {
		check("store", h.store.Ping)
	}
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.bus != nil {
		check("bus", h.bus.Ping)
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ready":  ready,
		"checks": checks,
	})
}

// ListRules returns stored rules. ?active=true limits the list to active rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ctx := r.Context()

	var list []domain.RulingRule
	if r.URL.Query().Get("active") == "true" {
		active, err := h.store.ListActiveRules(ctx)
		if err != nil {
			slog.Error("failed to list active rules", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list rules")
			return
		}
		list = active
	} else {
		all, err := h.store.ListRules(ctx)
		if err != nil {
			slog.Error("failed to list rules", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list rules")
			return
		}
		list = make([]domain.RulingRule, len(all))
		for i, rule := range all {
			list[i] = *rule
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": list,
		"count": len(list),
	})
}

// GetRule retrieves a rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ruleID := chi.URLParam(r, "id")

	rule, err := h.store.GetRule(r.Context(), ruleID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}
	if err != nil {
		slog.Error("failed to get rule", "id", ruleID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get rule")
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// RuleRequest is the body for creating or replacing a rule. A missing
// isActive means active on create and unchanged on update.
type RuleRequest struct {
	domain.RulingRule
	IsActive *bool `json:"isActive,omitempty"`
}

// CreateRule stores a new rule. An ID is generated when none is given.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	var req RuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rule := req.RulingRule
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.IsActive = req.IsActive == nil || *req.IsActive

	if !h.saveRule(r.Context(), w, &rule) {
		return
	}
	h.rulesChanged(r.Context(), rule.ID, domain.RuleActionCreate)

	slog.Info("rule created", "id", rule.ID, "pattern", rule.CompoundPattern)
	writeJSON(w, http.StatusCreated, h.storedRule(r.Context(), &rule))
}

// UpdateRule replaces an existing rule.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	existing, err := h.store.GetRule(ctx, ruleID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}
	if err != nil {
		slog.Error("failed to get rule", "id", ruleID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get rule")
		return
	}

	var req RuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rule := req.RulingRule
	rule.ID = ruleID
	rule.IsActive = existing.IsActive
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if !h.saveRule(ctx, w, &rule) {
		return
	}
	h.rulesChanged(ctx, rule.ID, domain.RuleActionUpdate)

	slog.Info("rule updated", "id", rule.ID)
	writeJSON(w, http.StatusOK, h.storedRule(ctx, &rule))
}

// DeactivateRule handles DELETE /rules/{id}. Rules are never removed.
func (h *Handler) DeactivateRule(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	err := h.store.SetRuleActive(ctx, ruleID, false)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}
	if err != nil {
		slog.Error("failed to deactivate rule", "id", ruleID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to deactivate rule")
		return
	}
	h.rulesChanged(ctx, ruleID, domain.RuleActionDeactivate)

	slog.Info("rule deactivated", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{
		"id":      ruleID,
		"message": "rule deactivated",
	})
}

// ReloadRules drops the cached snapshot everywhere and loads a fresh one.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.rulesChanged(ctx, "", domain.RuleActionReload)

	active, err := h.ruleCache.Get(ctx)
	if err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to reload rules")
		return
	}

	slog.Info("rules reloaded", "rules_count", len(active))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "rules reloaded successfully",
		"count":      len(active),
		"generation": h.ruleCache.Generation(),
	})
}

// saveRule validates rule against itself and the active set, then stores
// it. It writes the error response and returns false on failure.
func (h *Handler) saveRule(ctx context.Context, w http.ResponseWriter, rule *domain.RulingRule) bool {
	if err := rule.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}

	if rule.IsActive {
		issue, err := h.overrideIssue(ctx, rule)
		if err != nil {
			slog.Error("failed to check override cycles", "id", rule.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save rule")
			return false
		}
		if issue != nil {
			writeError(w, http.StatusBadRequest, issue.Error())
			return false
		}
	}

	err := h.store.SaveRule(ctx, rule)
	if errors.Is(err, repository.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err != nil {
		slog.Error("failed to save rule", "id", rule.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return false
	}
	return true
}

// overrideIssue reports whether rule would close an override cycle with the
// rules currently active.
func (h *Handler) overrideIssue(ctx context.Context, rule *domain.RulingRule) (*domain.RuleIssue, error) {
	active, err := h.store.ListActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	candidate := make([]domain.RulingRule, 0, len(active)+1)
	for _, existing := range active {
		if existing.ID != rule.ID {
			candidate = append(candidate, existing)
		}
	}
	candidate = append(candidate, *rule)

	_, issues := domain.ValidateRuleSet(candidate)
	for i := range issues {
		if issues[i].RuleID == rule.ID {
			return &issues[i], nil
		}
	}
	return nil, nil
}

// rulesChanged resets the local snapshot and tells the other nodes.
func (h *Handler) rulesChanged(ctx context.Context, ruleID, action string) {
	if err := h.ruleCache.Invalidate(ctx); err != nil {
		slog.Warn("failed to invalidate shared rule cache", "error", err, "action", action)
	}
	if h.bus == nil {
		return
	}
	event := domain.RulesChangedEvent{RuleID: ruleID, Action: action}
	if err := worker.PublishRulesChanged(ctx, h.bus, event); err != nil {
		slog.Warn("failed to publish rule change", "error", err, "rule_id", ruleID, "action", action)
	}
}

// storedRule re-reads rule so the response carries store timestamps.
func (h *Handler) storedRule(ctx context.Context, rule *domain.RulingRule) *domain.RulingRule {
	stored, err := h.store.GetRule(ctx, rule.ID)
	if err != nil {
		return rule
	}
	return stored
}

func (h *Handler) requireStore(w http.ResponseWriter) bool {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
