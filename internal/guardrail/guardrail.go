// Package guardrail tracks external-service usage against rolling daily
// budgets and gates every outbound call. Once any ceiling would be exceeded
// the guardrail flips into fallback mode and the stage engine substitutes
// deterministic heuristic content instead of calling out.
package guardrail

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/config"
)

// Notification is a non-blocking warning emitted when usage crosses the
// configured fraction of a ceiling.
type Notification struct {
	Service  string
	Metric   string
	Fraction float64
}

// ServiceUsage is a read-only snapshot of one service's counters.
type ServiceUsage struct {
	Calls  int
	Tokens int
}

// Snapshot is a read-only view of the guardrail state for reporting.
type Snapshot struct {
	Services     map[string]ServiceUsage
	TotalCostUSD float64
	LastReset    time.Time
	Fallback     bool
}

type serviceState struct {
	calls  int
	tokens int
}

// Guardrail enforces per-service daily ceilings. Safe for concurrent use.
type Guardrail struct {
	mu            sync.Mutex
	cfg           config.GuardrailConfig
	usage         map[string]*serviceState
	totalCost     float64
	lastReset     time.Time
	fallback      bool
	warned        map[string]bool
	notifications chan Notification
	now           func() time.Time
	logger        *zap.Logger
}

// New creates a Guardrail with fresh counters.
func New(cfg config.GuardrailConfig, logger *zap.Logger) *Guardrail {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResetInterval <= 0 {
		cfg.ResetInterval = 24 * time.Hour
	}
	g := &Guardrail{
		cfg:           cfg,
		usage:         make(map[string]*serviceState),
		warned:        make(map[string]bool),
		notifications: make(chan Notification, 16),
		now:           time.Now,
		logger:        logger.Named("guardrail"),
	}
	g.lastReset = g.now()
	return g
}

// SetClock replaces the time source, for tests.
func (g *Guardrail) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
	g.lastReset = now()
}

// Notifications exposes the warning channel. Sends are non-blocking; unread
// warnings are dropped.
func (g *Guardrail) Notifications() <-chan Notification {
	return g.notifications
}

// CanMakeCall reports whether a call with the estimated token usage is
// admitted. Must be called (and return true) before every external call.
// Returning false also flips fallback mode.
func (g *Guardrail) CanMakeCall(service string, estimatedTokens int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeResetLocked()

	budget, ok := g.cfg.Services[service]
	if !ok {
		// Unbudgeted services are never admitted; a typo'd service name
		// should fail closed, not spend freely.
		g.logger.Warn("Admission check for unbudgeted service", zap.String("service", service))
		return false
	}

	state := g.stateLocked(service)
	estCost := g.totalCost + cost(budget, estimatedTokens)

	// A ceiling of zero is a real ceiling: it denies the first call. Only
	// negative values disable a metric.
	switch {
	case budget.DailyCalls >= 0 && state.calls+1 > budget.DailyCalls:
		g.denyLocked(service, "calls")
		return false
	case budget.DailyTokens >= 0 && state.tokens+estimatedTokens > budget.DailyTokens:
		g.denyLocked(service, "tokens")
		return false
	case budget.DailyCostUSD >= 0 && estCost > budget.DailyCostUSD:
		g.denyLocked(service, "cost")
		return false
	}
	return true
}

// RecordUsage updates counters and the shared monetary accumulator after a
// successful external call. Atomic under concurrent callers.
func (g *Guardrail) RecordUsage(service string, tokensConsumed int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeResetLocked()

	budget := g.cfg.Services[service]
	state := g.stateLocked(service)
	state.calls++
	state.tokens += tokensConsumed
	g.totalCost += cost(budget, tokensConsumed)

	g.checkWarningsLocked(service, budget, state)
}

// InFallbackMode reports whether a ceiling has been hit since the last reset.
func (g *Guardrail) InFallbackMode() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeResetLocked()
	return g.fallback
}

// Reset clears all counters and fallback mode immediately.
func (g *Guardrail) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
}

// Usage returns a snapshot for reporting.
func (g *Guardrail) Usage() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := Snapshot{
		Services:     make(map[string]ServiceUsage, len(g.usage)),
		TotalCostUSD: g.totalCost,
		LastReset:    g.lastReset,
		Fallback:     g.fallback,
	}
	for name, state := range g.usage {
		snap.Services[name] = ServiceUsage{Calls: state.calls, Tokens: state.tokens}
	}
	return snap
}

// -- internals (mutex held) --

func (g *Guardrail) stateLocked(service string) *serviceState {
	state, ok := g.usage[service]
	if !ok {
		state = &serviceState{}
		g.usage[service] = state
	}
	return state
}

func (g *Guardrail) maybeResetLocked() {
	if g.now().Sub(g.lastReset) >= g.cfg.ResetInterval {
		g.resetLocked()
	}
}

func (g *Guardrail) resetLocked() {
	g.usage = make(map[string]*serviceState)
	g.warned = make(map[string]bool)
	g.totalCost = 0
	g.fallback = false
	g.lastReset = g.now()
	g.logger.Info("Guardrail counters reset")
}

func (g *Guardrail) denyLocked(service, metric string) {
	g.fallback = true
	g.logger.Warn("Call denied, entering fallback mode",
		zap.String("service", service),
		zap.String("metric", metric))
}

func (g *Guardrail) checkWarningsLocked(service string, budget config.ServiceBudget, state *serviceState) {
	threshold := g.cfg.WarningThreshold
	if threshold <= 0 {
		threshold = 0.8
	}
	check := func(metric string, used, ceiling float64) {
		if ceiling <= 0 {
			return
		}
		fraction := used / ceiling
		key := service + ":" + metric
		if fraction >= threshold && !g.warned[key] {
			g.warned[key] = true
			g.logger.Warn("Usage approaching daily ceiling",
				zap.String("service", service),
				zap.String("metric", metric),
				zap.Float64("fraction", fraction))
			select {
			case g.notifications <- Notification{Service: service, Metric: metric, Fraction: fraction}:
			default:
			}
		}
	}
	check("calls", float64(state.calls), float64(budget.DailyCalls))
	check("tokens", float64(state.tokens), float64(budget.DailyTokens))
	check("cost", g.totalCost, budget.DailyCostUSD)
}

func cost(budget config.ServiceBudget, tokens int) float64 {
	return budget.CostPerCall + budget.CostPer1KTokens*float64(tokens)/1000
}
