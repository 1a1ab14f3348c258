package alerts

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/repairstack/server/internal/config"
	"github.com/obsidianstack/repairstack/server/internal/store"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
	defaultScenario   = "default"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Scenario   string     `json:"scenario"`
	RecordID   string     `json:"record_id"`
	Severity   string     `json:"severity"`
	Condition  string     `json:"condition"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"

	// Record summarises the record that last changed the alert's state.
	Record Summary `json:"record"`
}

// Summary is the part of an evaluation record a notification reports.
type Summary struct {
	Kind         string   `json:"kind"`
	Availability *float64 `json:"availability,omitempty"`
	Feasible     *bool    `json:"feasible,omitempty"`
	BestN        int      `json:"best_n,omitempty"`
	BestK        int      `json:"best_k,omitempty"`
	MinCost      *float64 `json:"min_cost,omitempty"`
}

func summarize(rec *store.Record) Summary {
	s := Summary{Kind: rec.Kind}
	if ev := rec.Evaluation; ev != nil {
		a := ev.Availability
		s.Availability = &a
	}
	if sr := rec.Search; sr != nil {
		feasible := sr.Result.Feasible()
		s.Feasible = &feasible
		if b := sr.Result.Best; b != nil {
			cost := b.Cost
			s.BestN, s.BestK, s.MinCost = b.Components, b.RepairCrew, &cost
			if s.Availability == nil {
				a := b.Availability
				s.Availability = &a
			}
		}
	}
	return s
}

type rule struct {
	config.AlertRule
	cond condition
}

// Engine evaluates alert rules against evaluation records and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	rules    []rule
	webhooks []config.WebhookConfig
	active   map[string]*Alert    // key: "ruleName:scenario"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts

	client *http.Client
	now    func() time.Time // injectable for deterministic tests
}

// New creates an Engine from the server alert configuration.
// An Engine with empty rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) (*Engine, error) {
	e := &Engine{
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	if err := e.SetRules(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate parses every rule condition and reports all invalid ones.
func Validate(rules []config.AlertRule) error {
	_, err := compile(rules)
	return err
}

func compile(rules []config.AlertRule) ([]rule, error) {
	out := make([]rule, 0, len(rules))
	var errs []error
	for _, r := range rules {
		c, err := parseCondition(r.Condition)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", r.Name, err))
			continue
		}
		out = append(out, rule{AlertRule: r, cond: c})
	}
	return out, errors.Join(errs...)
}

// SetRules replaces the rules and webhooks. On error the previous
// configuration stays in place. Alerts of rules that no longer exist are
// resolved without notification.
func (e *Engine) SetRules(cfg config.AlertsConfig) error {
	rules, err := compile(cfg.Rules)
	if err != nil {
		return fmt.Errorf("alerts: %w", err)
	}

	names := make(map[string]bool, len(rules))
	for _, r := range rules {
		names[r.Name] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
	e.webhooks = cfg.Webhooks

	now := e.now()
	for key, a := range e.active {
		if names[a.RuleName] {
			continue
		}
		resolved := now
		a.State = "resolved"
		a.ResolvedAt = &resolved
		delete(e.active, key)
		e.appendHistory(a)
	}
	return nil
}

// Evaluate tests all configured rules against rec.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
// Rules whose field rec does not carry are skipped.
func (e *Engine) Evaluate(rec *store.Record) {
	e.mu.Lock()
	rules := e.rules
	e.mu.Unlock()
	if len(rules) == 0 {
		return
	}

	scenario := rec.Scenario
	if scenario == "" {
		scenario = defaultScenario
	}

	for _, r := range rules {
		fires, value, ok := r.cond.eval(rec)
		if !ok {
			continue
		}
		key := r.Name + ":" + scenario

		e.mu.Lock()
		now := e.now()

		if fires {
			cooldown := r.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if now.Sub(e.lastFire[key]) > cooldown {
				sev := r.Severity
				if sev == "" {
					sev = "warning"
				}
				a := &Alert{
					ID:        uuid.NewString(),
					RuleName:  r.Name,
					Scenario:  scenario,
					RecordID:  rec.ID,
					Severity:  sev,
					Condition: r.Condition,
					Value:     value,
					Message: fmt.Sprintf("[%s] %s fired on %s: %s (value %.4g)",
						sev, r.Name, scenario, r.Condition, value),
					FiredAt: now,
					State:   "firing",
					Record:  summarize(rec),
				}
				e.active[key] = a
				e.lastFire[key] = now
				alertCopy := *a
				e.mu.Unlock()

				slog.Warn("alerts: fired",
					"rule", r.Name,
					"scenario", scenario,
					"value", value,
					"severity", sev,
				)
				go e.deliver(&alertCopy)
			} else {
				e.mu.Unlock()
			}
		} else {
			if a, ok := e.active[key]; ok && a.State == "firing" {
				resolved := now
				a.State = "resolved"
				a.ResolvedAt = &resolved
				a.Value = value
				a.Record = summarize(rec)
				delete(e.active, key)
				e.appendHistory(a)
				alertCopy := *a
				e.mu.Unlock()

				slog.Info("alerts: resolved",
					"rule", r.Name,
					"scenario", scenario,
				)
				go e.deliver(&alertCopy)
			} else {
				e.mu.Unlock()
			}
		}
	}
}

// appendHistory must be called with e.mu held.
func (e *Engine) appendHistory(a *Alert) {
	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return latest(out[i]).After(latest(out[j]))
	})
	return out
}

// Firing returns the number of currently firing alerts.
func (e *Engine) Firing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

func latest(a *Alert) time.Time {
	if a.ResolvedAt != nil {
		return *a.ResolvedAt
	}
	return a.FiredAt
}
