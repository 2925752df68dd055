// Package reconcile runs the per-page flow: route the page to an adapter,
// decide whether its language settings need a change, ask the user and
// apply the answer.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MeKo-Tech/lahidna/internal/consent"
	"github.com/MeKo-Tech/lahidna/internal/features"
	"github.com/MeKo-Tech/lahidna/internal/page"
	"github.com/MeKo-Tech/lahidna/internal/relay"
	"github.com/MeKo-Tech/lahidna/internal/router"
	"github.com/MeKo-Tech/lahidna/internal/sites"
	"github.com/MeKo-Tech/lahidna/internal/storage"
)

// Outcome is how one flow ended.
type Outcome string

const (
	OutcomeNoAdapter Outcome = "no_adapter"
	OutcomeDisabled  Outcome = "disabled"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeApplied   Outcome = "applied"
	OutcomeFailed    Outcome = "failed"
	OutcomeDeclined  Outcome = "declined"
	OutcomeCancelled Outcome = "cancelled"
)

var (
	flowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lahidna_reconcile_flows_total",
			Help: "Reconciliation flows by adapter and outcome",
		},
		[]string{"adapter", "outcome"},
	)

	adapterErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lahidna_adapter_errors_total",
			Help: "Adapter failures by adapter and kind",
		},
		[]string{"adapter", "kind"}, // kind: parse, network, panic, other
	)
)

// Prompter asks the user to confirm a change.
type Prompter interface {
	Show(doc *page.Document, cta string, cfg any) *consent.Decision
}

// Orchestrator runs one flow per page load.
type Orchestrator struct {
	// Route resolves a hostname. Defaults to router.Route.
	Route func(hostname string) (sites.Constructor, bool)
	// Prompter defaults to a fresh consent.Controller.
	Prompter Prompter
	// OnPrompt, when set, runs right after the prompt is shown.
	OnPrompt func(adapter, cta string)
}

// New returns an Orchestrator using the default router and p.
func New(p Prompter) *Orchestrator {
	return &Orchestrator{Route: router.Route, Prompter: p}
}

// Run drives the flow for env.Doc. Skips and user decisions are outcomes,
// not errors; the returned error is set only for OutcomeFailed.
func (o *Orchestrator) Run(ctx context.Context, env *sites.Env) (out Outcome, err error) {
	route := o.Route
	if route == nil {
		route = router.Route
	}
	newAdapter, ok := route(env.Doc.Hostname())
	if !ok {
		flowsTotal.WithLabelValues("", string(OutcomeNoAdapter)).Inc()
		return OutcomeNoAdapter, nil
	}

	name := "unknown"
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", name, r)
			adapterErrors.WithLabelValues(name, "panic").Inc()
			env.Telemetry().ReportError(fmt.Sprintf("Error in %s content flow", name), err, nil)
			env.Log().Error("Adapter panicked", "adapter", name, "panic", r)
			out = OutcomeFailed
		}
		flowsTotal.WithLabelValues(name, string(out)).Inc()
	}()

	adapter := newAdapter(env)
	name = adapter.Name()
	log := env.Log().With("adapter", name)

	if (env.Flags != nil && !env.Flags.Enabled(features.Content)) || !adapter.IsApplicableEnabled() {
		log.Debug("Adapter disabled")
		return OutcomeDisabled, nil
	}

	cfg, err := adapter.NeedToTweak(ctx)
	if err != nil {
		if sites.IsSkip(err) {
			log.Debug("Nothing to do", "reason", err)
			return OutcomeSkipped, nil
		}
		o.fail(env, name, err)
		return OutcomeFailed, err
	}

	o.markPrompted(ctx, env, log)
	cta := adapter.CallToAction(cfg)
	decision := o.prompter().Show(env.Doc, cta, cfg)
	if o.OnPrompt != nil {
		o.OnPrompt(name, cta)
	}

	answer, err := decision.Wait(ctx)
	switch {
	case errors.Is(err, consent.ErrDeclined):
		log.Info("User declined", "error", err)
		return OutcomeDeclined, nil
	case err != nil:
		log.Debug("Prompt cancelled", "error", err)
		return OutcomeCancelled, nil
	}

	applyErr := adapter.Apply(ctx, answer)
	if dropErr := adapter.DropCache(ctx); dropErr != nil {
		log.Warn("Failed to drop adapter cache", "error", dropErr)
	}
	if applyErr != nil {
		o.fail(env, name, applyErr)
		return OutcomeFailed, applyErr
	}
	log.Info("Applied language settings")

	if env.Relay != nil {
		ach := relay.Achievements{Client: env.Relay}
		if err := ach.Expect(ctx, name, sites.AchievementLanguageChoice); err != nil {
			log.Warn("Failed to record expected achievement", "error", err)
		}
	}
	if err := adapter.PostApplyAction(ctx); err != nil {
		log.Warn("Post-apply action failed", "error", err)
		env.Telemetry().ReportError(fmt.Sprintf("Error in %s content flow", name), err, nil)
	}
	return OutcomeApplied, nil
}

func (o *Orchestrator) prompter() Prompter {
	if o.Prompter == nil {
		o.Prompter = consent.NewController()
	}
	return o.Prompter
}

// markPrompted records the prompt time. A declined prompt counts too.
func (o *Orchestrator) markPrompted(ctx context.Context, env *sites.Env, log *slog.Logger) {
	now := env.Time().UnixMilli()
	if err := storage.SetJSON(ctx, env.Storage.Local, storage.KeyLastPromptTimestamp, now); err != nil {
		log.Warn("Failed to record prompt time", "error", err)
	}
}

func (o *Orchestrator) fail(env *sites.Env, name string, err error) {
	adapterErrors.WithLabelValues(name, errorKind(err)).Inc()
	env.Telemetry().ReportError(fmt.Sprintf("Error in %s content flow", name), err, nil)
	env.Log().Error("Content flow failed", "adapter", name, "error", err)
}

func errorKind(err error) string {
	var (
		parseErr *sites.ParseError
		netErr   *sites.NetworkError
	)
	switch {
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &netErr):
		return "network"
	default:
		return "other"
	}
}
