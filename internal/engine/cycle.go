package engine

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/adpilot/budgetd/internal/bandit"
	"github.com/adpilot/budgetd/internal/models"
)

// CycleInput is one ad's evaluation input within a decision cycle.
type CycleInput struct {
	Ad      models.AdState          `json:"ad"`
	History []models.MetricSnapshot `json:"history"`
	// Signals optionally carry contextual match scores for the bandit.
	Signals bandit.Signals `json:"signals,omitempty"`
}

// CycleResult is the outcome of evaluating a tenant's ads together.
type CycleResult struct {
	Decisions []*models.Decision `json:"decisions"`
	// ScaleTarget is the single SCALE candidate chosen by the variant
	// selector to receive the incremental budget this cycle; empty when no ad
	// scored a SCALE decision.
	ScaleTarget string `json:"scale_target,omitempty"`
}

// EvaluateCycle evaluates every ad in the group and, when more than one ad
// earned a SCALE decision, asks the bandit which one should receive the
// incremental budget. Ads are independent within a cycle, so evaluations run
// concurrently; the shared belief store is consulted once, afterwards.
//
// A failed evaluation fails the whole cycle: configuration and integrity
// errors mean the tenant's decisions are untrustworthy until fixed.
func (e *Engine) EvaluateCycle(ctx context.Context, tenant *models.TenantConfig, inputs []CycleInput) (*CycleResult, error) {
	decisions := make([]*models.Decision, len(inputs))
	errs := make([]error, len(inputs))

	var wg sync.WaitGroup
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := &inputs[i]
			decisions[i], errs[i] = e.Evaluate(ctx, &in.Ad, in.History, tenant)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	res := &CycleResult{Decisions: decisions}

	// Belief keys carry the tenant name so tenants with colliding ad ids
	// never share evidence, and per-tenant decay stays scoped.
	scope := tenant.Name + "/"

	var scaleIDs []string
	signals := make(map[string]bandit.Signals)
	for i, d := range decisions {
		if d.Action == models.ActionScale {
			scaleIDs = append(scaleIDs, scope+d.AdID)
			signals[scope+d.AdID] = inputs[i].Signals
		}
	}

	switch {
	case len(scaleIDs) == 1:
		res.ScaleTarget = strings.TrimPrefix(scaleIDs[0], scope)
	case len(scaleIDs) > 1 && e.Bandit != nil:
		sort.Strings(scaleIDs) // deterministic candidate order
		target, err := e.Bandit.Select(ctx, tenant.Bandit, scaleIDs, signals)
		if err != nil {
			return nil, err
		}
		e.Metrics.IncrementBanditOps("select")
		res.ScaleTarget = strings.TrimPrefix(target, scope)
	case len(scaleIDs) > 1:
		// No bandit wired: fall back to the highest blended score.
		best := ""
		bestScore := -1.0
		for _, d := range decisions {
			if d.Action == models.ActionScale && d.Breakdown.BlendedScore > bestScore {
				best, bestScore = d.AdID, d.Breakdown.BlendedScore
			}
		}
		res.ScaleTarget = best
	}

	e.Logger.Info("cycle complete",
		zap.String("tenant", tenant.Name),
		zap.Int("ads", len(inputs)),
		zap.Int("scale_candidates", len(scaleIDs)),
		zap.String("scale_target", res.ScaleTarget),
	)
	return res, nil
}
