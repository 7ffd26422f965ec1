// Package fatigue classifies an ad's delivery history as healthy, fatiguing,
// saturated or exhausted.
//
// Four independent rules run on every call and the most severe triggered rule
// wins: click-rate decline against a baseline window, frequency saturation,
// cost-per-impression spikes, and impression-growth deceleration under stable
// spend. A fatigued audience will not respond profitably even to a
// historically good creative, so the decision orchestrator lets a severe
// verdict override a positive blended score.
package fatigue

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/adpilot/budgetd/internal/models"
)

// Status is an ad's fatigue classification, ordered by severity.
type Status string

const (
	StatusHealthy   Status = "HEALTHY"
	StatusFatiguing Status = "FATIGUING"
	StatusSaturated Status = "SATURATED"
	// StatusExhausted means the addressable audience has been used up; more
	// budget buys repeat impressions, not reach.
	StatusExhausted Status = "AUDIENCE_EXHAUSTED"
)

var severityRank = map[Status]int{
	StatusHealthy:   0,
	StatusFatiguing: 1,
	StatusSaturated: 2,
	StatusExhausted: 3,
}

// Result is the analyzer's verdict for one ad.
//
// A HEALTHY result with Confidence 0 means "not enough data to judge", not an
// assertion of health; callers must treat it differently from a
// high-confidence HEALTHY.
type Result struct {
	Status     Status  `json:"status"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	// EstHoursUntilCritical is a linear extrapolation from the two most
	// recent data points of the triggered rule. It is a heuristic estimate,
	// not a deadline, and is clamped to a sane range.
	EstHoursUntilCritical float64 `json:"est_hours_until_critical"`
}

// minHistory is the fewest snapshots the rules can say anything about.
const minHistory = 3

// Analyzer evaluates fatigue rules with per-tenant thresholds.
type Analyzer struct {
	cfg    models.FatigueConfig
	logger *zap.Logger
}

// NewAnalyzer constructs an Analyzer. A nil logger falls back to the global.
func NewAnalyzer(cfg models.FatigueConfig, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.L()
	}
	return &Analyzer{cfg: cfg, logger: logger}
}

// verdict is one rule's triggered output before severity resolution.
type verdict struct {
	status     Status
	confidence float64
	reason     string
	etaHours   float64
}

// Analyze classifies the ad's metric history. History must be ordered oldest
// first; fewer than three snapshots yields HEALTHY with confidence 0.
func (a *Analyzer) Analyze(adID string, history []models.MetricSnapshot) Result {
	if len(history) < minHistory {
		return Result{
			Status:     StatusHealthy,
			Confidence: 0,
			Reason:     "insufficient_history",
		}
	}

	var verdicts []verdict
	ctrV, ctrSevere := a.checkCTRDecline(history)
	if ctrV != nil {
		verdicts = append(verdicts, *ctrV)
	}
	freqV, freqSevere := a.checkFrequency(history)
	if freqV != nil {
		verdicts = append(verdicts, *freqV)
	}
	if cpiV := a.checkCPISpike(history); cpiV != nil {
		verdicts = append(verdicts, *cpiV)
	}
	if exV := a.checkGrowthDeceleration(history); exV != nil {
		verdicts = append(verdicts, *exV)
	}

	// A severely over-frequencied audience that has also stopped clicking is
	// not merely saturated: there is no one left to reach.
	if ctrSevere && freqSevere {
		verdicts = append(verdicts, verdict{
			status:     StatusExhausted,
			confidence: math.Min(1, (ctrV.confidence+freqV.confidence)/2+0.25),
			reason:     "frequency_and_ctr_collapse",
			etaHours:   0,
		})
	}

	if len(verdicts) == 0 {
		return Result{
			Status: StatusHealthy,
			// More history means a firmer all-clear.
			Confidence: math.Min(1, float64(len(history))/10),
			Reason:     "no_fatigue_detected",
		}
	}

	worst := verdicts[0]
	for _, v := range verdicts[1:] {
		if severityRank[v.status] > severityRank[worst.status] ||
			(severityRank[v.status] == severityRank[worst.status] && v.confidence > worst.confidence) {
			worst = v
		}
	}

	a.logger.Debug("fatigue verdict",
		zap.String("ad_id", adID),
		zap.String("status", string(worst.status)),
		zap.Float64("confidence", worst.confidence),
		zap.String("reason", worst.reason),
	)

	return Result{
		Status:                worst.status,
		Confidence:            clamp01(worst.confidence),
		Reason:                worst.reason,
		EstHoursUntilCritical: worst.etaHours,
	}
}

// checkCTRDecline compares the recent-window average CTR to the baseline
// window at the start of the history. The second return reports whether the
// severe tier triggered, for the combined exhaustion check.
func (a *Analyzer) checkCTRDecline(history []models.MetricSnapshot) (*verdict, bool) {
	baseline, recent := a.windows(history)

	baseCTR := avgCTR(baseline)
	recentCTR := avgCTR(recent)
	if baseCTR == 0 {
		return nil, false
	}

	drop := (baseCTR - recentCTR) / baseCTR
	if drop < a.cfg.CTRDropWarn {
		return nil, false
	}

	status := StatusFatiguing
	severe := false
	if drop >= a.cfg.CTRDropSevere {
		status = StatusSaturated
		severe = true
	}
	return &verdict{
		status:     status,
		confidence: math.Min(1, drop/a.cfg.CTRDropSevere),
		reason:     fmt.Sprintf("ctr_decline_%.0f_pct", drop*100),
		etaHours:   a.extrapolate(history, snapshotCTR, baseCTR*(1-a.cfg.CTRDropSevere), false),
	}, severe
}

// checkFrequency flags audiences that are being shown the same ad too often,
// independent of whether CTR has moved yet.
func (a *Analyzer) checkFrequency(history []models.MetricSnapshot) (*verdict, bool) {
	_, recent := a.windows(history)

	var sum float64
	for _, s := range recent {
		sum += s.Frequency
	}
	freq := sum / float64(len(recent))
	if freq < a.cfg.FrequencyWarn {
		return nil, false
	}

	status := StatusFatiguing
	severe := false
	if freq >= a.cfg.FrequencySevere {
		status = StatusSaturated
		severe = true
	}
	return &verdict{
		status:     status,
		confidence: math.Min(1, freq/a.cfg.FrequencySevere),
		reason:     fmt.Sprintf("frequency_%.1f", freq),
		etaHours:   a.extrapolate(history, snapshotFrequency, a.cfg.FrequencySevere, true),
	}, severe
}

// checkCPISpike flags audiences that are getting more expensive to reach.
func (a *Analyzer) checkCPISpike(history []models.MetricSnapshot) *verdict {
	baseline, recent := a.windows(history)

	baseCPI := avgCPI(baseline)
	recentCPI := avgCPI(recent)
	if baseCPI == 0 {
		return nil
	}

	rise := (recentCPI - baseCPI) / baseCPI
	if rise < a.cfg.CPIRiseWarn {
		return nil
	}

	status := StatusFatiguing
	if rise >= a.cfg.CPIRiseSevere {
		status = StatusSaturated
	}
	return &verdict{
		status:     status,
		confidence: math.Min(1, rise/a.cfg.CPIRiseSevere),
		reason:     fmt.Sprintf("cpi_spike_%.0f_pct", rise*100),
		etaHours:   a.extrapolate(history, snapshotCPI, baseCPI*(1+a.cfg.CPIRiseSevere), true),
	}
}

// checkGrowthDeceleration detects an exhausted addressable audience: the
// per-period impression count has stopped growing (or shrinks) while spend
// has stayed stable, so budget is buying repeats instead of reach.
func (a *Analyzer) checkGrowthDeceleration(history []models.MetricSnapshot) *verdict {
	baseline, recent := a.windows(history)

	baseImp := avgImpressions(baseline)
	recentImp := avgImpressions(recent)
	baseSpend := avgSpend(baseline)
	recentSpend := avgSpend(recent)

	if baseImp == 0 || baseSpend == 0 {
		return nil
	}

	// Spend moved by more than 20% either way: deceleration is explained by
	// the budget, not the audience.
	spendShift := math.Abs(recentSpend-baseSpend) / baseSpend
	if spendShift > 0.2 {
		return nil
	}

	// Exponential growth rate between the windows; <= ~1% per period with
	// stable spend reads as an exhausted audience.
	rate := math.Log(recentImp / baseImp)
	if rate > 0.01 {
		return nil
	}

	return &verdict{
		status:     StatusExhausted,
		confidence: math.Min(1, 0.6+math.Abs(rate)),
		reason:     fmt.Sprintf("impression_growth_stalled_rate_%.3f", rate),
		etaHours:   0, // already critical
	}
}

// windows splits the history into a baseline prefix and a recent suffix using
// the configured window sizes, falling back to halves when the history is
// shorter than both windows combined.
func (a *Analyzer) windows(history []models.MetricSnapshot) (baseline, recent []models.MetricSnapshot) {
	bw, rw := a.cfg.BaselineWindow, a.cfg.RecentWindow
	if bw <= 0 {
		bw = minHistory
	}
	if rw <= 0 {
		rw = minHistory
	}
	if bw+rw > len(history) {
		half := len(history) / 2
		return history[:half], history[half:]
	}
	return history[:bw], history[len(history)-rw:]
}

// extrapolate estimates hours until the metric crosses critical, using the
// straight line through the two most recent snapshots. rising selects whether
// the metric approaches critical from below or above. The result is clamped
// to [0, MaxCriticalHorizonHours]; 0 means "already there or unknowable".
func (a *Analyzer) extrapolate(history []models.MetricSnapshot, metric func(models.MetricSnapshot) float64, critical float64, rising bool) float64 {
	n := len(history)
	prev, last := history[n-2], history[n-1]

	dt := last.Timestamp.Sub(prev.Timestamp).Hours()
	if dt <= 0 {
		return 0
	}
	slope := (metric(last) - metric(prev)) / dt

	cur := metric(last)
	var hours float64
	switch {
	case rising && slope > 0 && cur < critical:
		hours = (critical - cur) / slope
	case !rising && slope < 0 && cur > critical:
		hours = (critical - cur) / slope
	default:
		return 0
	}

	maxH := a.cfg.MaxCriticalHorizonHours
	if maxH <= 0 {
		maxH = 14 * 24
	}
	return math.Min(math.Max(hours, 0), maxH)
}

func snapshotCTR(s models.MetricSnapshot) float64       { return s.CTR() }
func snapshotCPI(s models.MetricSnapshot) float64       { return s.CPI }
func snapshotFrequency(s models.MetricSnapshot) float64 { return s.Frequency }

func avgCTR(ss []models.MetricSnapshot) float64 {
	var imps, clicks int64
	for _, s := range ss {
		imps += s.Impressions
		clicks += s.Clicks
	}
	if imps == 0 {
		return 0
	}
	return float64(clicks) / float64(imps)
}

func avgCPI(ss []models.MetricSnapshot) float64 {
	var sum float64
	for _, s := range ss {
		sum += s.CPI
	}
	if len(ss) == 0 {
		return 0
	}
	return sum / float64(len(ss))
}

func avgImpressions(ss []models.MetricSnapshot) float64 {
	var sum int64
	for _, s := range ss {
		sum += s.Impressions
	}
	if len(ss) == 0 {
		return 0
	}
	return float64(sum) / float64(len(ss))
}

func avgSpend(ss []models.MetricSnapshot) float64 {
	var sum float64
	for _, s := range ss {
		sum += s.Spend
	}
	if len(ss) == 0 {
		return 0
	}
	return sum / float64(len(ss))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
