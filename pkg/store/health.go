package store

import (
	"fmt"
	"time"
)

// Health scoring thresholds. The score starts at 100 and deductions are
// applied for each breached threshold; the same thresholds drive the
// human-readable recommendations.
const (
	// healthSuccessRateFloor is the success rate below which a scaled
	// penalty is applied.
	healthSuccessRateFloor = 0.95

	// healthSuccessRateMaxPenalty caps the success rate deduction.
	healthSuccessRateMaxPenalty = 40.0

	// healthAvgTimeCeiling is the average execution time above which a
	// capped penalty is applied.
	healthAvgTimeCeiling = 30 * time.Second

	// healthAvgTimeMaxPenalty caps the execution time deduction.
	healthAvgTimeMaxPenalty = 30.0

	// healthConcurrencyRatio is the fraction of peak concurrency above
	// which the flat concurrency penalty is applied.
	healthConcurrencyRatio = 0.8

	// healthConcurrencyPenalty is the flat deduction applied when
	// current concurrency approaches its peak.
	healthConcurrencyPenalty = 20.0

	// healthBufferRatio is the record buffer occupancy above which a
	// recommendation is emitted.
	healthBufferRatio = 0.8
)

// HealthStatus labels a health score range.
type HealthStatus string

const (
	// HealthExcellent indicates a score of 90 or above.
	HealthExcellent HealthStatus = "excellent"

	// HealthGood indicates a score of 75 to 89.
	HealthGood HealthStatus = "good"

	// HealthDegraded indicates a score of 50 to 74.
	HealthDegraded HealthStatus = "degraded"

	// HealthCritical indicates a score below 50.
	HealthCritical HealthStatus = "critical"
)

// HealthReport is the derived system health assessment returned by
// [Store.Health].
type HealthReport struct {
	// Score is the 0-100 health score.
	Score float64 `json:"health_score"`

	// Status labels the score range: excellent, good, degraded, or
	// critical.
	Status HealthStatus `json:"status"`

	// Recommendations lists human-readable remediation hints for each
	// breached threshold. Empty when the system is healthy.
	Recommendations []string `json:"recommendations"`
}

// ComputeHealth derives a health report from a global statistics
// snapshot. Both store backends share this scoring so that a deployment
// can switch backends without changing its alerting thresholds.
//
// The score starts at 100 and deducts:
//   - up to 40 points, scaled, for a success rate below 95%
//   - up to 30 points, scaled, for an average execution time above 30s
//   - a flat 20 points when current concurrency is at or above 80% of
//     its recorded peak
//
// The score is floored at zero. Recommendations are emitted for each
// breached threshold, for a record buffer above 80% occupancy, and for
// an overall score below 75.
func ComputeHealth(g GlobalStats) HealthReport {
	score := 100.0
	var recs []string

	if g.SuccessRate < healthSuccessRateFloor {
		penalty := (healthSuccessRateFloor - g.SuccessRate) * 400
		if penalty > healthSuccessRateMaxPenalty {
			penalty = healthSuccessRateMaxPenalty
		}
		score -= penalty
		recs = append(recs, fmt.Sprintf(
			"Success rate %.1f%% is below 95%%: investigate recent execution failures",
			g.SuccessRate*100))
	}

	if g.AvgExecutionTime > healthAvgTimeCeiling {
		over := g.AvgExecutionTime - healthAvgTimeCeiling
		penalty := float64(over) / float64(healthAvgTimeCeiling) * healthAvgTimeMaxPenalty
		if penalty > healthAvgTimeMaxPenalty {
			penalty = healthAvgTimeMaxPenalty
		}
		score -= penalty
		recs = append(recs, fmt.Sprintf(
			"Average execution time %.1fs exceeds 30s: check agent latency and model throughput",
			g.AvgExecutionTime.Seconds()))
	}

	if g.PeakConcurrentExecutions > 0 && g.ConcurrentExecutions > 0 &&
		float64(g.ConcurrentExecutions) >= healthConcurrencyRatio*float64(g.PeakConcurrentExecutions) {
		score -= healthConcurrencyPenalty
		recs = append(recs, fmt.Sprintf(
			"Concurrent executions (%d) are at or above 80%% of peak (%d): consider raising capacity",
			g.ConcurrentExecutions, g.PeakConcurrentExecutions))
	}

	if g.Memory.MaxRecords > 0 &&
		float64(g.Memory.RecordCount) > healthBufferRatio*float64(g.Memory.MaxRecords) {
		recs = append(recs, fmt.Sprintf(
			"Execution record buffer is %d/%d entries full: consider lowering the record TTL",
			g.Memory.RecordCount, g.Memory.MaxRecords))
	}

	if score < 0 {
		score = 0
	}

	if score < 75 {
		recs = append(recs,
			"Overall health score is below 75: review the recommendations above")
	}

	return HealthReport{
		Score:           score,
		Status:          healthStatus(score),
		Recommendations: recs,
	}
}

// healthStatus maps a score to its status label.
func healthStatus(score float64) HealthStatus {
	switch {
	case score >= 90:
		return HealthExcellent
	case score >= 75:
		return HealthGood
	case score >= 50:
		return HealthDegraded
	default:
		return HealthCritical
	}
}
