// Package analytics composes stored heartbeat aggregates into the metrics
// the stats endpoint reports.
package analytics

import (
	"context"
	"time"

	"github.com/watchpost/watchpost/internal/storage"
)

// MonitorMetrics holds computed metrics for a monitor over a time range.
// Percentiles are in milliseconds and cover checks that got an answer.
type MonitorMetrics struct {
	MonitorID      string  `json:"monitor_id"`
	UptimePct      float64 `json:"uptime_pct"`
	P50Ms          int64   `json:"p50_ms"`
	P95Ms          int64   `json:"p95_ms"`
	P99Ms          int64   `json:"p99_ms"`
	AvgResponseMs  int64   `json:"avg_response_ms"`
	MinResponseMs  int64   `json:"min_response_ms"`
	MaxResponseMs  int64   `json:"max_response_ms"`
	TotalChecks    int64   `json:"total_checks"`
	UpChecks       int64   `json:"up_checks"`
	DownChecks     int64   `json:"down_checks"`
	DegradedChecks int64   `json:"degraded_checks"`
}

// ComputeMetrics calculates metrics for a monitor over [from, to).
func ComputeMetrics(ctx context.Context, store storage.Store, monitorID string, from, to time.Time) (*MonitorMetrics, error) {
	stats, err := store.GetUptimeStats(ctx, monitorID, from, to)
	if err != nil {
		return nil, err
	}

	p50, p95, p99, err := store.GetResponseTimePercentiles(ctx, monitorID, from, to)
	if err != nil {
		return nil, err
	}

	return &MonitorMetrics{
		MonitorID:      monitorID,
		UptimePct:      stats.UptimePct,
		P50Ms:          p50,
		P95Ms:          p95,
		P99Ms:          p99,
		AvgResponseMs:  stats.AvgResponseMs,
		MinResponseMs:  stats.MinResponseMs,
		MaxResponseMs:  stats.MaxResponseMs,
		TotalChecks:    stats.TotalChecks,
		UpChecks:       stats.UpChecks,
		DownChecks:     stats.DownChecks,
		DegradedChecks: stats.DegradedChecks,
	}, nil
}
