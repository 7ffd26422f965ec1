// Package history adapts the metrics collector's ClickHouse event store into
// the snapshot inputs the decision engine consumes. The engine core performs
// no I/O of its own; everything behind the HistoryService interface runs
// before an evaluation cycle starts.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2" // ClickHouse driver
	"go.uber.org/zap"

	"github.com/adpilot/budgetd/internal/models"
)

// ErrUnavailable is returned when the history store is not configured.
var ErrUnavailable = fmt.Errorf("history store unavailable")

// HistoryService loads ad states and metric histories for evaluation.
type HistoryService interface {
	// LoadAdStates returns the current cumulative state of every ad a tenant
	// has delivered within the lookback window.
	LoadAdStates(ctx context.Context, tenant string, lookback time.Duration) ([]models.AdState, error)
	// LoadHistory returns hourly metric snapshots for one ad, oldest first.
	LoadHistory(ctx context.Context, tenant, adID string, lookback time.Duration) ([]models.MetricSnapshot, error)
}

// ClickHouseHistory implements HistoryService over the collector's events
// table.
type ClickHouseHistory struct {
	DB     *sql.DB
	Logger *zap.Logger
}

// InitClickHouse connects to ClickHouse and ensures the delivery metrics
// table exists.
func InitClickHouse(dsn string, logger *zap.Logger) (*ClickHouseHistory, error) {
	ch, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	ch.SetMaxOpenConns(25)
	if err := ch.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	create := `CREATE TABLE IF NOT EXISTS ad_metrics (
       timestamp      DateTime,
       tenant         String,
       ad_id          String,
       impressions    Int64,
       clicks         Int64,
       conversions    Int64,
       spend          Float64,
       revenue        Float64,
       unique_viewers Int64,
       stage          Nullable(String),
       stage_at       Nullable(DateTime),
       created_at     DateTime
   ) ENGINE=MergeTree() ORDER BY (tenant, ad_id, timestamp)`
	if _, err := ch.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	if logger == nil {
		logger = zap.L()
	}
	logger.Info("Connected to ClickHouse")
	return &ClickHouseHistory{DB: ch, Logger: logger}, nil
}

// LoadAdStates aggregates per-period rows into one cumulative AdState per ad.
func (h *ClickHouseHistory) LoadAdStates(ctx context.Context, tenant string, lookback time.Duration) ([]models.AdState, error) {
	if h == nil || h.DB == nil {
		return nil, ErrUnavailable
	}

	query := `SELECT
		ad_id,
		min(created_at)                    AS created_at,
		max(timestamp)                     AS updated_at,
		sum(impressions)                   AS impressions,
		sum(clicks)                        AS clicks,
		sum(conversions)                   AS conversions,
		sum(spend)                         AS spend,
		sum(revenue)                       AS revenue,
		argMax(stage, timestamp)           AS stage,
		argMax(stage_at, timestamp)        AS stage_at
	FROM ad_metrics
	WHERE tenant = ? AND timestamp >= now() - INTERVAL ? SECOND
	GROUP BY ad_id
	ORDER BY ad_id`

	rows, err := h.DB.QueryContext(ctx, query, tenant, int64(lookback.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("query ad states for tenant %s: %w", tenant, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			h.Logger.Warn("failed to close rows", zap.Error(closeErr))
		}
	}()

	var states []models.AdState
	for rows.Next() {
		var (
			a       models.AdState
			stage   *string
			stageAt *time.Time
		)
		if err := rows.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt,
			&a.Impressions, &a.Clicks, &a.Conversions,
			&a.Spend, &a.Revenue, &stage, &stageAt,
		); err != nil {
			return nil, fmt.Errorf("scan ad state: %w", err)
		}
		if stage != nil {
			a.Stage = *stage
		}
		if stageAt != nil {
			a.StageAt = *stageAt
		}
		states = append(states, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ad states: %w", err)
	}

	h.Logger.Debug("loaded ad states",
		zap.String("tenant", tenant),
		zap.Int("count", len(states)),
	)
	return states, nil
}

// LoadHistory returns hourly snapshots for one ad, oldest first, bounded by
// the lookback window.
func (h *ClickHouseHistory) LoadHistory(ctx context.Context, tenant, adID string, lookback time.Duration) ([]models.MetricSnapshot, error) {
	if h == nil || h.DB == nil {
		return nil, ErrUnavailable
	}

	query := `SELECT
		toStartOfHour(timestamp)  AS period,
		sum(impressions)          AS impressions,
		sum(clicks)               AS clicks,
		sum(spend)                AS spend,
		sum(unique_viewers)       AS unique_viewers
	FROM ad_metrics
	WHERE tenant = ? AND ad_id = ? AND timestamp >= now() - INTERVAL ? SECOND
	GROUP BY period
	ORDER BY period ASC
	LIMIT 1000`

	rows, err := h.DB.QueryContext(ctx, query, tenant, adID, int64(lookback.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("query history for ad %s: %w", adID, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			h.Logger.Warn("failed to close rows", zap.Error(closeErr))
		}
	}()

	var history []models.MetricSnapshot
	for rows.Next() {
		var (
			s       models.MetricSnapshot
			viewers int64
		)
		if err := rows.Scan(&s.Timestamp, &s.Impressions, &s.Clicks, &s.Spend, &viewers); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if s.Impressions > 0 {
			s.CPI = s.Spend / float64(s.Impressions)
		}
		if viewers > 0 {
			s.Frequency = float64(s.Impressions) / float64(viewers)
		}
		history = append(history, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return history, nil
}

// Close shuts down the ClickHouse connection.
func (h *ClickHouseHistory) Close() {
	if h != nil && h.DB != nil {
		if err := h.DB.Close(); err != nil {
			h.Logger.Error("clickhouse close", zap.Error(err))
		}
	}
}
