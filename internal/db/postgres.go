package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq" // postgres driver
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/adpilot/budgetd/internal/models"
)

// Postgres wraps the tenant configuration store. Decision policy is data,
// never code: thresholds, stage valuations and curve parameters all live
// here and are hot-reloaded between cycles.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS tenants (
    id SERIAL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    blend_curve TEXT NOT NULL DEFAULT 'sigmoid',
    blend_center_hours DOUBLE PRECISION,
    blend_steepness_hours DOUBLE PRECISION,
    blend_max_weight DOUBLE PRECISION,
    min_observation_hours DOUBLE PRECISION,
    min_observation_spend DOUBLE PRECISION,
    kill_threshold DOUBLE PRECISION,
    scale_threshold DOUBLE PRECISION,
    target_roas DOUBLE PRECISION,
    target_ctr DOUBLE PRECISION,
    frequency_warn DOUBLE PRECISION,
    frequency_severe DOUBLE PRECISION,
    ctr_drop_warn DOUBLE PRECISION,
    ctr_drop_severe DOUBLE PRECISION,
    cpi_rise_warn DOUBLE PRECISION,
    cpi_rise_severe DOUBLE PRECISION,
    max_critical_horizon_hours DOUBLE PRECISION,
    bandit_decay_factor DOUBLE PRECISION,
    bandit_decay_window_hours DOUBLE PRECISION,
    bandit_max_context_boost DOUBLE PRECISION,
    winner_streak INT,
    winner_score DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS pipeline_stages (
    tenant_id INT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
    stage TEXT NOT NULL,
    value NUMERIC(12,2) NOT NULL,
    half_life_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    PRIMARY KEY (tenant_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_pipeline_stages_tenant ON pipeline_stages (tenant_id);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*Postgres, error) {
	// Register the otelsql wrapper for postgres
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres", zap.Int("max_open_conns", maxOpenConns))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	if _, err := p.DB.ExecContext(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// LoadTenants retrieves all tenant configurations, layering each row's
// non-null columns over the supplied defaults and attaching the tenant's
// pipeline stage table. Every returned config has passed Validate.
func (p *Postgres) LoadTenants(defaults func(id int, name string) models.TenantConfig) ([]models.TenantConfig, error) {
	ctx := context.Background()
	rows, err := p.DB.QueryContext(ctx, `SELECT id, name, blend_curve,
		blend_center_hours, blend_steepness_hours, blend_max_weight,
		min_observation_hours, min_observation_spend,
		kill_threshold, scale_threshold, target_roas, target_ctr,
		frequency_warn, frequency_severe, ctr_drop_warn, ctr_drop_severe,
		cpi_rise_warn, cpi_rise_severe, max_critical_horizon_hours,
		bandit_decay_factor, bandit_decay_window_hours, bandit_max_context_boost,
		winner_streak, winner_score
		FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tenants []models.TenantConfig
	for rows.Next() {
		var (
			id         int
			name       string
			blendCurve string

			centerHours, steepnessHours, maxWeight          sql.NullFloat64
			minObsHours, minObsSpend                        sql.NullFloat64
			killThresh, scaleThresh, targetROAS, targetCTR  sql.NullFloat64
			freqWarn, freqSevere, ctrWarn, ctrSevere        sql.NullFloat64
			cpiWarn, cpiSevere, maxHorizon                  sql.NullFloat64
			decayFactor, decayWindowHours, maxContextBoost  sql.NullFloat64
			winnerStreak                                    sql.NullInt64
			winnerScore                                     sql.NullFloat64
		)
		if err := rows.Scan(&id, &name, &blendCurve,
			&centerHours, &steepnessHours, &maxWeight,
			&minObsHours, &minObsSpend,
			&killThresh, &scaleThresh, &targetROAS, &targetCTR,
			&freqWarn, &freqSevere, &ctrWarn, &ctrSevere,
			&cpiWarn, &cpiSevere, &maxHorizon,
			&decayFactor, &decayWindowHours, &maxContextBoost,
			&winnerStreak, &winnerScore,
		); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}

		t := defaults(id, name)
		if blendCurve != "" {
			t.Blending.Curve = models.Curve(blendCurve)
		}
		overrideFloat(&t.Blending.CenterHours, centerHours)
		overrideFloat(&t.Blending.SteepnessHours, steepnessHours)
		overrideFloat(&t.Blending.MaxWeight, maxWeight)
		overrideFloat(&t.MinObservationHours, minObsHours)
		overrideFloat(&t.MinObservationSpend, minObsSpend)
		overrideFloat(&t.KillThreshold, killThresh)
		overrideFloat(&t.ScaleThreshold, scaleThresh)
		overrideFloat(&t.TargetROAS, targetROAS)
		overrideFloat(&t.TargetCTR, targetCTR)
		overrideFloat(&t.Fatigue.FrequencyWarn, freqWarn)
		overrideFloat(&t.Fatigue.FrequencySevere, freqSevere)
		overrideFloat(&t.Fatigue.CTRDropWarn, ctrWarn)
		overrideFloat(&t.Fatigue.CTRDropSevere, ctrSevere)
		overrideFloat(&t.Fatigue.CPIRiseWarn, cpiWarn)
		overrideFloat(&t.Fatigue.CPIRiseSevere, cpiSevere)
		overrideFloat(&t.Fatigue.MaxCriticalHorizonHours, maxHorizon)
		overrideFloat(&t.Bandit.DecayFactor, decayFactor)
		overrideFloat(&t.Bandit.DecayWindowHours, decayWindowHours)
		overrideFloat(&t.Bandit.MaxContextBoost, maxContextBoost)
		if winnerStreak.Valid {
			t.WinnerStreak = int(winnerStreak.Int64)
		}
		overrideFloat(&t.WinnerScore, winnerScore)

		stages, err := p.loadStages(ctx, id)
		if err != nil {
			return nil, err
		}
		t.Stages = stages

		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("tenant %s: %w", name, err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenants, nil
}

func (p *Postgres) loadStages(ctx context.Context, tenantID int) (map[string]models.StageValue, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT stage, value, half_life_hours FROM pipeline_stages WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query stages for tenant %d: %w", tenantID, err)
	}
	defer func() { _ = rows.Close() }()

	stages := make(map[string]models.StageValue)
	for rows.Next() {
		var (
			stage    string
			value    string
			halfLife float64
		)
		if err := rows.Scan(&stage, &value, &halfLife); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		v, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("parse stage value %q: %w", value, err)
		}
		stages[stage] = models.StageValue{Value: v, HalfLifeHours: halfLife}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stages: %w", err)
	}
	return stages, nil
}

func overrideFloat(dst *float64, v sql.NullFloat64) {
	if v.Valid {
		*dst = v.Float64
	}
}
