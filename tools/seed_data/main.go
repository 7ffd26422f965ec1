// Command seed_data populates Postgres with demo tenants and ClickHouse with
// synthetic delivery history so a local budgetd stack has something to decide
// about. Healthy ads grow reach at steady CTR; a configurable fraction decay
// toward saturation so fatigue verdicts show up in demos.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/adpilot/budgetd/internal/config"
	"github.com/adpilot/budgetd/internal/db"
	"github.com/adpilot/budgetd/internal/history"
	"github.com/adpilot/budgetd/internal/observability"
)

var (
	tenantCount  = flag.Int("tenants", 2, "number of tenants")
	adsPerTenant = flag.Int("ads", 8, "ads per tenant")
	hours        = flag.Int("hours", 96, "hours of hourly history per ad")
	fatigueFrac  = flag.Float64("fatigued", 0.25, "fraction of ads seeded with decaying CTR")
	seed         = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
)

func main() {
	flag.Parse()

	logger, err := observability.InitLogger("budgetd-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	pg, err := db.InitPostgres(cfg.PostgresDSN, 5, 2, 30*time.Minute)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	hist, err := history.InitClickHouse(cfg.ClickHouseDSN, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect clickhouse: %v\n", err)
		os.Exit(1)
	}
	defer hist.Close()

	r := rand.New(rand.NewSource(*seed))
	ctx := context.Background()

	for ti := 0; ti < *tenantCount; ti++ {
		name := fmt.Sprintf("tenant-%d", ti+1)
		id, err := ensureTenant(ctx, pg, name)
		if err != nil {
			logger.Fatal("seed tenant", zap.String("tenant", name), zap.Error(err))
		}
		if err := seedStages(ctx, pg, id); err != nil {
			logger.Fatal("seed stages", zap.String("tenant", name), zap.Error(err))
		}

		for ai := 0; ai < *adsPerTenant; ai++ {
			adID := fmt.Sprintf("%s-ad-%03d", name, ai+1)
			fatigued := r.Float64() < *fatigueFrac
			if err := seedHistory(ctx, hist, r, name, adID, *hours, fatigued); err != nil {
				logger.Fatal("seed history", zap.String("ad_id", adID), zap.Error(err))
			}
			logger.Info("seeded ad",
				zap.String("tenant", name),
				zap.String("ad_id", adID),
				zap.Bool("fatigued", fatigued),
			)
		}
	}

	logger.Info("seed complete",
		zap.Int("tenants", *tenantCount),
		zap.Int("ads_per_tenant", *adsPerTenant),
		zap.Int("hours", *hours),
	)
}

// ensureTenant inserts the tenant if missing and returns its id. All policy
// columns are left NULL so the service defaults apply.
func ensureTenant(ctx context.Context, pg *db.Postgres, name string) (int, error) {
	var id int
	err := pg.DB.QueryRowContext(ctx,
		`INSERT INTO tenants (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert tenant %s: %w", name, err)
	}
	return id, nil
}

func seedStages(ctx context.Context, pg *db.Postgres, tenantID int) error {
	stages := []struct {
		name     string
		value    string
		halfLife float64
	}{
		{"lead_created", "50.00", 0},
		{"appointment_scheduled", "400.00", 168},
		{"proposal_sent", "1200.00", 336},
		{"deal_closed", "5000.00", 0},
	}
	for _, s := range stages {
		_, err := pg.DB.ExecContext(ctx,
			`INSERT INTO pipeline_stages (tenant_id, stage, value, half_life_hours)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (tenant_id, stage) DO UPDATE SET value = EXCLUDED.value`,
			tenantID, s.name, s.value, s.halfLife)
		if err != nil {
			return fmt.Errorf("upsert stage %s: %w", s.name, err)
		}
	}
	return nil
}

// seedHistory writes hourly ad_metrics rows. Fatigued ads lose CTR and gain
// frequency over time; healthy ads keep converting and accrue revenue after a
// simulated attribution lag.
func seedHistory(ctx context.Context, hist *history.ClickHouseHistory, r *rand.Rand, tenant, adID string, hours int, fatigued bool) error {
	createdAt := time.Now().Add(-time.Duration(hours) * time.Hour).Truncate(time.Hour)
	baseCTR := 0.015 + r.Float64()*0.015
	baseImps := 800 + r.Intn(800)

	for h := 0; h < hours; h++ {
		ts := createdAt.Add(time.Duration(h) * time.Hour)
		progress := float64(h) / float64(hours)

		imps := int64(float64(baseImps) * (1 + progress))
		ctr := baseCTR
		freq := 1.5 + r.Float64()*0.5
		if fatigued {
			// CTR halves and frequency climbs past saturation over the run.
			ctr = baseCTR * (1 - 0.5*progress)
			freq = 1.5 + 8.0*progress
			imps = int64(float64(baseImps) * (1 + 0.2*progress))
		}

		clicks := int64(float64(imps) * ctr)
		spend := float64(imps) * (0.008 + r.Float64()*0.004)

		// Revenue starts landing after a ~36h attribution lag.
		var revenue float64
		var conversions int64
		if h > 36 && !fatigued {
			conversions = int64(r.Intn(3))
			revenue = float64(conversions) * (300 + r.Float64()*400)
		}

		viewers := int64(float64(imps) / freq)
		_, err := hist.DB.ExecContext(ctx,
			`INSERT INTO ad_metrics
			 (timestamp, tenant, ad_id, impressions, clicks, conversions, spend, revenue, unique_viewers, stage, stage_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?)`,
			ts, tenant, adID, imps, clicks, conversions, spend, revenue, viewers, createdAt)
		if err != nil {
			return fmt.Errorf("insert metrics for %s at %s: %w", adID, ts, err)
		}
	}
	return nil
}
