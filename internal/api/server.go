package api

import (
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/adpilot/budgetd/internal/config"
	"github.com/adpilot/budgetd/internal/db"
	"github.com/adpilot/budgetd/internal/engine"
	"github.com/adpilot/budgetd/internal/history"
	"github.com/adpilot/budgetd/internal/models"
	"github.com/adpilot/budgetd/internal/observability"
)

var tracer = otel.Tracer("budgetd")

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger  *zap.Logger
	Engine  *engine.Engine
	PG      *db.Postgres
	Store   *db.RedisStore
	History history.HistoryService
	Winners *engine.MemoryWinnerSink
	Metrics observability.MetricsRegistry
	Config  config.Config

	reloadMu sync.Mutex
	tenantMu sync.RWMutex
	tenants  map[string]*models.TenantConfig

	// Per-tenant authoritative ad state. Snapshots from the collector are
	// applied here before evaluation so counter regressions are rejected and
	// the prior good state retained.
	statesMu sync.Mutex
	states   map[string]models.AdStateStore
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, eng *engine.Engine, pg *db.Postgres, store *db.RedisStore, hist history.HistoryService, winners *engine.MemoryWinnerSink, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Server{
		Logger:  logger,
		Engine:  eng,
		PG:      pg,
		Store:   store,
		History: hist,
		Winners: winners,
		Metrics: metrics,
		Config:  cfg,
		tenants: make(map[string]*models.TenantConfig),
		states:  make(map[string]models.AdStateStore),
	}
}

// Reload refreshes tenant decision policy from Postgres. The swap is atomic:
// in-flight evaluations keep the config snapshot they started with.
func (s *Server) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}

	loaded, err := s.PG.LoadTenants(s.Config.DefaultTenant)
	if err != nil {
		s.Metrics.IncrementConfigReloads("error")
		return err
	}

	next := make(map[string]*models.TenantConfig, len(loaded))
	for i := range loaded {
		t := loaded[i]
		next[t.Name] = &t
	}

	s.tenantMu.Lock()
	s.tenants = next
	s.tenantMu.Unlock()

	s.Metrics.IncrementConfigReloads("success")
	s.Logger.Info("tenant config reloaded", zap.Int("tenants", len(next)))
	return nil
}

// Tenant returns the active policy for a tenant name, or nil when unknown.
func (s *Server) Tenant(name string) *models.TenantConfig {
	s.tenantMu.RLock()
	defer s.tenantMu.RUnlock()
	return s.tenants[name]
}

// Tenants returns a snapshot of the active tenant policies.
func (s *Server) Tenants() []*models.TenantConfig {
	s.tenantMu.RLock()
	defer s.tenantMu.RUnlock()
	out := make([]*models.TenantConfig, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	return out
}

// SetTenant installs a tenant policy directly. Used by tests and by
// deployments that run without a Postgres config store.
func (s *Server) SetTenant(t *models.TenantConfig) {
	s.tenantMu.Lock()
	defer s.tenantMu.Unlock()
	s.tenants[t.Name] = t
}

// States returns the ad state store for a tenant, created on first use. Ads
// from different tenants never share an entry even when ids collide.
func (s *Server) States(tenant string) models.AdStateStore {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	st, ok := s.states[tenant]
	if !ok {
		st = models.NewInMemoryAdStateStore()
		s.states[tenant] = st
	}
	return st
}
