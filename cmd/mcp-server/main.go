// Command mcp-server exposes the decision engine over the Model Context
// Protocol so agent tooling can evaluate ads and ask for decision
// explanations without going through the HTTP API.
package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adpilot/budgetd/internal/bandit"
	"github.com/adpilot/budgetd/internal/config"
	"github.com/adpilot/budgetd/internal/db"
	"github.com/adpilot/budgetd/internal/engine"
	"github.com/adpilot/budgetd/internal/models"
	"github.com/adpilot/budgetd/internal/observability"
)

type EvaluateAdInput struct {
	Tenant  string                  `json:"tenant"`
	Ad      models.AdState          `json:"ad"`
	History []models.MetricSnapshot `json:"history,omitempty"`
}

type EvaluateAdOutput struct {
	Decision *models.Decision `json:"decision"`
}

type ExplainDecisionOutput struct {
	Decision    *models.Decision `json:"decision"`
	Explanation string           `json:"explanation"`
}

// DecisionServer holds the MCP tool dependencies.
type DecisionServer struct {
	engine  *engine.Engine
	tenants map[string]*models.TenantConfig
	logger  *zap.Logger
}

func (s *DecisionServer) tenant(name string) (*models.TenantConfig, error) {
	t, ok := s.tenants[name]
	if !ok {
		return nil, fmt.Errorf("unknown tenant %q", name)
	}
	return t, nil
}

// EvaluateAd runs one ad through the decision engine.
func (s *DecisionServer) EvaluateAd(ctx context.Context, req *mcp.CallToolRequest, input EvaluateAdInput) (*mcp.CallToolResult, EvaluateAdOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tenant, err := s.tenant(input.Tenant)
	if err != nil {
		return nil, EvaluateAdOutput{}, err
	}

	decision, err := s.engine.Evaluate(ctx, &input.Ad, input.History, tenant)
	if err != nil {
		return nil, EvaluateAdOutput{}, err
	}

	s.logger.Info("evaluated ad via MCP",
		zap.String("tenant", input.Tenant),
		zap.String("ad_id", input.Ad.ID),
		zap.String("action", string(decision.Action)))
	return nil, EvaluateAdOutput{Decision: decision}, nil
}

// ExplainDecision evaluates an ad and renders the score breakdown as prose.
func (s *DecisionServer) ExplainDecision(ctx context.Context, req *mcp.CallToolRequest, input EvaluateAdInput) (*mcp.CallToolResult, ExplainDecisionOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tenant, err := s.tenant(input.Tenant)
	if err != nil {
		return nil, ExplainDecisionOutput{}, err
	}

	decision, err := s.engine.Evaluate(ctx, &input.Ad, input.History, tenant)
	if err != nil {
		return nil, ExplainDecisionOutput{}, err
	}

	return nil, ExplainDecisionOutput{
		Decision:    decision,
		Explanation: explain(decision, tenant),
	}, nil
}

// explain renders a decision's breakdown into reviewer-facing prose, one line
// per contributing factor.
func explain(d *models.Decision, t *models.TenantConfig) string {
	b := d.Breakdown
	var sb strings.Builder

	fmt.Fprintf(&sb, "Action %s (confidence %.2f), reason %s.\n", d.Action, d.Confidence, d.Reason)
	if b.InIgnoranceZone {
		fmt.Fprintf(&sb, "The ad is %.1fh old and still inside the observation window (%.0fh / $%.0f minimum), so no verdict is attempted yet.\n",
			b.AgeHours, t.MinObservationHours, t.MinObservationSpend)
		return sb.String()
	}

	fmt.Fprintf(&sb, "At %.1fh of age the revenue signal carries %.0f%% of the blend; click signal carries the rest.\n",
		b.AgeHours, b.BlendWeight*100)
	fmt.Fprintf(&sb, "Click score %.2f and revenue score %.2f blend to %.2f against kill=%.2f and scale=%.2f.\n",
		b.ClickScore, b.RevenueScore, b.BlendedScore, b.KillThreshold, b.ScaleThreshold)
	if b.FatigueStatus != "" && b.FatigueStatus != "HEALTHY" {
		fmt.Fprintf(&sb, "Creative fatigue: %s at %.0f%% confidence.\n", b.FatigueStatus, b.FatigueConf*100)
	}
	if d.Detail != "" {
		fmt.Fprintf(&sb, "%s\n", d.Detail)
	}
	return sb.String()
}

func main() {
	logger, err := observability.InitLogger("budgetd-mcp")
	if err != nil {
		panic(fmt.Sprintf("init logger: %v", err))
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()

	pg, err := db.InitPostgres(cfg.PostgresDSN, 10, 5, 30*time.Minute)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pg.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))

	loaded, err := pg.LoadTenants(cfg.DefaultTenant)
	if err != nil {
		logger.Fatal("Failed to load tenants", zap.Error(err))
	}
	tenants := make(map[string]*models.TenantConfig, len(loaded))
	for i := range loaded {
		t := loaded[i]
		tenants[t.Name] = &t
	}
	logger.Info("Loaded tenants from Postgres", zap.Int("tenants", len(tenants)))

	beliefs := bandit.NewRedisStore(redisClient, logger)
	selector := bandit.NewSelector(beliefs, cfg.BanditSeed, logger)
	eng := engine.New(selector, observability.NewNoOpRegistry(), logger, nil)

	decisionServer := &DecisionServer{
		engine:  eng,
		tenants: tenants,
		logger:  logger,
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "budgetd",
		Version: "1.0.0",
	}, nil)

	adSchema := map[string]interface{}{
		"type":        "object",
		"description": "Cumulative ad state snapshot",
		"properties": map[string]interface{}{
			"id":          map[string]interface{}{"type": "string"},
			"created_at":  map[string]interface{}{"type": "string", "format": "date-time"},
			"impressions": map[string]interface{}{"type": "integer"},
			"clicks":      map[string]interface{}{"type": "integer"},
			"conversions": map[string]interface{}{"type": "integer"},
			"spend":       map[string]interface{}{"type": "number"},
			"revenue":     map[string]interface{}{"type": "number"},
			"stage":       map[string]interface{}{"type": "string"},
		},
		"required": []string{"id", "created_at"},
	}
	inputSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tenant": map[string]interface{}{
				"type":        "string",
				"description": "Tenant whose decision policy applies",
			},
			"ad": adSchema,
			"history": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "object"},
				"description": "Hourly metric snapshots, oldest first (optional, enables fatigue analysis)",
			},
		},
		"required": []string{"tenant", "ad"},
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "evaluate_ad",
		Description: "Evaluate one ad under a tenant's budget policy and return an OBSERVE/MAINTAIN/SCALE/KILL decision",
		InputSchema: inputSchema,
	}, decisionServer.EvaluateAd)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "explain_decision",
		Description: "Evaluate one ad and explain the resulting decision factor by factor",
		InputSchema: inputSchema,
	}, decisionServer.ExplainDecision)

	stdioTransport := &mcp.StdioTransport{}

	var logBuffer bytes.Buffer
	loggingTransport := &mcp.LoggingTransport{
		Transport: stdioTransport,
		Writer:    &logBuffer,
	}

	logger.Info("MCP Server running via stdio with logging enabled")

	if err := server.Run(context.Background(), loggingTransport); err != nil {
		logger.Fatal("Server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}
