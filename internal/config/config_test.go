package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salesfusion/internal/qualification"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("QUALIFICATION_SCHEMA", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.StorageBackend != "memory" {
		t.Fatalf("expected memory storage by default, got %s", cfg.StorageBackend)
	}
	if cfg.StorageDefaultTTL != 24*time.Hour {
		t.Fatalf("expected default ttl, got %s", cfg.StorageDefaultTTL)
	}
	if cfg.Thresholds.HotLead != 75 || cfg.Thresholds.WarmLead != 50 || cfg.Thresholds.SignificantChange != 15 {
		t.Fatalf("unexpected default thresholds %+v", cfg.Thresholds)
	}
	assert.Equal(t, []int{60, 75, 85}, cfg.NotifyThresholds)
	assert.Equal(t, 5*time.Minute, cfg.NotifyCooldown)
	assert.Equal(t, 5, cfg.NotifyRearmMargin)
	assert.Equal(t, 15*time.Second, cfg.ChatTimeout)
	assert.Equal(t, "none", cfg.CRMProvider)
	assert.False(t, cfg.DebugAPIEnabled)
	assert.Empty(t, cfg.Qualification.Overrides)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("STORAGE_BACKEND", " Redis ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("SLACK_NOTIFY_THRESHOLDS", "50,90")
	t.Setenv("NOTIFY_COOLDOWN", "0s")
	t.Setenv("CHAT_TIMEOUT", "3s")
	t.Setenv("CRM_PROVIDER", "Postgres")
	t.Setenv("QUAL_BUDGET_WEIGHT", "0.4")
	t.Setenv("QUAL_NEED_REQUIRED", "true")
	t.Setenv("QUAL_PAINPOINT_KEYWORDS", "bottleneck, backlog")
	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "redis", cfg.StorageBackend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, []int{50, 90}, cfg.NotifyThresholds)
	assert.Equal(t, time.Duration(0), cfg.NotifyCooldown)
	assert.Equal(t, 3*time.Second, cfg.ChatTimeout)
	assert.Equal(t, "postgres", cfg.CRMProvider)

	budget := cfg.Qualification.Overrides[qualification.CriterionBudget]
	require.NotNil(t, budget.Weight)
	assert.InDelta(t, 0.4, *budget.Weight, 1e-9)
	need := cfg.Qualification.Overrides[qualification.CriterionNeed]
	require.NotNil(t, need.Required)
	assert.True(t, *need.Required)
	assert.Equal(t, []string{"bottleneck", "backlog"}, cfg.Qualification.Overrides[qualification.CriterionPainPoint].Keywords)
}

func TestBadIntListFallsBack(t *testing.T) {
	t.Setenv("SLACK_NOTIFY_THRESHOLDS", "60,high")
	assert.Equal(t, []int{60, 75, 85}, Load().NotifyThresholds)
}

func TestBuildSchema(t *testing.T) {
	t.Setenv("QUALIFICATION_SCHEMA", "")
	t.Setenv("THRESHOLD_SHOW_TALK_TO_SALES", "")
	t.Setenv("QUAL_BUDGET_WEIGHT", "0.3")
	cfg := Load()
	schema, err := cfg.BuildSchema()
	require.NoError(t, err)
	assert.Equal(t, "bant", schema.ID)
	assert.Equal(t, 75, schema.ScoreThreshold)
	def, ok := schema.Criterion(qualification.CriterionBudget)
	require.True(t, ok)
	assert.InDelta(t, 0.3, def.Weight, 1e-9)

	t.Setenv("QUALIFICATION_SCHEMA", "signals")
	t.Setenv("THRESHOLD_SHOW_TALK_TO_SALES", "40")
	schema, err = Load().BuildSchema()
	require.NoError(t, err)
	assert.Equal(t, "signals", schema.ID)
	assert.Equal(t, 40, schema.ScoreThreshold)

	t.Setenv("QUALIFICATION_SCHEMA", "meddic")
	_, err = Load().BuildSchema()
	assert.Error(t, err)
}

func TestBuildSchema_DefaultThresholdFollowsSchema(t *testing.T) {
	t.Setenv("THRESHOLD_SHOW_TALK_TO_SALES", "")
	t.Setenv("QUAL_BUDGET_WEIGHT", "")

	t.Setenv("QUALIFICATION_SCHEMA", "bant")
	cfg := Load()
	assert.Equal(t, 0, cfg.Thresholds.ShowTalkToSales)
	schema, err := cfg.BuildSchema()
	require.NoError(t, err)
	assert.Equal(t, 75, schema.ScoreThreshold)

	t.Setenv("QUALIFICATION_SCHEMA", "signals")
	schema, err = Load().BuildSchema()
	require.NoError(t, err)
	assert.Equal(t, 60, schema.ScoreThreshold)
}

func TestLoadRetentionDefaults(t *testing.T) {
	t.Setenv("TRANSCRIPT_TTL", "")
	t.Setenv("SESSION_IDLE_TIMEOUT", "")
	cfg := Load()
	assert.Equal(t, 720*time.Hour, cfg.TranscriptTTL)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)

	t.Setenv("SESSION_IDLE_TIMEOUT", "10m")
	assert.Equal(t, 10*time.Minute, Load().SessionIdleTTL)
}

func TestBuildSchema_RejectsBadWeight(t *testing.T) {
	t.Setenv("QUALIFICATION_SCHEMA", "bant")
	t.Setenv("QUAL_BUDGET_WEIGHT", "2.5")
	_, err := Load().BuildSchema()
	assert.Error(t, err)
}
