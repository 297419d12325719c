package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/salesfusion/internal/qualification"
)

// Config holds application configuration
type Config struct {
	Port                 string
	Env                  string
	LogLevel             string
	CORSAllowedOrigins   []string
	RateLimitMaxRequests int
	RateLimitIPRequests  int
	RateLimitWindow      time.Duration

	StorageBackend    string
	RedisAddr         string
	RedisPassword     string
	RedisTLS          bool
	StorageKeyPrefix  string
	StorageDefaultTTL time.Duration
	TranscriptTTL     time.Duration
	SessionIdleTTL    time.Duration

	Qualification QualificationConfig
	Thresholds    Thresholds

	SlackWebhookURL   string
	SlackEnabled      bool
	NotifyThresholds  []int
	NotifyCooldown    time.Duration
	NotifyRearmMargin int

	EmailProvider       string
	SendGridAPIKey      string
	SendGridFromEmail   string
	SendGridFromName    string
	SalesTeamEmail      string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	ChatAPIURL  string
	ChatAPIKey  string
	ChatModel   string
	ChatTimeout time.Duration

	CRMProvider string
	DatabaseURL string

	DebugAPIEnabled bool
	AdminJWTSecret  string
}

// QualificationConfig selects and tunes the scoring schema.
type QualificationConfig struct {
	Schema    string
	Window    int
	Overrides map[string]CriterionOverride
}

// CriterionOverride replaces parts of one built-in criterion. Nil fields
// keep the schema default.
type CriterionOverride struct {
	Weight   *float64
	Required *bool
	Keywords []string
}

// Thresholds are the score levels used across the widget.
type Thresholds struct {
	ShowTalkToSales   int
	HotLead           int
	WarmLead          int
	SignificantChange int
}

// overridableCriteria maps the env var infix to the criterion ID.
var overridableCriteria = map[string]string{
	"BUDGET":    qualification.CriterionBudget,
	"TIMELINE":  qualification.CriterionTimeline,
	"PAINPOINT": qualification.CriterionPainPoint,
	"AUTHORITY": qualification.CriterionAuthority,
	"NEED":      qualification.CriterionNeed,
}

func Load() *Config {
	return &Config{
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitMaxRequests: getEnvAsInt("RATE_LIMIT_MAX_REQUESTS", 10),
		RateLimitIPRequests:  getEnvAsInt("RATE_LIMIT_IP_MAX_REQUESTS", 60),
		RateLimitWindow:      getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),

		StorageBackend:    strings.ToLower(strings.TrimSpace(getEnv("STORAGE_BACKEND", "memory"))),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisTLS:          getEnvAsBool("REDIS_TLS", false),
		StorageKeyPrefix:  getEnv("STORAGE_KEY_PREFIX", "salesfusion:"),
		StorageDefaultTTL: getEnvAsDuration("STORAGE_DEFAULT_TTL", 24*time.Hour),
		TranscriptTTL:     getEnvAsDuration("TRANSCRIPT_TTL", 30*24*time.Hour),
		SessionIdleTTL:    getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),

		Qualification: QualificationConfig{
			Schema:    strings.ToLower(strings.TrimSpace(getEnv("QUALIFICATION_SCHEMA", "bant"))),
			Window:    getEnvAsInt("QUALIFICATION_WINDOW", qualification.DefaultWindow),
			Overrides: loadOverrides(),
		},
		Thresholds: Thresholds{
			// zero keeps the schema's own threshold (75 bant, 60 signals)
			ShowTalkToSales:   getEnvAsInt("THRESHOLD_SHOW_TALK_TO_SALES", 0),
			HotLead:           getEnvAsInt("THRESHOLD_HOT_LEAD", 75),
			WarmLead:          getEnvAsInt("THRESHOLD_WARM_LEAD", 50),
			SignificantChange: getEnvAsInt("THRESHOLD_SIGNIFICANT_CHANGE", 15),
		},

		// Slack
		SlackWebhookURL:   getEnv("SLACK_WEBHOOK_URL", ""),
		SlackEnabled:      getEnvAsBool("SLACK_ENABLED", true),
		NotifyThresholds:  getEnvAsIntList("SLACK_NOTIFY_THRESHOLDS", []int{60, 75, 85}),
		NotifyCooldown:    getEnvAsDuration("NOTIFY_COOLDOWN", 5*time.Minute),
		NotifyRearmMargin: getEnvAsInt("NOTIFY_REARM_MARGIN", 5),

		// Handoff e-mail
		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:   getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:    getEnv("SENDGRID_FROM_NAME", "SalesFusion"),
		SalesTeamEmail:      getEnv("SALES_TEAM_EMAIL", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		// Chat backend
		ChatAPIURL:  getEnv("CHAT_API_URL", ""),
		ChatAPIKey:  getEnv("CHAT_API_KEY", ""),
		ChatModel:   getEnv("CHAT_MODEL", ""),
		ChatTimeout: getEnvAsDuration("CHAT_TIMEOUT", 15*time.Second),

		CRMProvider: strings.ToLower(strings.TrimSpace(getEnv("CRM_PROVIDER", "none"))),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		DebugAPIEnabled: getEnvAsBool("DEBUG_API_ENABLED", false),
		AdminJWTSecret:  getEnv("ADMIN_JWT_SECRET", ""),
	}
}

func loadOverrides() map[string]CriterionOverride {
	out := make(map[string]CriterionOverride)
	for infix, id := range overridableCriteria {
		var o CriterionOverride
		if v, err := strconv.ParseFloat(getEnv("QUAL_"+infix+"_WEIGHT", ""), 64); err == nil {
			o.Weight = &v
		}
		if v, err := strconv.ParseBool(getEnv("QUAL_"+infix+"_REQUIRED", "")); err == nil {
			o.Required = &v
		}
		o.Keywords = getEnvAsList("QUAL_"+infix+"_KEYWORDS", nil)
		if o.Weight != nil || o.Required != nil || len(o.Keywords) > 0 {
			out[id] = o
		}
	}
	return out
}

// BuildSchema resolves the configured schema and applies the criterion
// overrides and the talk-to-sales threshold. Overrides naming a criterion
// the schema lacks are ignored.
func (c *Config) BuildSchema() (qualification.Schema, error) {
	schema, ok := qualification.SchemaByID(c.Qualification.Schema)
	if !ok {
		return qualification.Schema{}, fmt.Errorf("config: unknown qualification schema %q", c.Qualification.Schema)
	}
	for id, o := range c.Qualification.Overrides {
		schema.Override(id, o.Weight, o.Required, o.Keywords)
	}
	if c.Thresholds.ShowTalkToSales > 0 {
		schema.ScoreThreshold = c.Thresholds.ShowTalkToSales
	}
	if err := schema.Validate(); err != nil {
		return qualification.Schema{}, fmt.Errorf("config: %w", err)
	}
	return schema, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnvAsIntList parses a comma separated list of integers. Any bad entry
// falls back to the default.
func getEnvAsIntList(key string, defaultValue []int) []int {
	parts := getEnvAsList(key, nil)
	if len(parts) == 0 {
		return defaultValue
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return defaultValue
		}
		out = append(out, v)
	}
	return out
}
