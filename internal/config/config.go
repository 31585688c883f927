package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// EstimatorCategory holds the tuning knobs for a single reasoning-effort
// category (analytical, comparative, creative, complex).
type EstimatorCategory struct {
	Enabled  bool     `yaml:"enabled"`
	Weight   float64  `yaml:"weight"`
	Keywords []string `yaml:"keywords"`
}

// EstimatorConfig is the Cfg object consumed by the reasoning effort
// estimator (internal/estimator). It is swapped atomically whenever
// auto-tuning produces a new version; see Snapshot.
type EstimatorConfig struct {
	Categories map[string]EstimatorCategory `yaml:"categories"`

	Thresholds struct {
		HighWordCount   int     `yaml:"high_word_count"`
		MediumWordCount int     `yaml:"medium_word_count"`
		HighScale       float64 `yaml:"high_scale"`
		MediumScale     float64 `yaml:"medium_scale"`
	} `yaml:"thresholds"`

	Overrides struct {
		LowConfidence        float64 `yaml:"low_confidence"`
		DeadlinePressure     float64 `yaml:"deadline_pressure"`
		CategoryOverlapBonus float64 `yaml:"category_overlap_bonus"`
	} `yaml:"overrides"`

	Autotune struct {
		Enabled       bool `yaml:"enabled"`
		AnalysisAfter int  `yaml:"analysis_after"`
		RetainHistory bool `yaml:"retain_history"`
		HistoryLimit  int  `yaml:"history_limit"`
	} `yaml:"autotune"`
}

// DefaultEstimatorConfig returns the baseline Cfg used until autotune
// produces a new one, or until CONFIG_FILE overrides it.
func DefaultEstimatorConfig() EstimatorConfig {
	cfg := EstimatorConfig{
		Categories: map[string]EstimatorCategory{
			"analytical": {
				Enabled: true, Weight: 1.0,
				Keywords: []string{"analyze", "compare", "evaluate", "assess", "investigate"},
			},
			"comparative": {
				Enabled: true, Weight: 1.0,
				Keywords: []string{"versus", "vs", "tradeoff", "trade-off", "contrast", "better"},
			},
			"creative": {
				Enabled: true, Weight: 0.8,
				Keywords: []string{"design", "brainstorm", "imagine", "invent", "propose"},
			},
			"complex": {
				Enabled: true, Weight: 1.5,
				Keywords: []string{"architecture", "distributed", "concurrency", "optimize", "refactor"},
			},
		},
	}
	cfg.Thresholds.HighWordCount = 120
	cfg.Thresholds.MediumWordCount = 40
	cfg.Thresholds.HighScale = 8.0
	cfg.Thresholds.MediumScale = 4.0
	cfg.Overrides.LowConfidence = 0.35
	cfg.Overrides.DeadlinePressure = 0.7
	cfg.Overrides.CategoryOverlapBonus = 0.5
	cfg.Autotune.Enabled = true
	cfg.Autotune.AnalysisAfter = 50
	cfg.Autotune.RetainHistory = true
	cfg.Autotune.HistoryLimit = 2000
	return cfg
}

// RouterConfig holds the tuning knobs for task clustering and routing
// (internal/router).
type RouterConfig struct {
	ClusterMethod string  `yaml:"cluster_method"` // "kmeans" or "density"
	K             int     `yaml:"k"`
	Eps           float64 `yaml:"eps"`
	MinPts        int     `yaml:"min_pts"`
	MinSamples    int     `yaml:"min_samples"`

	EpsilonMin float64 `yaml:"epsilon_min"`
	EpsilonMax float64 `yaml:"epsilon_max"`
	Tau        float64 `yaml:"tau"`

	WeightSuccess  float64 `yaml:"weight_success"`
	WeightDuration float64 `yaml:"weight_duration"`

	RebuildInterval int `yaml:"rebuild_interval_sec"`
	EmbeddingDim    int `yaml:"embedding_dim"`
}

// DefaultRouterConfig returns the defaults named in §4.7: ε_min=0.05,
// ε_max=0.3, τ=200.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		ClusterMethod:   "kmeans",
		K:               6,
		Eps:             0.5,
		MinPts:          3,
		MinSamples:      5,
		EpsilonMin:      0.05,
		EpsilonMax:      0.3,
		Tau:             200,
		WeightSuccess:   0.7,
		WeightDuration:  0.3,
		RebuildInterval: 300,
		EmbeddingDim:    32,
	}
}

// AppConfig holds all process configuration for the fabric.
type AppConfig struct {
	// Bus (C2)
	BusURL      string `yaml:"bus_url"`
	BusPassword string `yaml:"bus_password"`

	// Agent identity
	AgentName   string `yaml:"agent_name"`
	AgentAPIKey string `yaml:"agent_api_key"`

	// Heartbeat Monitor (C3)
	HeartbeatIntervalSec int `yaml:"heartbeat_interval_sec"`
	HeartbeatTTLSec      int `yaml:"heartbeat_ttl_sec"`

	// Orchestrator (C8)
	MaxRounds          int     `yaml:"max_rounds"`
	TaskTimeoutSec      int     `yaml:"task_timeout_sec"`
	PlateauDelta       float64 `yaml:"plateau_delta"`
	ConsensusThreshold float64 `yaml:"consensus_threshold"`

	// Estimator and router tuning (§4.6, §4.7)
	Estimator EstimatorConfig `yaml:"estimator"`
	Router    RouterConfig    `yaml:"router"`

	// Gateway (C5)
	GatewayAddr       string `yaml:"gateway_addr"`
	GatewayPingSec    int    `yaml:"gateway_ping_sec"`
	GatewaySendQueue  int    `yaml:"gateway_send_queue"`

	// Observability (C10)
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
	PrometheusPort string `yaml:"prometheus_port"`
	Environment    string `yaml:"environment"`
	LogLevel       string `yaml:"log_level"`
	HealthPort     string `yaml:"health_port"`

	// Agent Runtime (C4)
	DedupeCacheSize int `yaml:"dedupe_cache_size"`
	HistorySize     int `yaml:"history_size"`
	CallTimeoutSec  int `yaml:"call_timeout_sec"`
}

// Load reads an optional CONFIG_FILE YAML overlay, then applies environment
// variables on top of it (env always wins), returning a fully populated
// AppConfig. Per the fabric's "global mutable configuration" design note,
// callers that need live-updatable config should wrap the result in a
// Snapshot rather than mutate it in place.
func Load() *AppConfig {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	cfg.BusURL = getEnv("BUS_URL", cfg.BusURL)
	cfg.BusPassword = getEnv("BUS_PASSWORD", cfg.BusPassword)

	cfg.AgentName = getEnv("AGENT_NAME", cfg.AgentName)
	cfg.AgentAPIKey = getEnv("AGENT_API_KEY", cfg.AgentAPIKey)

	cfg.HeartbeatIntervalSec = getEnvAsInt("HEARTBEAT_INTERVAL_SEC", cfg.HeartbeatIntervalSec)
	cfg.HeartbeatTTLSec = getEnvAsInt("HEARTBEAT_TTL_SEC", cfg.HeartbeatTTLSec)

	cfg.MaxRounds = getEnvAsInt("MAX_ROUNDS", cfg.MaxRounds)
	cfg.TaskTimeoutSec = getEnvAsInt("TASK_TIMEOUT_SEC", cfg.TaskTimeoutSec)
	cfg.PlateauDelta = getEnvAsFloat("PLATEAU_DELTA", cfg.PlateauDelta)
	cfg.ConsensusThreshold = getEnvAsFloat("CONSENSUS_THRESHOLD", cfg.ConsensusThreshold)

	cfg.GatewayAddr = getEnv("GATEWAY_ADDR", cfg.GatewayAddr)
	cfg.GatewayPingSec = getEnvAsInt("GATEWAY_PING_SEC", cfg.GatewayPingSec)
	cfg.GatewaySendQueue = getEnvAsInt("GATEWAY_SEND_QUEUE", cfg.GatewaySendQueue)

	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)
	cfg.ServiceVersion = getEnv("SERVICE_VERSION", cfg.ServiceVersion)
	cfg.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", cfg.JaegerEndpoint)
	cfg.PrometheusPort = getEnv("PROMETHEUS_PORT", cfg.PrometheusPort)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.HealthPort = getEnv("HEALTH_PORT", cfg.HealthPort)

	cfg.DedupeCacheSize = getEnvAsInt("DEDUPE_CACHE_SIZE", cfg.DedupeCacheSize)
	cfg.HistorySize = getEnvAsInt("HISTORY_SIZE", cfg.HistorySize)
	cfg.CallTimeoutSec = getEnvAsInt("CALL_TIMEOUT_SEC", cfg.CallTimeoutSec)

	return cfg
}

func defaults() *AppConfig {
	return &AppConfig{
		BusURL:      "redis://localhost:6379/0",
		BusPassword: "",

		AgentName: "agent",

		HeartbeatIntervalSec: 5,
		HeartbeatTTLSec:      15,

		MaxRounds:          8,
		TaskTimeoutSec:     120,
		PlateauDelta:       0.02,
		ConsensusThreshold: 0.85,

		Estimator: DefaultEstimatorConfig(),
		Router:    DefaultRouterConfig(),

		GatewayAddr:      ":8000",
		GatewayPingSec:   30,
		GatewaySendQueue: 256,

		ServiceName:    "fabric",
		ServiceVersion: "1.0.0",
		JaegerEndpoint: "127.0.0.1:4317",
		PrometheusPort: "9090",
		Environment:    "development",
		LogLevel:       "INFO",
		HealthPort:     "8080",

		DedupeCacheSize: 1024,
		HistorySize:     256,
		CallTimeoutSec:  60,
	}
}

// GetBusAddress returns the bus connection URL.
func (c *AppConfig) GetBusAddress() string {
	return c.BusURL
}

// GetJaegerWebURL returns the tracing UI URL for operator convenience.
func (c *AppConfig) GetJaegerWebURL() string {
	return "http://localhost:16686"
}

// GetPrometheusURL returns the Prometheus web interface URL.
func (c *AppConfig) GetPrometheusURL() string {
	return "http://localhost:" + c.PrometheusPort
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
