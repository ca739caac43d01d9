package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config carries every tunable of the engine. Values resolve in three layers:
// built-in defaults, then an optional YAML file named by CONFIG_PATH, then
// environment variables.
type Config struct {
	APIPort  string `yaml:"api_port"`
	LogLevel string `yaml:"log_level"`

	OllamaURL        string `yaml:"ollama_url"`
	OllamaGenModel   string `yaml:"ollama_gen_model"`
	OllamaEmbedModel string `yaml:"ollama_embed_model"`

	QdrantURL        string `yaml:"qdrant_url"`
	QdrantCollection string `yaml:"qdrant_collection"`

	TopKInitial int `yaml:"top_k_initial"`
	TopKFinal   int `yaml:"top_k_final"`

	MultihopEnabled       bool `yaml:"multihop_enabled"`
	MultihopMaxConcurrent int  `yaml:"multihop_max_concurrent"`
	MultihopTopKPerRound  int  `yaml:"multihop_top_k_per_round"`
	MultihopRoundTimeoutS int  `yaml:"multihop_round_timeout_seconds"`

	BoostSingle float64 `yaml:"boost_single"`
	BoostDual   float64 `yaml:"boost_dual"`
	BoostMulti  float64 `yaml:"boost_multi"`

	HydeEnabled             bool    `yaml:"hyde_enabled"`
	HydeRRFKConst           int     `yaml:"hyde_rrf_k_const"`
	HydeDocShare            float64 `yaml:"hyde_doc_share"`
	HydeQueryShare          float64 `yaml:"hyde_query_share"`
	HydeMaxTokens           int     `yaml:"hyde_max_tokens"`
	HydeGenerateTimeoutS    int     `yaml:"hyde_generate_timeout_seconds"`
	FallbackMinScore        float64 `yaml:"fallback_min_score"`
	FallbackAcceptRatio     float64 `yaml:"fallback_accept_ratio"`
	FallbackOverridesPolicy bool    `yaml:"fallback_overrides_policy"`

	ClassifyTimeoutS  int `yaml:"classify_timeout_seconds"`
	ClassifyMaxTokens int `yaml:"classify_max_tokens"`

	APIRateLimitRPS   float64 `yaml:"api_rate_limit_rps"`
	APIRateLimitBurst int     `yaml:"api_rate_limit_burst"`
	APIMaxConcurrent  int     `yaml:"api_max_concurrent"`
	APIBackpressureMS int     `yaml:"api_backpressure_wait_ms"`

	RetryMaxAttempts int  `yaml:"retry_max_attempts"`
	BreakerEnabled   bool `yaml:"breaker_enabled"`
}

func defaults() Config {
	return Config{
		APIPort:  "8080",
		LogLevel: "info",

		OllamaURL:        "http://localhost:11434",
		OllamaGenModel:   "llama3.1:8b",
		OllamaEmbedModel: "nomic-embed-text",

		QdrantURL:        "http://localhost:6333",
		QdrantCollection: "chunks",

		TopKInitial: 20,
		TopKFinal:   8,

		MultihopEnabled:       true,
		MultihopMaxConcurrent: 4,
		MultihopTopKPerRound:  8,
		MultihopRoundTimeoutS: 10,

		BoostSingle: 1.0,
		BoostDual:   1.3,
		BoostMulti:  1.5,

		HydeEnabled:             true,
		HydeRRFKConst:           60,
		HydeDocShare:            0.7,
		HydeQueryShare:          0.3,
		HydeMaxTokens:           220,
		HydeGenerateTimeoutS:    15,
		FallbackMinScore:        0.30,
		FallbackAcceptRatio:     1.2,
		FallbackOverridesPolicy: false,

		ClassifyTimeoutS:  8,
		ClassifyMaxTokens: 300,

		APIRateLimitRPS:   0,
		APIRateLimitBurst: 10,
		APIMaxConcurrent:  0,
		APIBackpressureMS: 100,

		RetryMaxAttempts: 3,
		BreakerEnabled:   true,
	}
}

// Load resolves the effective configuration. A missing CONFIG_PATH file is an
// error; an unset CONFIG_PATH is not.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	envStr("API_PORT", &c.APIPort)
	envStr("LOG_LEVEL", &c.LogLevel)

	envStr("OLLAMA_URL", &c.OllamaURL)
	envStr("OLLAMA_GEN_MODEL", &c.OllamaGenModel)
	envStr("OLLAMA_EMBED_MODEL", &c.OllamaEmbedModel)

	envStr("QDRANT_URL", &c.QdrantURL)
	envStr("QDRANT_COLLECTION", &c.QdrantCollection)

	envInt("TOP_K_INITIAL", &c.TopKInitial)
	envInt("TOP_K_FINAL", &c.TopKFinal)

	envBool("MULTIHOP_ENABLED", &c.MultihopEnabled)
	envInt("MULTIHOP_MAX_CONCURRENT", &c.MultihopMaxConcurrent)
	envInt("MULTIHOP_TOP_K_PER_ROUND", &c.MultihopTopKPerRound)
	envInt("MULTIHOP_ROUND_TIMEOUT_SECONDS", &c.MultihopRoundTimeoutS)

	envFloat("BOOST_SINGLE", &c.BoostSingle)
	envFloat("BOOST_DUAL", &c.BoostDual)
	envFloat("BOOST_MULTI", &c.BoostMulti)

	envBool("HYDE_ENABLED", &c.HydeEnabled)
	envInt("HYDE_RRF_K_CONST", &c.HydeRRFKConst)
	envFloat("HYDE_DOC_SHARE", &c.HydeDocShare)
	envFloat("HYDE_QUERY_SHARE", &c.HydeQueryShare)
	envInt("HYDE_MAX_TOKENS", &c.HydeMaxTokens)
	envInt("HYDE_GENERATE_TIMEOUT_SECONDS", &c.HydeGenerateTimeoutS)
	envFloat("FALLBACK_MIN_SCORE", &c.FallbackMinScore)
	envFloat("FALLBACK_ACCEPT_RATIO", &c.FallbackAcceptRatio)
	envBool("FALLBACK_OVERRIDES_POLICY", &c.FallbackOverridesPolicy)

	envInt("CLASSIFY_TIMEOUT_SECONDS", &c.ClassifyTimeoutS)
	envInt("CLASSIFY_MAX_TOKENS", &c.ClassifyMaxTokens)

	envFloat("API_RATE_LIMIT_RPS", &c.APIRateLimitRPS)
	envInt("API_RATE_LIMIT_BURST", &c.APIRateLimitBurst)
	envInt("API_MAX_CONCURRENT", &c.APIMaxConcurrent)
	envInt("API_BACKPRESSURE_WAIT_MS", &c.APIBackpressureMS)

	envInt("RETRY_MAX_ATTEMPTS", &c.RetryMaxAttempts)
	envBool("BREAKER_ENABLED", &c.BreakerEnabled)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func envFloat(key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = f
	}
}

func envBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}
