package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/diveroast/internal/analysis"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Retrieval store: "surreal" or "weaviate"
	RetrievalBackend string
	WeaviateURL      string

	// Embeddings
	EmbedProvider  string
	EmbedModel     string
	EmbedDimension int
	OllamaHost     string

	// Model backend
	LLMProvider     string
	LLMModel        string
	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	AWSRegion       string

	// Feature engine and ranking
	AscentRateThreshold   float64
	NDLCritical           float64
	AdverseRatingBelow    int
	AdverseOnHighAscent   bool
	AdverseTags           []string
	DefaultCylinderLiters float64
	TopN                  int
	ThresholdsFile        string

	// Retrieval
	RetrievalK       int
	RetrievalTimeout time.Duration

	// Agent
	MaxToolCalls      int
	TurnTimeout       time.Duration
	ModelRetryBackoff time.Duration

	// HTTP server and sessions
	SessionTTL     time.Duration
	ServerPort     int
	MaxUploadBytes int64

	// Corpus scrape
	CorpusBaseURL       string
	CorpusRatePerSecond float64

	// Tracing; empty disables export
	OTLPEndpoint string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// MaxRetrievalK caps k for every retrieval call.
const MaxRetrievalK = 20

// Load reads configuration from environment variables.
func Load() Config {
	k := getInt("DIVEROAST_RETRIEVAL_K", 5)
	if k > MaxRetrievalK {
		k = MaxRetrievalK
	}

	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "diveroast"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "corpus"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		RetrievalBackend: strings.ToLower(getEnv("DIVEROAST_RETRIEVAL_BACKEND", "surreal")),
		WeaviateURL:      getEnv("WEAVIATE_URL", "http://localhost:8080"),

		EmbedProvider:  strings.ToLower(getEnv("DIVEROAST_EMBED_PROVIDER", "ollama")),
		EmbedModel:     getEnv("DIVEROAST_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getInt("DIVEROAST_EMBED_DIMENSION", 384),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),

		LLMProvider:     strings.ToLower(getEnv("DIVEROAST_LLM_PROVIDER", "gemini")),
		LLMModel:        getEnv("DIVEROAST_LLM_MODEL", "gemini-2.0-flash"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),

		AscentRateThreshold:   getFloat("DIVEROAST_ASCENT_THRESHOLD", 10),
		NDLCritical:           getFloat("DIVEROAST_NDL_CRITICAL", 3),
		AdverseRatingBelow:    getInt("DIVEROAST_ADVERSE_RATING_BELOW", 3),
		AdverseOnHighAscent:   getBool("DIVEROAST_ADVERSE_ON_HIGH_ASCENT", false),
		AdverseTags:           getList("DIVEROAST_ADVERSE_TAGS", "current,surge,poor visibility,low visibility,rough"),
		DefaultCylinderLiters: getFloat("DIVEROAST_CYLINDER_LITERS", 12),
		TopN:                  getInt("DIVEROAST_TOP_N", 3),
		ThresholdsFile:        getEnv("DIVEROAST_THRESHOLDS_FILE", ""),

		RetrievalK:       k,
		RetrievalTimeout: getDuration("DIVEROAST_RETRIEVAL_TIMEOUT", 10*time.Second),

		MaxToolCalls:      getInt("DIVEROAST_MAX_TOOL_CALLS", 8),
		TurnTimeout:       getDuration("DIVEROAST_TURN_TIMEOUT", 2*time.Minute),
		ModelRetryBackoff: getDuration("DIVEROAST_MODEL_RETRY_BACKOFF", 500*time.Millisecond),

		SessionTTL:     getDuration("DIVEROAST_SESSION_TTL", time.Hour),
		ServerPort:     getInt("DIVEROAST_SERVER_PORT", 8585),
		MaxUploadBytes: int64(getInt("DIVEROAST_MAX_UPLOAD_BYTES", 20<<20)),

		CorpusBaseURL:       getEnv("DAN_WP_BASE_URL", "https://dan.org/wp-json/wp/v2/"),
		CorpusRatePerSecond: getFloat("DAN_WP_RATE", 2),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		LogFile:  getEnv("DIVEROAST_LOG_FILE", "/tmp/diveroast.log"),
		LogLevel: parseLogLevel(getEnv("DIVEROAST_LOG_LEVEL", "INFO")),
	}
}

// Thresholds builds the analysis thresholds from the defaults, the
// environment overrides and, when configured, the YAML thresholds file.
func (c Config) Thresholds() (analysis.Thresholds, error) {
	th := analysis.DefaultThresholds()
	if c.ThresholdsFile != "" {
		data, err := os.ReadFile(c.ThresholdsFile)
		if err != nil {
			return th, fmt.Errorf("read thresholds file: %w", err)
		}
		if err := applyThresholdsYAML(&th, data); err != nil {
			return th, fmt.Errorf("parse thresholds file %s: %w", c.ThresholdsFile, err)
		}
	}

	th.AscentRate = c.AscentRateThreshold
	th.NDLCritical = c.NDLCritical
	th.AdverseRatingBelow = c.AdverseRatingBelow
	th.AdverseOnHighAscent = c.AdverseOnHighAscent
	th.AdverseTags = c.AdverseTags
	th.CylinderLiters = c.DefaultCylinderLiters
	th.TopN = c.TopN
	return th, nil
}

// applyThresholdsYAML overlays a thresholds document onto th. Metric
// entries replace the default boundary for the same metric; other metrics
// keep their defaults.
func applyThresholdsYAML(th *analysis.Thresholds, data []byte) error {
	var file analysis.Thresholds
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	for _, b := range file.Metrics {
		replaced := false
		for i := range th.Metrics {
			if th.Metrics[i].Metric == b.Metric {
				th.Metrics[i] = b
				replaced = true
				break
			}
		}
		if !replaced {
			return fmt.Errorf("unknown metric %q", b.Metric)
		}
	}
	if file.AdverseWeight > 0 {
		th.AdverseWeight = file.AdverseWeight
	}
	if file.MaxExcess > 0 {
		th.MaxExcess = file.MaxExcess
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultVal
}

func getList(key, defaultVal string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultVal), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
