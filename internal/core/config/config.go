package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultAnalysisURL = "https://refactor-api-geo.fly.dev/check_overlap"

type EventsCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	GroupID string
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int

	AnalysisURL     string
	AnalysisTimeout time.Duration
	UploadMaxBytes  int64

	SessionStore    string
	SessionTTL      time.Duration
	SessionCapacity int
	RedisAddr       string
	StoreOpTimeout  time.Duration

	HotspotRes     int
	AllowedOrigins []string

	Events  EventsCfg
	Metrics MetricsCfg
}

// FromEnv loads an optional .env file and then reads the process environment.
func FromEnv() Config {
	_ = godotenv.Load()

	res := getint("HOTSPOT_RES", 7)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	store := strings.ToLower(getenv("SESSION_STORE", "memory"))
	if store != "redis" {
		store = "memory"
	}

	capacity := getint("SESSION_CAPACITY", 1024)
	if capacity <= 0 {
		capacity = 1024
	}

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),

		AnalysisURL:     getenv("ANALYSIS_URL", DefaultAnalysisURL),
		AnalysisTimeout: getduration("ANALYSIS_TIMEOUT", 60*time.Second),
		UploadMaxBytes:  getint64("UPLOAD_MAX_BYTES", 32<<20),

		SessionStore:    store,
		SessionTTL:      getduration("SESSION_TTL", 2*time.Hour),
		SessionCapacity: capacity,
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		StoreOpTimeout:  getduration("STORE_OP_TIMEOUT", 250*time.Millisecond),

		HotspotRes:     res,
		AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "*")),

		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "overlap-analysis"),
			GroupID: getenv("KAFKA_GROUP_ID", "overlap-dashboard-tail"),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

// BrokerList splits the comma-separated broker list.
func (e EventsCfg) BrokerList() []string {
	return splitList(e.Brokers)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "a, b,,c" into [a b c]
func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
