package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/marinerlabs/gridseed/internal/catalog"
	"github.com/marinerlabs/gridseed/internal/geo"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Seed assembly.
	CacheDir         string
	OutputDir        string
	ResolutionDeg    float64
	CompressionLevel string
	MockSeed         int64

	// Model run schedule.
	RunCadenceHours int
	RunLatencyHours int

	// Daemon slicing job.
	SliceInterval time.Duration
	Regions       []geo.Region
	ForecastHours int
	TimeStepHours int
	BufferDeg     float64
	VariableSet   string

	// Seed announcements.
	KafkaBrokers    []string
	KafkaSeedTopic  string
	AnnounceEnabled bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	sliceInterval, err := parseDuration("SLICE_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}

	resolution, err := parseFloat("RESOLUTION_DEG", 0.25)
	if err != nil {
		return nil, err
	}
	bufferDeg, err := parseFloat("BUFFER_DEG", 0.5)
	if err != nil {
		return nil, err
	}

	regions, err := parseRegions(envOrDefault("REGIONS", "20,30,-150,-140"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		CacheDir:         envOrDefault("CACHE_DIR", "/var/lib/gridseed/cache"),
		OutputDir:        envOrDefault("OUTPUT_DIR", "/var/lib/gridseed/out"),
		ResolutionDeg:    resolution,
		CompressionLevel: envOrDefault("COMPRESSION_LEVEL", "default"),
		MockSeed:         parseInt64("MOCK_SEED", 42),

		RunCadenceHours: parseIntDefault("RUN_CADENCE_HOURS", 12),
		RunLatencyHours: parseIntDefault("RUN_LATENCY_HOURS", 6),

		SliceInterval: sliceInterval,
		Regions:       regions,
		ForecastHours: parseIntDefault("FORECAST_HOURS", 120),
		TimeStepHours: parseIntDefault("TIME_STEP_HOURS", 3),
		BufferDeg:     bufferDeg,
		VariableSet:   envOrDefault("VARIABLE_SET", "standard"),

		KafkaBrokers:    parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSeedTopic:  envOrDefault("KAFKA_SEED_TOPIC", "seed-announcements"),
		AnnounceEnabled: os.Getenv("ANNOUNCE_ENABLED") == "true",
	}

	switch cfg.CompressionLevel {
	case "fast", "default", "max":
	default:
		return nil, fmt.Errorf("invalid COMPRESSION_LEVEL %q", cfg.CompressionLevel)
	}
	if _, err := catalog.SetByName(cfg.VariableSet); err != nil {
		return nil, fmt.Errorf("invalid VARIABLE_SET: %w", err)
	}
	if cfg.ResolutionDeg <= 0 {
		return nil, errors.New("RESOLUTION_DEG must be positive")
	}
	if cfg.RunCadenceHours <= 0 || cfg.RunCadenceHours > 24 || 24%cfg.RunCadenceHours != 0 {
		return nil, errors.New("RUN_CADENCE_HOURS must divide 24")
	}
	if cfg.ForecastHours <= 0 || cfg.TimeStepHours <= 0 {
		return nil, errors.New("FORECAST_HOURS and TIME_STEP_HOURS must be positive")
	}
	if len(cfg.Regions) == 0 {
		return nil, errors.New("REGIONS is required")
	}
	if cfg.AnnounceEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("ANNOUNCE_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func parseIntDefault(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

func parseInt64(key string, fallback int64) int64 {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// parseRegions parses "latMin,latMax,lonMin,lonMax" tuples separated
// by semicolons.
func parseRegions(s string) ([]geo.Region, error) {
	var regions []geo.Region
	for _, tuple := range strings.Split(s, ";") {
		tuple = strings.TrimSpace(tuple)
		if tuple == "" {
			continue
		}
		parts := strings.Split(tuple, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid REGIONS tuple %q", tuple)
		}
		var vals [4]float64
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid REGIONS tuple %q: %w", tuple, err)
			}
			vals[i] = v
		}
		region, err := geo.NewRegion(vals[0], vals[1], vals[2], vals[3])
		if err != nil {
			return nil, fmt.Errorf("invalid REGIONS tuple %q: %w", tuple, err)
		}
		regions = append(regions, region)
	}
	return regions, nil
}
