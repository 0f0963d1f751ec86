package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/cropsight/veg-analytics-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration
	WorkerCount        int

	// Path to the YAML rate-policy file. Empty means built-in defaults.
	RatePolicyPath string

	// Soil-grid enrichment configuration.
	SoilGridEnabled   bool
	SoilGridBaseURL   string
	SoilGridTimeout   time.Duration
	SoilGridCacheSize int

	// Analytics thresholds. Every component reads its knobs from here so
	// agronomists can retune without a rebuild.
	SmootherWindow   int
	SmootherDegree   int
	MaxCloudCoverPct float64
	BaselineWindow   int
	ZScoreThreshold  float64
	HighSeverityZ    float64
	SuddenDropDelta  float64
	MinHistory       int
	StableSlope      float64
	BreakpointDelta  float64
	BreakpointWindow int
	ZoneCount        int
	ZoneMinSamples   int
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is merged in first,
// without overriding variables already exported.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	flushInterval, err := parseDuration("BATCH_FLUSH_INTERVAL", "5s")
	if err != nil {
		return nil, err
	}
	soilTimeout, err := parseDuration("SOILGRID_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	batchSize, err := parsePositiveInt("BATCH_SIZE", 100)
	if err != nil {
		return nil, err
	}
	workerCount, err := parsePositiveInt("WORKER_COUNT", 8)
	if err != nil {
		return nil, err
	}

	soilEnabled := false
	if v := os.Getenv("SOILGRID_ENABLED"); v != "" {
		soilEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:       parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   envOrDefault("KAFKA_SOURCE_TOPIC", "field-observations"),
		KafkaSinkTopic:     envOrDefault("KAFKA_SINK_TOPIC", "field-signals"),
		KafkaGroupID:       envOrDefault("KAFKA_GROUP_ID", "veg-analytics"),
		HTTPAddr:           envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		WorkerCount:        workerCount,

		RatePolicyPath: os.Getenv("RATE_POLICY_PATH"),

		SoilGridEnabled:   soilEnabled,
		SoilGridBaseURL:   envOrDefault("SOILGRID_BASE_URL", "https://rest.isric.org/soilgrids/v2.0"),
		SoilGridTimeout:   soilTimeout,
		SoilGridCacheSize: parseCacheSize(),
	}

	if err := loadThresholds(cfg); err != nil {
		return nil, err
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}

	return cfg, nil
}

func loadThresholds(cfg *Config) error {
	var err error
	if cfg.SmootherWindow, err = parsePositiveInt("SMOOTHER_WINDOW", 5); err != nil {
		return err
	}
	if cfg.SmootherDegree, err = parsePositiveInt("SMOOTHER_DEGREE", 2); err != nil {
		return err
	}
	if cfg.MaxCloudCoverPct, err = parseFloat("MAX_CLOUD_COVER_PCT", 40); err != nil {
		return err
	}
	if cfg.BaselineWindow, err = parsePositiveInt("BASELINE_WINDOW", 10); err != nil {
		return err
	}
	if cfg.ZScoreThreshold, err = parseFloat("ZSCORE_THRESHOLD", 2.0); err != nil {
		return err
	}
	if cfg.HighSeverityZ, err = parseFloat("HIGH_SEVERITY_Z", 3.0); err != nil {
		return err
	}
	if cfg.SuddenDropDelta, err = parseFloat("SUDDEN_DROP_DELTA", 0.25); err != nil {
		return err
	}
	if cfg.MinHistory, err = parsePositiveInt("MIN_HISTORY", 3); err != nil {
		return err
	}
	if cfg.StableSlope, err = parseFloat("STABLE_SLOPE", 0.005); err != nil {
		return err
	}
	if cfg.BreakpointDelta, err = parseFloat("BREAKPOINT_DELTA", 0.01); err != nil {
		return err
	}
	if cfg.BreakpointWindow, err = parsePositiveInt("BREAKPOINT_WINDOW", 3); err != nil {
		return err
	}
	if cfg.ZoneCount, err = parsePositiveInt("ZONE_COUNT", 5); err != nil {
		return err
	}
	if cfg.ZoneMinSamples, err = parsePositiveInt("ZONE_MIN_SAMPLES", 10); err != nil {
		return err
	}

	if cfg.SmootherWindow%2 == 0 {
		return errors.New("SMOOTHER_WINDOW must be odd")
	}
	if cfg.SmootherDegree >= cfg.SmootherWindow {
		return errors.New("SMOOTHER_DEGREE must be below SMOOTHER_WINDOW")
	}
	if cfg.ZoneCount < 2 {
		return errors.New("ZONE_COUNT must be at least 2")
	}
	return nil
}

// SmootherConfig returns the smoothing settings as the analytics core wants them.
func (c *Config) SmootherConfig() domain.SmootherConfig {
	return domain.SmootherConfig{
		Window:           c.SmootherWindow,
		Degree:           c.SmootherDegree,
		MaxCloudCoverPct: c.MaxCloudCoverPct,
	}
}

func (c *Config) BaselineConfig() domain.BaselineConfig {
	return domain.BaselineConfig{Window: c.BaselineWindow}
}

func (c *Config) DetectorConfig() domain.DetectorConfig {
	return domain.DetectorConfig{
		ZScoreThreshold: c.ZScoreThreshold,
		HighSeverityZ:   c.HighSeverityZ,
		SuddenDropDelta: c.SuddenDropDelta,
		MinHistory:      c.MinHistory,
	}
}

func (c *Config) TrendConfig() domain.TrendConfig {
	return domain.TrendConfig{
		StableSlope:      c.StableSlope,
		BreakpointDelta:  c.BreakpointDelta,
		BreakpointWindow: c.BreakpointWindow,
	}
}

func (c *Config) PhenologyConfig() domain.PhenologyConfig {
	return domain.PhenologyConfig{
		MinPoints:        c.MinHistory + 1,
		PeakProximity:    0.9,
		LowFraction:      0.25,
		HarvestDropDelta: c.SuddenDropDelta,
	}
}

func (c *Config) ChangeConfig() domain.ChangeConfig {
	return domain.ChangeConfig{
		SharpNDVIDrop: c.SuddenDropDelta,
		NDWIRise:      0.15,
		FloodNDVIDrop: c.SuddenDropDelta,
		BareSoilNDVI:  0.2,
		PlantingRise:  0.15,
	}
}

func (c *Config) ZoneConfig() domain.ZoneConfig {
	return domain.ZoneConfig{ZoneCount: c.ZoneCount, MinSamples: c.ZoneMinSamples}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(raw string) []string {
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}

func parseCacheSize() int {
	if s := os.Getenv("SOILGRID_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
