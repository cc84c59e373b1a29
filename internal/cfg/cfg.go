package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the config file nor the environment sets a value.
const (
	DefaultModelPath      = "models/loan_model.json"
	DefaultServerPort     = 8000
	DefaultRequestTimeout = 10 * time.Second
	DefaultTestSize       = 0.2
	DefaultSeed           = 42
	DefaultDriftWindow    = 1000
)

type Settings struct {
	DataPath       string // training CSV
	ModelPath      string // pipeline artifact
	RegistryPath   string // bbolt registry directory, optional
	ServerPort     int
	RequestTimeout time.Duration
	CacheModel     bool // keep a loaded pipeline between requests
	TestSize       float64
	Seed           uint64
	DriftWindow    int // served applicants kept for drift checks, 0 disables
}

type ConfigFile struct {
	Data struct {
		TrainPath    string `yaml:"trainPath"`
		RegistryPath string `yaml:"registryPath"`
	} `yaml:"data"`

	Model struct {
		Path     string  `yaml:"path"`
		TestSize float64 `yaml:"testSize"`
		Seed     *uint64 `yaml:"seed"`
	} `yaml:"model"`

	Server struct {
		Port           int    `yaml:"port"`
		RequestTimeout string `yaml:"requestTimeout"`
		CacheModel     *bool  `yaml:"cacheModel"`
		DriftWindow    *int   `yaml:"driftWindow"`
	} `yaml:"server"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	requestTimeout, err := time.ParseDuration(config.Server.RequestTimeout)
	if err != nil {
		requestTimeout = DefaultRequestTimeout
	}

	cacheModel := true
	if config.Server.CacheModel != nil {
		cacheModel = *config.Server.CacheModel
	}

	seed := uint64(DefaultSeed)
	if config.Model.Seed != nil {
		seed = *config.Model.Seed
	}

	driftWindow := DefaultDriftWindow
	if config.Server.DriftWindow != nil {
		driftWindow = *config.Server.DriftWindow
	}

	// Override with environment variables if they exist
	settings := Settings{
		DataPath:       getEnvOrDefault("DATA_PATH", config.Data.TrainPath),
		ModelPath:      getEnvOrDefault("MODEL_PATH", orDefault(config.Model.Path, DefaultModelPath)),
		RegistryPath:   getEnvOrDefault("REGISTRY_PATH", config.Data.RegistryPath),
		ServerPort:     getIntFromEnvOrConfig("SERVER_PORT", config.Server.Port, DefaultServerPort),
		RequestTimeout: getDurationOrDefault("REQUEST_TIMEOUT", requestTimeout),
		CacheModel:     getBoolOrDefault("CACHE_MODEL", cacheModel),
		TestSize:       getFloatFromEnvOrConfig("TEST_SIZE", config.Model.TestSize, DefaultTestSize),
		Seed:           getUintOrDefault("SEED", seed),
		DriftWindow:    getIntOrDefault("DRIFT_WINDOW", driftWindow),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DataPath:       os.Getenv("DATA_PATH"),     // optional, training only
		ModelPath:      getEnvOrDefault("MODEL_PATH", DefaultModelPath),
		RegistryPath:   os.Getenv("REGISTRY_PATH"), // optional
		ServerPort:     getIntOrDefault("SERVER_PORT", DefaultServerPort),
		RequestTimeout: getDurationOrDefault("REQUEST_TIMEOUT", DefaultRequestTimeout),
		CacheModel:     getBoolOrDefault("CACHE_MODEL", true),
		TestSize:       getFloatOrDefault("TEST_SIZE", DefaultTestSize),
		Seed:           getUintOrDefault("SEED", DefaultSeed),
		DriftWindow:    getIntOrDefault("DRIFT_WINDOW", DefaultDriftWindow),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getUintOrDefault(key string, defaultValue uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			return u
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

// validateSettings performs validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	if settings.ServerPort < 1024 || settings.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1024 and 65535, got %d", settings.ServerPort)
	}
	if settings.RequestTimeout < 100*time.Millisecond || settings.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request timeout must be between 100ms and 5m, got %v", settings.RequestTimeout)
	}

	// The holdout split needs room for both partitions.
	if settings.TestSize <= 0 || settings.TestSize >= 0.5 {
		return fmt.Errorf("test size must be between 0 and 0.5, got %f", settings.TestSize)
	}

	if settings.DriftWindow != 0 && (settings.DriftWindow < 100 || settings.DriftWindow > 100000) {
		return fmt.Errorf("drift window must be 0 or between 100 and 100000, got %d", settings.DriftWindow)
	}

	return nil
}
