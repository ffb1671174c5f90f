package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"btc-direction/internal/common"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	Symbol           string
	HistorySource    string
	HistoryURL       string
	HistoryCSV       string
	DataPath         string
	ModelPath        string
	PythonPath       string
	InferenceScript  string
	InferenceTimeout time.Duration
	AllowFallback    bool
	RESTTimeout      time.Duration
	ServerPort       int
	LogLevel         string
}

type ConfigFile struct {
	History struct {
		Symbol      string `yaml:"symbol"`
		Source      string `yaml:"source"`
		URL         string `yaml:"url"`
		CSV         string `yaml:"csv"`
		RESTTimeout string `yaml:"restTimeout"`
	} `yaml:"history"`

	ML struct {
		ModelPath     string `yaml:"modelPath"`
		PythonPath    string `yaml:"pythonPath"`
		Script        string `yaml:"script"`
		Timeout       string `yaml:"timeout"`
		AllowFallback bool   `yaml:"allowFallback"`
	} `yaml:"ml"`

	System struct {
		DataPath   string `yaml:"dataPath"`
		ServerPort int    `yaml:"serverPort"`
		LogLevel   string `yaml:"logLevel"`
	} `yaml:"system"`
}

// Load reads a .env file from the working directory when present, then the
// YAML file named by CONFIG_FILE (with env overrides) or the environment alone.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

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

	inferenceTimeout, err := parseDurationOr(config.ML.Timeout, common.DefaultInferenceTimeout)
	if err != nil {
		return Settings{}, fmt.Errorf("ml.timeout: %w", err)
	}
	restTimeout, err := parseDurationOr(config.History.RESTTimeout, common.DefaultRESTTimeout)
	if err != nil {
		return Settings{}, fmt.Errorf("history.restTimeout: %w", err)
	}

	settings := Settings{
		Symbol:           getEnvOrDefault(common.EnvSymbol, orDefault(config.History.Symbol, common.DefaultSymbol)),
		HistorySource:    getEnvOrDefault(common.EnvHistorySource, orDefault(config.History.Source, common.DefaultHistorySource)),
		HistoryURL:       getEnvOrDefault(common.EnvHistoryURL, orDefault(config.History.URL, common.DefaultHistoryURL)),
		HistoryCSV:       getEnvOrDefault(common.EnvHistoryCSV, config.History.CSV),
		DataPath:         getEnvOrDefault(common.EnvDataPath, orDefault(config.System.DataPath, common.DefaultDataPath)),
		ModelPath:        getEnvOrDefault(common.EnvModelPath, orDefault(config.ML.ModelPath, common.DefaultModelPath)),
		PythonPath:       getEnvOrDefault(common.EnvPythonPath, config.ML.PythonPath),
		InferenceScript:  getEnvOrDefault(common.EnvInferenceScript, config.ML.Script),
		InferenceTimeout: getDurationOrDefault(common.EnvInferenceTimeout, inferenceTimeout),
		AllowFallback:    getBoolOrDefault(common.EnvAllowFallback, config.ML.AllowFallback),
		RESTTimeout:      getDurationOrDefault(common.EnvRESTTimeout, restTimeout),
		ServerPort:       getIntOrDefault(common.EnvServerPort, orDefaultInt(config.System.ServerPort, common.DefaultServerPort)),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	inferenceTimeout, _ := time.ParseDuration(common.DefaultInferenceTimeout)
	restTimeout, _ := time.ParseDuration(common.DefaultRESTTimeout)

	settings := Settings{
		Symbol:           getEnvOrDefault(common.EnvSymbol, common.DefaultSymbol),
		HistorySource:    getEnvOrDefault(common.EnvHistorySource, common.DefaultHistorySource),
		HistoryURL:       getEnvOrDefault(common.EnvHistoryURL, common.DefaultHistoryURL),
		HistoryCSV:       os.Getenv(common.EnvHistoryCSV), // only for the csv source
		DataPath:         getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		ModelPath:        getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		PythonPath:       os.Getenv(common.EnvPythonPath),
		InferenceScript:  os.Getenv(common.EnvInferenceScript),
		InferenceTimeout: getDurationOrDefault(common.EnvInferenceTimeout, inferenceTimeout),
		AllowFallback:    getBoolOrDefault(common.EnvAllowFallback, false),
		RESTTimeout:      getDurationOrDefault(common.EnvRESTTimeout, restTimeout),
		ServerPort:       getIntOrDefault(common.EnvServerPort, common.DefaultServerPort),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
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

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func parseDurationOr(v, def string) (time.Duration, error) {
	return time.ParseDuration(orDefault(v, def))
}

// validateSettings bounds-checks the loaded configuration.
func validateSettings(settings *Settings) error {
	if strings.TrimSpace(settings.Symbol) == "" {
		return fmt.Errorf("symbol cannot be empty")
	}

	switch strings.ToLower(settings.HistorySource) {
	case "yahoo":
		if settings.HistoryURL == "" {
			return fmt.Errorf("history URL cannot be empty for the yahoo source")
		}
	case "csv":
		if settings.HistoryCSV == "" {
			return fmt.Errorf("%s is required for the csv source", common.EnvHistoryCSV)
		}
	case "bolt":
		if settings.DataPath == "" {
			return fmt.Errorf("data path cannot be empty for the bolt source")
		}
	default:
		return fmt.Errorf("history source must be one of yahoo, csv, bolt, got %q", settings.HistorySource)
	}

	if settings.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	if settings.InferenceTimeout < 100*time.Millisecond || settings.InferenceTimeout > 5*time.Minute {
		return fmt.Errorf("inference timeout must be between 100ms and 5m, got %v", settings.InferenceTimeout)
	}
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}

	if settings.ServerPort < common.MinServerPort || settings.ServerPort > common.MaxServerPort {
		return fmt.Errorf("server port must be between %d and %d, got %d",
			common.MinServerPort, common.MaxServerPort, settings.ServerPort)
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}

	return nil
}
