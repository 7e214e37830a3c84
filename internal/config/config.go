package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"gomodsel/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Run      RunConfig
	Data     DataConfig
	Output   OutputConfig
	Database DatabaseConfig
	Server   ServerConfig
	LogLevel string
}

// RunConfig holds the resampling and search settings
type RunConfig struct {
	CV             int
	OOB            int
	MaxEvals       int
	RandomStates   []int64
	Shuffle        bool
	Balancing      bool
	WritePrelim    bool
	ErrorScore     float64
	NJobs          int
	TestSize       float64
	Alpha          float64
	InnerMode      string
	MinCoverage    float64
	Aggregate      string
	CompleteMatrix bool
	Scoring        string
	Suggester      string
	Selectors      []string
	Estimators     []string
}

// DataConfig locates the input tables
type DataConfig struct {
	Predictors   string
	Target       string
	TargetColumn string
	IndexColumn  int
	Regex        string
	Sheet        string
}

// OutputConfig holds result destinations
type OutputConfig struct {
	PathFinalResults string
	ResultsXLSX      string
	ReportPath       string
}

// DatabaseConfig holds the optional results database
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds the results API settings
type ServerConfig struct {
	Port string
}

// LoadDotEnv loads .env files when present. Missing files are ignored and
// variables already set in the environment win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	runConfig, err := loadRunConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load run configuration")
	}
	config := &Config{
		Run: *runConfig,
		Data: DataConfig{
			Predictors:   getEnvOrDefault("PREDICTORS", ""),
			Target:       getEnvOrDefault("TARGET", ""),
			TargetColumn: getEnvOrDefault("TARGET_COLUMN", ""),
			IndexColumn:  getEnvIntOrDefault("INDEX_COLUMN", 0),
			Regex:        getEnvOrDefault("FEATURE_REGEX", ""),
			Sheet:        getEnvOrDefault("SHEET", "Sheet1"),
		},
		Output: OutputConfig{
			PathFinalResults: getEnvOrDefault("PATH_FINAL_RESULTS", "results/final_results.csv"),
			ResultsXLSX:      getEnvOrDefault("RESULTS_XLSX", ""),
			ReportPath:       getEnvOrDefault("REPORT_PATH", ""),
		},
		Database: DatabaseConfig{URL: getEnvOrDefault("DATABASE_URL", "")},
		Server:   ServerConfig{Port: getEnvOrDefault("PORT", "8080")},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadRunConfig() (*RunConfig, error) {
	states, err := ParseRandomStates(getEnvOrDefault("RANDOM_STATES", "1"))
	if err != nil {
		return nil, err
	}
	return &RunConfig{
		CV:             getEnvIntOrDefault("CV", 5),
		OOB:            getEnvIntOrDefault("OOB", 500),
		MaxEvals:       getEnvIntOrDefault("MAX_EVALS", 50),
		RandomStates:   states,
		Shuffle:        getEnvBoolOrDefault("SHUFFLE", true),
		Balancing:      getEnvBoolOrDefault("BALANCING", true),
		WritePrelim:    getEnvBoolOrDefault("WRITE_PRELIM", true),
		ErrorScore:     getEnvFloatOrDefault("ERROR_SCORE", math.NaN()),
		NJobs:          getEnvIntOrDefault("N_JOBS", -1),
		TestSize:       getEnvFloatOrDefault("TEST_SIZE", 0.2),
		Alpha:          getEnvFloatOrDefault("ALPHA", 0.05),
		InnerMode:      getEnvOrDefault("INNER_MODE", "cv"),
		MinCoverage:    getEnvFloatOrDefault("MIN_COVERAGE", 0.5),
		Aggregate:      getEnvOrDefault("AGGREGATE", "mean"),
		CompleteMatrix: getEnvBoolOrDefault("COMPLETE_MATRIX", true),
		Scoring:        getEnvOrDefault("SCORING", "roc_auc"),
		Suggester:      getEnvOrDefault("SUGGESTER", "gp"),
		Selectors:      getEnvListOrDefault("SELECTORS", nil),
		Estimators:     getEnvListOrDefault("ESTIMATORS", nil),
	}, nil
}

// Validate checks the settings every command relies on.
func (c *Config) Validate() error {
	r := c.Run
	switch {
	case r.InnerMode != "cv" && r.InnerMode != "bootstrap":
		return errors.ConfigInvalid(fmt.Sprintf("INNER_MODE must be cv or bootstrap, got %q", r.InnerMode))
	case r.InnerMode == "cv" && r.CV < 2:
		return errors.ConfigInvalid(fmt.Sprintf("CV must be >= 2, got %d", r.CV))
	case r.CV < 1:
		return errors.ConfigInvalid(fmt.Sprintf("CV must be >= 1, got %d", r.CV))
	case r.OOB < 1:
		return errors.ConfigInvalid(fmt.Sprintf("OOB must be >= 1, got %d", r.OOB))
	case r.MaxEvals < 1:
		return errors.ConfigInvalid(fmt.Sprintf("MAX_EVALS must be >= 1, got %d", r.MaxEvals))
	case len(r.RandomStates) == 0:
		return errors.ConfigInvalid("RANDOM_STATES is empty")
	case r.TestSize <= 0 || r.TestSize >= 1:
		return errors.ConfigInvalid(fmt.Sprintf("TEST_SIZE must be in (0, 1), got %g", r.TestSize))
	case r.Alpha <= 0 || r.Alpha >= 1:
		return errors.ConfigInvalid(fmt.Sprintf("ALPHA must be in (0, 1), got %g", r.Alpha))
	case r.MinCoverage < 0 || r.MinCoverage > 1:
		return errors.ConfigInvalid(fmt.Sprintf("MIN_COVERAGE must be in [0, 1], got %g", r.MinCoverage))
	case r.Aggregate != "mean" && r.Aggregate != "median":
		return errors.ConfigInvalid(fmt.Sprintf("AGGREGATE must be mean or median, got %q", r.Aggregate))
	}
	return nil
}

// ParseRandomStates accepts a count ("5" means 0..4), a comma list
// ("3,17,42") or an inclusive range ("10-19").
func ParseRandomStates(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.ConfigInvalid("RANDOM_STATES is empty")
	}
	if strings.Contains(s, ",") {
		var out []int64
		for _, part := range strings.Split(s, ",") {
			v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, errors.ConfigInvalid(fmt.Sprintf("RANDOM_STATES: %q is not an integer", part))
			}
			out = append(out, v)
		}
		return out, nil
	}
	if lo, hi, ok := strings.Cut(s, "-"); ok && lo != "" {
		a, errA := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
		b, errB := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
		if errA != nil || errB != nil || b < a {
			return nil, errors.ConfigInvalid(fmt.Sprintf("RANDOM_STATES: bad range %q", s))
		}
		out := make([]int64, 0, b-a+1)
		for v := a; v <= b; v++ {
			out = append(out, v)
		}
		return out, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return nil, errors.ConfigInvalid(fmt.Sprintf("RANDOM_STATES: %q is not a positive count", s))
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i)
	}
	return out, nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
