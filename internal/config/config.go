package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"tani/internal/core"
)

type Config struct {
	// HTTP Server
	Port              string
	RequestsPerMinute int

	// Local store
	SQLiteDBPath string
	CacheDir     string

	// Remote backend
	DataBackend    string
	BaaSURL        string
	BaaSAnonKey    string
	RequestTimeout time.Duration
	RefreshMargin  time.Duration
	RedirectURL    string

	// Memory backend seed account (development only)
	SeedEmail    string
	SeedPassword string

	// AMQP (optional; reports render in-process when empty)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export (optional)
	GoogleSpreadsheetID   string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string

	// Reports
	ChromeBin string
	// ChromeControlURL connects to an already running browser.
	ChromeControlURL string
	RenderTimeout    time.Duration

	// Weather
	WeatherURL string
	WeatherTTL time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Farm profile read from the TOML file
	ConfigFile  string
	Farm        core.Farm
	ReportTitle string
}

// File is the on-disk TOML document.
type File struct {
	Farm   core.Farm `toml:"farm"`
	Report struct {
		Title string `toml:"title"`
	} `toml:"report"`
}

const (
	BackendRemote = "remote"
	BackendMemory = "memory"
)

func Load() *Config {
	cfg := &Config{
		Port:              getEnv("PORT", "8081"),
		RequestsPerMinute: getEnvInt("REQUESTS_PER_MINUTE", 120),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/tani.db"),
		CacheDir:     getEnv("CACHE_DIR", defaultCacheDir()),

		DataBackend:    getEnv("DATA_BACKEND", BackendRemote),
		BaaSURL:        strings.TrimRight(getEnv("TANI_BAAS_URL", ""), "/"),
		BaaSAnonKey:    getEnv("TANI_BAAS_ANON_KEY", ""),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),
		RefreshMargin:  getEnvDuration("SESSION_REFRESH_MARGIN", 60*time.Second),
		RedirectURL:    getEnv("TANI_REDIRECT_URL", ""),

		SeedEmail:    getEnv("MEMORY_SEED_EMAIL", ""),
		SeedPassword: getEnv("MEMORY_SEED_PASSWORD", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "tani"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "report_jobs"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", ""),

		ChromeBin:        getEnv("CHROME_BIN", ""),
		ChromeControlURL: getEnv("CHROME_CONTROL_URL", ""),
		RenderTimeout:    getEnvDuration("RENDER_TIMEOUT", 60*time.Second),

		WeatherURL: getEnv("WEATHER_URL", "https://api.open-meteo.com/v1/forecast"),
		WeatherTTL: getEnvDuration("WEATHER_TTL", 10*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		ConfigFile:  getEnv("TANI_CONFIG", "./tani.toml"),
		ReportTitle: "Laporan Laba Rugi Usaha Tani",
	}

	return cfg
}

// LoadFile merges the TOML farm profile into c. A missing file is not an
// error; the farm profile then stays empty.
func (c *Config) LoadFile() error {
	if c.ConfigFile == "" {
		return nil
	}
	var f File
	if _, err := toml.DecodeFile(c.ConfigFile, &f); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", c.ConfigFile, err)
	}
	c.Farm = f.Farm
	if f.Report.Title != "" {
		c.ReportTitle = f.Report.Title
	}
	return nil
}

// AMQPEnabled reports whether report jobs go through the broker.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// SheetsEnabled reports whether finished reports are mirrored to Google Sheets.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// ReportDir is where exported PDFs are written.
func (c *Config) ReportDir() string {
	return filepath.Join(c.CacheDir, "reports")
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendMemory, BackendRemote}
	if !slices.Contains(validBackends, c.DataBackend) {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == BackendRemote {
		if c.BaaSURL == "" {
			errs = append(errs, "TANI_BAAS_URL is required when using remote backend")
		} else if u, err := url.Parse(c.BaaSURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("invalid backend URL '%s': must be an absolute http(s) URL", c.BaaSURL))
		}
		if c.BaaSAnonKey == "" {
			errs = append(errs, "TANI_BAAS_ANON_KEY is required when using remote backend")
		}
	}

	if c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty")
	} else if err := ensureDir(filepath.Dir(c.SQLiteDBPath)); err != nil {
		errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", filepath.Dir(c.SQLiteDBPath), err))
	}

	if c.CacheDir == "" {
		errs = append(errs, "cache directory cannot be empty")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" {
		hasFile := c.GoogleCredentialsFile != ""
		if !hasFile && c.GoogleCredentialsJSON == "" {
			errs = append(errs, "either GOOGLE_CREDENTIALS_FILE or GOOGLE_CREDENTIALS_JSON must be provided for sheets export")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errs = append(errs, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
	}

	if c.RequestsPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("invalid requests per minute %d: must be at least 1", c.RequestsPerMinute))
	}
	if c.RequestTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("invalid request timeout %v: must be at least 1 second", c.RequestTimeout))
	}
	if c.RenderTimeout < 5*time.Second {
		errs = append(errs, fmt.Sprintf("invalid render timeout %v: must be at least 5 seconds", c.RenderTimeout))
	}
	if c.RefreshMargin < 0 {
		errs = append(errs, fmt.Sprintf("invalid session refresh margin %v: must not be negative", c.RefreshMargin))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if c.Farm.Latitude < -90 || c.Farm.Latitude > 90 || c.Farm.Longitude < -180 || c.Farm.Longitude > 180 {
		errs = append(errs, fmt.Sprintf("invalid farm coordinates %v,%v", c.Farm.Latitude, c.Farm.Longitude))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "tani")
	}
	return filepath.Join(os.TempDir(), "tani")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
