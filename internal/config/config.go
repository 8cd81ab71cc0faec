package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Portal settings
	PortalBaseURL string
	LoginURL      string
	PanelURL      string
	IdPHost       string

	// Credentials
	PortalUser   string
	PortalPass   string
	TOTPSecret   string
	AdvocateName string

	// Database settings
	DatabasePath string

	// Blob storage settings
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	SignedURLTTL   time.Duration

	// Logging settings
	LogLevel  string
	LogFormat string

	// Browser settings
	HeadlessMode bool
	BrowserPath  string
	UserAgent    string
	ProxyURL     string
	ProxyUser    string
	ProxyPass    string

	// Timeouts
	NavigationTimeout time.Duration
	StepTimeout       time.Duration
	TabWaitTimeout    time.Duration
	DownloadTimeout   time.Duration
	ShutdownTimeout   time.Duration

	// Scheduling
	ActiveInterval  time.Duration
	DormantInterval time.Duration
	DetailBatchSize int

	// Human-like delays between page steps
	DelayMin time.Duration
	DelayMax time.Duration

	// Housekeeping
	RunRetentionDays int
	CacheTTL         time.Duration

	// Optional status listener ("" disables it)
	StatusAddr string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		PortalBaseURL: getEnv("PORTAL_BASE_URL", "https://eproc.trf4.jus.br/eproc2trf4"),
		IdPHost:       getEnv("PORTAL_IDP_HOST", "sso.cloud.pje.jus.br"),
		PortalUser:    getEnv("PORTAL_USER", ""),
		PortalPass:    getEnv("PORTAL_PASS", ""),
		TOTPSecret:    getEnv("PORTAL_TOTP_SECRET", ""),
		AdvocateName:  getEnv("ADVOCATE_NAME", ""),
		DatabasePath:  getEnv("DATABASE_PATH", "./data/monitor.db"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "case-documents"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		BrowserPath: getEnv("ROD_BROWSER_PATH", ""),
		UserAgent:   getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"),
		ProxyURL:    getEnv("PROXY_URL", ""),
		ProxyUser:   getEnv("PROXY_USER", ""),
		ProxyPass:   getEnv("PROXY_PASS", ""),

		StatusAddr: getEnv("STATUS_ADDR", ""),
	}

	cfg.LoginURL = getEnv("PORTAL_LOGIN_URL", cfg.PortalBaseURL+"/index.php")
	cfg.PanelURL = getEnv("PORTAL_PANEL_URL", cfg.PortalBaseURL+"/controlador.php?acao=painel_advogado")

	if cfg.PortalUser == "" || cfg.PortalPass == "" {
		return nil, fmt.Errorf("PORTAL_USER and PORTAL_PASS are required")
	}
	if cfg.AdvocateName == "" {
		return nil, fmt.Errorf("ADVOCATE_NAME is required")
	}

	cfg.MinioUseSSL = getEnv("MINIO_USE_SSL", "false") == "true"
	cfg.HeadlessMode = getEnv("HEADLESS_MODE", "true") == "true"

	var err error
	if cfg.SignedURLTTL, err = getEnvDuration("SIGNED_URL_TTL_MINUTES", 60, time.Minute); err != nil {
		return nil, err
	}
	if cfg.NavigationTimeout, err = getEnvDuration("NAVIGATION_TIMEOUT", 30, time.Second); err != nil {
		return nil, err
	}
	if cfg.StepTimeout, err = getEnvDuration("STEP_TIMEOUT", 10, time.Second); err != nil {
		return nil, err
	}
	if cfg.TabWaitTimeout, err = getEnvDuration("TAB_WAIT_TIMEOUT", 15, time.Second); err != nil {
		return nil, err
	}
	if cfg.DownloadTimeout, err = getEnvDuration("DOWNLOAD_TIMEOUT", 60, time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 120, time.Second); err != nil {
		return nil, err
	}
	if cfg.ActiveInterval, err = getEnvDuration("ACTIVE_INTERVAL_MINUTES", 10, time.Minute); err != nil {
		return nil, err
	}
	if cfg.DormantInterval, err = getEnvDuration("DORMANT_INTERVAL_MINUTES", 360, time.Minute); err != nil {
		return nil, err
	}
	if cfg.DelayMin, err = getEnvDuration("DELAY_MIN_MS", 800, time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.DelayMax, err = getEnvDuration("DELAY_MAX_MS", 2500, time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getEnvDuration("CACHE_TTL_MINUTES", 720, time.Minute); err != nil {
		return nil, err
	}

	cfg.DetailBatchSize, err = strconv.Atoi(getEnv("DETAIL_BATCH_SIZE", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid DETAIL_BATCH_SIZE: %w", err)
	}
	cfg.RunRetentionDays, err = strconv.Atoi(getEnv("RUN_RETENTION_DAYS", "90"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUN_RETENTION_DAYS: %w", err)
	}

	if cfg.DelayMax < cfg.DelayMin {
		return nil, fmt.Errorf("DELAY_MAX_MS must be >= DELAY_MIN_MS")
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration parses an integer environment variable into a duration
func getEnvDuration(key string, defaultValue int, unit time.Duration) (time.Duration, error) {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(n) * unit, nil
}
