// Package config loads and validates the check-in module configuration
// from environment variables. A .env file in the working directory is
// read first and never overrides variables already set.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // event time zone without a system zoneinfo

	"github.com/joho/godotenv"

	"github.com/bigkaa/feirinha/checkin-module/internal/domain/workday"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Row store backends.
const (
	BackendSheets   = "sheets"
	BackendXLSX     = "xlsx"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds every setting of the check-in module.
type Config struct {
	// --- Server ---

	// HTTP port (default 8040).
	Port int

	// Log level (debug, info, warn, error).
	LogLevel slog.Level

	// Log format (json, text).
	LogFormat string

	// APIPrefix mounts the API routes, e.g. /api/feirinha. Empty mounts
	// them at the root.
	APIPrefix string

	// CORSAllowedOrigins is empty or "*" for any origin.
	CORSAllowedOrigins []string

	// --- HTTP server timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	ShutdownTimeout  time.Duration

	// --- Work day and catalog ---

	// Location is the event time zone (default America/Sao_Paulo).
	Location *time.Location

	// WorkdayRule selects how instants map to work days.
	WorkdayRule workday.Rule

	// CatalogPath optionally points to a YAML file with sectors, roles
	// and the pay table. Empty uses the built-in catalog.
	CatalogPath string

	// --- Row store ---

	StoreBackend string

	// StoreTimeout bounds every row store call (default 10s).
	StoreTimeout time.Duration

	// StoreCreateSheets creates missing sheets with their header row.
	StoreCreateSheets bool

	CollaboratorsSheet string
	RegistrationsSheet string

	// Google Sheets
	SpreadsheetID         string
	SheetsCredentialsFile string
	SheetsCredentialsJSON []byte
	SheetsEndpoint        string

	// Workbook
	XLSXPath string

	// PostgreSQL
	DatabaseURL string

	// --- Registry ---

	// CollaboratorsReloadInterval is the minimum gap between reloads of
	// the collaborators sheet triggered by lookup misses. Zero disables
	// reloading.
	CollaboratorsReloadInterval time.Duration

	CacheSize int
	CacheTTL  time.Duration

	// --- Redis claim guard ---

	// RedisURL enables the cross-instance guard when set.
	RedisURL string

	ClaimTTL time.Duration

	// --- JWT (registrations listing) ---

	// JWTJWKSURL enables JWT protection of /registrations when set.
	JWTJWKSURL string

	JWTIssuer           string
	JWTCACertPath       string
	JWTAdminGroups      []string
	JWTAdminScopes      []string
	JWKSClientTimeout   time.Duration
	JWKSRefreshInterval time.Duration
	JWTLeeway           time.Duration

	// --- Topologymetrics ---

	DephealthEnabled       bool
	DephealthGroup         string
	DephealthCheckInterval time.Duration
	DephealthIsEntry       bool
}

// Load reads the configuration. It fails when a value is malformed or a
// setting required by the chosen backend is missing.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env: %w", err)
	}

	cfg := &Config{}
	var err error

	// --- Server ---

	cfg.Port, err = getEnvInt("CM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("CM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CM_PORT: %d out of range", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CM_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("CM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CM_LOG_FORMAT: invalid format %q, allowed: json, text", cfg.LogFormat)
	}

	cfg.APIPrefix = strings.TrimSuffix(os.Getenv("CM_API_PREFIX"), "/")
	if cfg.APIPrefix != "" && !strings.HasPrefix(cfg.APIPrefix, "/") {
		return nil, fmt.Errorf("CM_API_PREFIX: %q must start with /", cfg.APIPrefix)
	}
	cfg.CORSAllowedOrigins = getEnvList("CM_CORS_ALLOWED_ORIGINS")

	if cfg.HTTPReadTimeout, err = getEnvDuration("CM_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("CM_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("CM_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("CM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("CM_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("CM_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("CM_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("CM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Work day and catalog ---

	tz := getEnvDefault("CM_TIMEZONE", "America/Sao_Paulo")
	cfg.Location, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("CM_TIMEZONE: %w", err)
	}
	cfg.WorkdayRule, err = workday.ParseRule(os.Getenv("CM_WORKDAY_RULE"))
	if err != nil {
		return nil, fmt.Errorf("CM_WORKDAY_RULE: %w", err)
	}
	cfg.CatalogPath = os.Getenv("CM_CATALOG_PATH")

	// --- Row store ---

	if err := loadStore(cfg); err != nil {
		return nil, err
	}

	// --- Registry ---

	if cfg.CollaboratorsReloadInterval, err = getEnvDuration("CM_COLLABORATORS_RELOAD_INTERVAL", time.Minute); err != nil {
		return nil, fmt.Errorf("CM_COLLABORATORS_RELOAD_INTERVAL: %w", err)
	}
	if cfg.CacheSize, err = getEnvInt("CM_CACHE_SIZE", 1024); err != nil {
		return nil, fmt.Errorf("CM_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 0 {
		return nil, fmt.Errorf("CM_CACHE_SIZE: must be >= 0")
	}
	if cfg.CacheTTL, err = getEnvDurationFallback("CM_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, fmt.Errorf("CM_CACHE_TTL: %w", err)
	}

	// --- Redis claim guard ---

	cfg.RedisURL = os.Getenv("CM_REDIS_URL")
	if cfg.ClaimTTL, err = getEnvDurationFallback("CM_CLAIM_TTL", 36*time.Hour); err != nil {
		return nil, fmt.Errorf("CM_CLAIM_TTL: %w", err)
	}

	// --- JWT ---

	cfg.JWTJWKSURL = os.Getenv("CM_JWT_JWKS_URL")
	cfg.JWTIssuer = os.Getenv("CM_JWT_ISSUER")
	cfg.JWTCACertPath = os.Getenv("CM_JWT_CA_CERT")
	cfg.JWTAdminGroups = getEnvList("CM_JWT_ADMIN_GROUPS")
	if len(cfg.JWTAdminGroups) == 0 {
		cfg.JWTAdminGroups = []string{"feirinha-admins"}
	}
	cfg.JWTAdminScopes = getEnvList("CM_JWT_ADMIN_SCOPES")
	if len(cfg.JWTAdminScopes) == 0 {
		cfg.JWTAdminScopes = []string{"checkin:read"}
	}
	if cfg.JWKSClientTimeout, err = getEnvDurationFallback("CM_JWKS_CLIENT_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("CM_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	if cfg.JWKSRefreshInterval, err = getEnvDurationFallback("CM_JWKS_REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("CM_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.JWTLeeway, err = getEnvDuration("CM_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("CM_JWT_LEEWAY: %w", err)
	}

	// --- Topologymetrics ---

	if cfg.DephealthEnabled, err = getEnvBool("CM_DEPHEALTH_ENABLED", true); err != nil {
		return nil, fmt.Errorf("CM_DEPHEALTH_ENABLED: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("CM_DEPHEALTH_GROUP", "feirinha")
	if cfg.DephealthCheckInterval, err = getEnvDurationFallback("CM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("CM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	if cfg.DephealthIsEntry, err = getEnvBool("CM_DEPHEALTH_ISENTRY", true); err != nil {
		return nil, fmt.Errorf("CM_DEPHEALTH_ISENTRY: %w", err)
	}

	return cfg, nil
}

func loadStore(cfg *Config) error {
	var err error

	cfg.StoreBackend = strings.ToLower(getEnvDefault("CM_STORE_BACKEND", BackendSheets))
	if cfg.StoreTimeout, err = getEnvDurationFallback("CM_STORE_TIMEOUT", 10*time.Second); err != nil {
		return fmt.Errorf("CM_STORE_TIMEOUT: %w", err)
	}
	if cfg.StoreCreateSheets, err = getEnvBool("CM_STORE_CREATE_SHEETS", false); err != nil {
		return fmt.Errorf("CM_STORE_CREATE_SHEETS: %w", err)
	}
	cfg.CollaboratorsSheet = getEnvDefault("CM_COLLABORATORS_SHEET", "Cadastro de Colaboradores")
	cfg.RegistrationsSheet = getEnvDefault("CM_REGISTRATIONS_SHEET", "Respostas ao formulário 1")

	switch cfg.StoreBackend {
	case BackendSheets:
		cfg.SpreadsheetID = firstEnv("CM_SPREADSHEET_ID", "GOOGLE_SHEET_ID")
		if cfg.SpreadsheetID == "" {
			return errors.New("CM_SPREADSHEET_ID: required for the sheets backend")
		}
		cfg.SheetsEndpoint = os.Getenv("CM_SHEETS_ENDPOINT")
		cfg.SheetsCredentialsFile = firstEnv("CM_SHEETS_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS")
		if raw := os.Getenv("CM_SHEETS_CREDENTIALS_JSON"); raw != "" {
			cfg.SheetsCredentialsJSON = []byte(raw)
		} else if cfg.SheetsCredentialsFile == "" {
			cfg.SheetsCredentialsJSON, err = legacyServiceAccountJSON()
			if err != nil {
				return err
			}
		}
		if cfg.SheetsCredentialsFile == "" && len(cfg.SheetsCredentialsJSON) == 0 {
			return errors.New("CM_SHEETS_CREDENTIALS_FILE or CM_SHEETS_CREDENTIALS_JSON: required for the sheets backend")
		}
	case BackendXLSX:
		cfg.XLSXPath = getEnvDefault("CM_XLSX_PATH", "feirinha.xlsx")
	case BackendPostgres:
		cfg.DatabaseURL = os.Getenv("CM_DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return errors.New("CM_DATABASE_URL: required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("CM_STORE_BACKEND: invalid backend %q, allowed: sheets, xlsx, postgres, memory", cfg.StoreBackend)
	}
	return nil
}

// legacyServiceAccountJSON assembles service account credentials from
// the GCP_* variables used by earlier deployments. It returns nil when
// they are not set.
func legacyServiceAccountJSON() ([]byte, error) {
	privateKey := os.Getenv("GCP_PRIVATE_KEY")
	clientEmail := os.Getenv("GCP_CLIENT_EMAIL")
	if privateKey == "" && clientEmail == "" {
		return nil, nil
	}
	if privateKey == "" || clientEmail == "" {
		return nil, errors.New("GCP_PRIVATE_KEY and GCP_CLIENT_EMAIL must be set together")
	}

	creds := map[string]string{
		"type":                        getEnvDefault("GCP_TYPE", "service_account"),
		"project_id":                  os.Getenv("GCP_PROJECT_ID"),
		"private_key_id":              os.Getenv("GCP_PRIVATE_KEY_ID"),
		"private_key":                 strings.ReplaceAll(privateKey, `\n`, "\n"),
		"client_email":                clientEmail,
		"client_id":                   os.Getenv("GCP_CLIENT_ID"),
		"auth_uri":                    getEnvDefault("GCP_AUTH_URI", "https://accounts.google.com/o/oauth2/auth"),
		"token_uri":                   getEnvDefault("GCP_TOKEN_URI", "https://oauth2.googleapis.com/token"),
		"auth_provider_x509_cert_url": getEnvDefault("GCP_AUTH_PROVIDER_X509_CERT_URL", "https://www.googleapis.com/oauth2/v1/certs"),
		"client_x509_cert_url":        os.Getenv("GCP_CLIENT_X509_CERT_URL"),
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("GCP credentials: %w", err)
	}
	return data, nil
}

// SetupLogger configures the default slog logger.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Helpers ---

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// firstEnv returns the first non-empty variable among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q (use Go format: 30s, 1h, 15m)", val)
	}
	if d < 0 {
		return 0, errors.New("value must be >= 0")
	}
	return d, nil
}

// getEnvDurationFallback is getEnvDuration for values that must be > 0.
func getEnvDurationFallback(key string, fallbackVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallbackVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q (use Go format: 30s, 1h, 15m)", val)
	}
	if d <= 0 {
		return 0, errors.New("value must be > 0")
	}
	return d, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid boolean: %q (allowed: true, false, 1, 0)", val)
	}
	return b, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid level %q, allowed: debug, info, warn, error", level)
	}
}
