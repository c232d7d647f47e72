package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Available config keys
const (
	CredentialsPath = "google.credentials_path"
	FolderID        = "google.folder_id"
	TokenURL        = "google.token_url"
	DriveScope      = "google.scope"
	DriveEndpoint   = "google.drive_endpoint"
	TabularOnly     = "drive.tabular_only"
	PageSize        = "drive.page_size"

	HTTPTimeout     = "http.timeout"
	HTTPMaxAttempts = "http.max_attempts"

	DBDriver         = "db.driver"
	DatabaseURL      = "db.url"
	PostgresHost     = "db.host"
	PostgresPort     = "db.port"
	PostgresUser     = "db.user"
	PostgresPassword = "db.password"
	PostgresDB       = "db.name"
	PostgresSSLMode  = "db.sslmode"
	AutoMigrate      = "db.auto_migrate"

	BatchSize      = "ingest.batch_size"
	StrictMode     = "ingest.strict"
	RejectsCSVPath = "ingest.rejects_csv_path"

	Environment = "log.environment"
	LogLevel    = "log.level"
	SeqURL      = "log.seq_url"
	SeqToken    = "log.seq_token"
)

// Supported values for DB_DRIVER.
const (
	DriverPQ       = "postgres"
	DriverPGX      = "pgx"
	DriverPGDriver = "pg"
)

// Config holds all application configuration. It is built once at startup
// and handed to constructors; nothing reads the environment after Load.
type Config struct {
	CredentialsPath string
	FolderID        string
	TokenURL        string
	DriveScope      string
	DriveEndpoint   string
	TabularOnly     bool
	PageSize        int

	HTTPTimeout     time.Duration
	HTTPMaxAttempts int

	DBDriver         string
	DatabaseURL      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	AutoMigrate      bool

	BatchSize      int
	StrictMode     bool
	RejectsCSVPath string

	Environment string
	LogLevel    string
	SeqURL      string
	SeqToken    string
}

var envBindings = map[string][]string{
	CredentialsPath: {"GOOGLE_DRIVE_SERVICE_ACCOUNT_KEY_PATH", "GOOGLE_APPLICATION_CREDENTIALS"},
	FolderID:        {"GOOGLE_DRIVE_FOLDER_ID"},
	TokenURL:        {"GOOGLE_TOKEN_URL"},
	DriveScope:      {"GOOGLE_DRIVE_SCOPE"},
	DriveEndpoint:   {"GOOGLE_DRIVE_ENDPOINT"},
	TabularOnly:     {"DRIVE_TABULAR_ONLY"},
	PageSize:        {"DRIVE_PAGE_SIZE"},

	HTTPTimeout:     {"HTTP_TIMEOUT"},
	HTTPMaxAttempts: {"HTTP_MAX_ATTEMPTS"},

	DBDriver:         {"DB_DRIVER"},
	DatabaseURL:      {"DATABASE_URL"},
	PostgresHost:     {"POSTGRES_HOST"},
	PostgresPort:     {"POSTGRES_PORT"},
	PostgresUser:     {"POSTGRES_USER"},
	PostgresPassword: {"POSTGRES_PASSWORD"},
	PostgresDB:       {"POSTGRES_DB"},
	PostgresSSLMode:  {"POSTGRES_SSLMODE"},
	AutoMigrate:      {"DB_AUTO_MIGRATE"},

	BatchSize:      {"BATCH_SIZE"},
	StrictMode:     {"STRICT_MODE"},
	RejectsCSVPath: {"REJECTS_CSV_PATH"},

	Environment: {"ENVIRONMENT"},
	LogLevel:    {"LOG_LEVEL"},
	SeqURL:      {"SEQ_URL"},
	SeqToken:    {"SEQ_TOKEN"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(TokenURL, "https://oauth2.googleapis.com/token")
	v.SetDefault(DriveScope, "https://www.googleapis.com/auth/drive.readonly")
	v.SetDefault(DriveEndpoint, "https://www.googleapis.com/drive/v3/")
	v.SetDefault(TabularOnly, true)
	v.SetDefault(PageSize, 50)

	v.SetDefault(HTTPTimeout, 30*time.Second)
	v.SetDefault(HTTPMaxAttempts, 1)

	v.SetDefault(DBDriver, DriverPQ)
	v.SetDefault(PostgresHost, "localhost")
	v.SetDefault(PostgresPort, "5432")
	v.SetDefault(PostgresUser, "ingest")
	v.SetDefault(PostgresPassword, "ingest")
	v.SetDefault(PostgresDB, "cars_db")
	v.SetDefault(PostgresSSLMode, "disable")
	v.SetDefault(AutoMigrate, true)

	v.SetDefault(BatchSize, 10)
	v.SetDefault(StrictMode, false)

	v.SetDefault(Environment, "development")
	v.SetDefault(LogLevel, "info")
}

// Load reads the .env file, an optional app.yaml from dir (or the working
// directory) and the process environment, and returns a populated Config.
// It does not validate; call Validate before use.
func Load(dir string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	v := viper.New()
	v.SetConfigName("app")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	setDefaults(v)
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	return &Config{
		CredentialsPath: strings.TrimSpace(v.GetString(CredentialsPath)),
		FolderID:        strings.TrimSpace(v.GetString(FolderID)),
		TokenURL:        v.GetString(TokenURL),
		DriveScope:      v.GetString(DriveScope),
		DriveEndpoint:   v.GetString(DriveEndpoint),
		TabularOnly:     v.GetBool(TabularOnly),
		PageSize:        v.GetInt(PageSize),

		HTTPTimeout:     v.GetDuration(HTTPTimeout),
		HTTPMaxAttempts: v.GetInt(HTTPMaxAttempts),

		DBDriver:         strings.ToLower(strings.TrimSpace(v.GetString(DBDriver))),
		DatabaseURL:      v.GetString(DatabaseURL),
		PostgresHost:     v.GetString(PostgresHost),
		PostgresPort:     v.GetString(PostgresPort),
		PostgresUser:     v.GetString(PostgresUser),
		PostgresPassword: v.GetString(PostgresPassword),
		PostgresDB:       v.GetString(PostgresDB),
		PostgresSSLMode:  v.GetString(PostgresSSLMode),
		AutoMigrate:      v.GetBool(AutoMigrate),

		BatchSize:      v.GetInt(BatchSize),
		StrictMode:     v.GetBool(StrictMode),
		RejectsCSVPath: v.GetString(RejectsCSVPath),

		Environment: v.GetString(Environment),
		LogLevel:    v.GetString(LogLevel),
		SeqURL:      v.GetString(SeqURL),
		SeqToken:    v.GetString(SeqToken),
	}, nil
}

// Validate reports the first configuration problem that would make a run
// pointless. The credential file itself is checked by the token provider.
func (c *Config) Validate() error {
	switch {
	case c.FolderID == "":
		return errors.New("config: GOOGLE_DRIVE_FOLDER_ID is not set")
	case c.BatchSize < 1:
		return fmt.Errorf("config: BATCH_SIZE must be positive, got %d", c.BatchSize)
	case c.HTTPTimeout <= 0:
		return fmt.Errorf("config: HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	case c.HTTPMaxAttempts < 1:
		return fmt.Errorf("config: HTTP_MAX_ATTEMPTS must be at least 1, got %d", c.HTTPMaxAttempts)
	case c.PageSize < 1:
		return fmt.Errorf("config: DRIVE_PAGE_SIZE must be positive, got %d", c.PageSize)
	}

	switch c.DBDriver {
	case DriverPQ, DriverPGX, DriverPGDriver:
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q (want %s, %s or %s)",
			c.DBDriver, DriverPQ, DriverPGX, DriverPGDriver)
	}
	return nil
}

// DSN returns the PostgreSQL connection string. DATABASE_URL wins when set.
// The pg driver only understands URLs, so the URL form is always built.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     c.PostgresHost + ":" + c.PostgresPort,
		Path:     "/" + c.PostgresDB,
		RawQuery: "sslmode=" + url.QueryEscape(c.PostgresSSLMode),
	}
	return u.String()
}
