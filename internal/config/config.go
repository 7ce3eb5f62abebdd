package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
)

// Config is the root scraper configuration.
type Config struct {
	Platform   PlatformConfig   `yaml:"platform"`
	Browser    BrowserConfig    `yaml:"browser"`
	Scrape     ScrapeConfig     `yaml:"scrape"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Downloader DownloaderConfig `yaml:"downloader"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    logger.Config    `yaml:"logging"`
}

// PlatformConfig locates the e-learning platform.
type PlatformConfig struct {
	// BaseURL is the platform origin, e.g. https://academy.example.com.
	BaseURL string `env:"PLATFORM_BASE_URL" yaml:"base_url"`
	// LoginURL is the login form page.
	LoginURL string `env:"PLATFORM_LOGIN_URL" yaml:"login_url"`
	// TrainingURL is the path/training listing page; training detail pages
	// live under {TrainingURL}/view/{id}/.
	TrainingURL string `env:"PLATFORM_TRAINING_URL" yaml:"training_url"`
	Username    string `env:"PLATFORM_USERNAME"     yaml:"username"`
	Password    string `env:"PLATFORM_PASSWORD"     yaml:"password"`
}

// BrowserConfig configures the Chrome instance.
type BrowserConfig struct {
	// Headful shows the browser window. Headless is the default.
	Headful   bool   `env:"BROWSER_HEADFUL"   yaml:"headful"`
	ExecPath  string `env:"BROWSER_EXEC_PATH" yaml:"exec_path"`
	UserAgent string `env:"BROWSER_USER_AGENT" yaml:"user_agent"`
	// LoginTimeout bounds the whole login sequence.
	LoginTimeout time.Duration `env:"BROWSER_LOGIN_TIMEOUT" yaml:"login_timeout"`
}

// ScrapeConfig tunes traversal timing.
type ScrapeConfig struct {
	NavigationAttempts int           `env:"SCRAPE_NAVIGATION_ATTEMPTS" yaml:"navigation_attempts"`
	NavigationDelay    time.Duration `env:"SCRAPE_NAVIGATION_DELAY"    yaml:"navigation_delay"`
	WaitTimeout        time.Duration `env:"SCRAPE_WAIT_TIMEOUT"        yaml:"wait_timeout"`
	PaginationTimeout  time.Duration `env:"SCRAPE_PAGINATION_TIMEOUT"  yaml:"pagination_timeout"`
	SettleDelay        time.Duration `env:"SCRAPE_SETTLE_DELAY"        yaml:"settle_delay"`
	PollInterval       time.Duration `env:"SCRAPE_POLL_INTERVAL"       yaml:"poll_interval"`
	// SkipContents disables the step content pass.
	SkipContents bool `env:"SCRAPE_SKIP_CONTENTS" yaml:"skip_contents"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	Host            string        `env:"POSTGRES_HOST"     yaml:"host"`
	Port            int           `env:"POSTGRES_PORT"     yaml:"port"`
	User            string        `env:"POSTGRES_USER"     yaml:"user"`
	Password        string        `env:"POSTGRES_PASSWORD" yaml:"password"`
	Database        string        `env:"POSTGRES_DB"       yaml:"database"`
	SSLMode         string        `env:"POSTGRES_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_connections"`
	MaxIdleConns    int           `yaml:"max_idle_connections"`
	ConnMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
	// MigrationsPath is the directory holding the SQL migrations.
	MigrationsPath string `env:"MIGRATIONS_PATH" yaml:"migrations_path"`
}

// DSN returns the lib/pq keyword connection string.
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

// URL returns the postgres:// form used by the migrator.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// Storage backends.
const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageSFTP  = "sftp"
)

// StorageConfig selects where content files go.
type StorageConfig struct {
	Backend  string      `env:"STORAGE_BACKEND"   yaml:"backend"`
	LocalDir string      `env:"STORAGE_LOCAL_DIR" yaml:"local_dir"`
	Minio    MinioConfig `yaml:"minio"`
	SFTP     SFTPConfig  `yaml:"sftp"`
}

// MinioConfig configures the object store backend.
type MinioConfig struct {
	Endpoint      string        `env:"MINIO_ENDPOINT"   yaml:"endpoint"`
	AccessKey     string        `env:"MINIO_ACCESS_KEY" yaml:"access_key"`
	SecretKey     string        `env:"MINIO_SECRET_KEY" yaml:"secret_key"`
	UseSSL        bool          `env:"MINIO_USE_SSL"    yaml:"use_ssl"`
	Bucket        string        `env:"MINIO_BUCKET"     yaml:"bucket"`
	UploadTimeout time.Duration `yaml:"upload_timeout"`
	MaxRetries    int           `yaml:"max_retries"`
}

// SFTPConfig configures the SFTP backend.
type SFTPConfig struct {
	Host      string `env:"SFTP_HOST"       yaml:"host"`
	Port      int    `env:"SFTP_PORT"       yaml:"port"`
	User      string `env:"SFTP_USER"       yaml:"user"`
	Password  string `env:"SFTP_PASS"       yaml:"password"`
	RemoteDir string `env:"SFTP_REMOTE_DIR" yaml:"remote_dir"`
	// KnownHostsFile verifies the server key; empty accepts any key.
	KnownHostsFile string        `env:"SFTP_KNOWN_HOSTS" yaml:"known_hosts_file"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
}

// DownloaderConfig configures content downloads.
type DownloaderConfig struct {
	// YtDlpPath is the external video downloader binary.
	YtDlpPath string `env:"YTDLP_PATH" yaml:"ytdlp_path"`
	// WorkDir stages videos before they are handed to the store.
	WorkDir     string        `env:"DOWNLOADER_WORK_DIR" yaml:"work_dir"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	// VideoTimeout bounds a single downloader invocation.
	VideoTimeout time.Duration `yaml:"video_timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" yaml:"enabled"`
	Address string `env:"METRICS_ADDRESS" yaml:"address"`
}

// Defaults.
const (
	defaultNavigationAttempts = 3
	defaultNavigationDelay    = 2 * time.Second
	defaultWaitTimeout        = 10 * time.Second
	defaultPaginationTimeout  = 30 * time.Second
	defaultSettleDelay        = time.Second
	defaultPollInterval       = 250 * time.Millisecond
	defaultLoginTimeout       = 60 * time.Second
	defaultPostgresPort       = 5432
	defaultMaxOpenConns       = 25
	defaultMaxIdleConns       = 5
	defaultConnMaxLifetime    = 5 * time.Minute
	defaultUploadTimeout      = 30 * time.Second
	defaultMaxRetries         = 3
	defaultSFTPPort           = 22
	defaultSFTPDialTimeout    = 20 * time.Second
	defaultHTTPTimeout        = 60 * time.Second
	defaultVideoTimeout       = 30 * time.Minute
	defaultMetricsAddress     = ":9109"
)

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	c.Platform.setDefaults()
	c.Browser.setDefaults()
	c.Scrape.setDefaults()
	c.Database.setDefaults()
	c.Storage.setDefaults()
	c.Downloader.setDefaults()
	if c.Metrics.Address == "" {
		c.Metrics.Address = defaultMetricsAddress
	}
	c.Logging.SetDefaults()
}

func (c *PlatformConfig) setDefaults() {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.BaseURL == "" {
		return
	}
	if c.LoginURL == "" {
		c.LoginURL = c.BaseURL + "/login"
	}
	if c.TrainingURL == "" {
		c.TrainingURL = c.BaseURL + "/Training"
	}
	c.TrainingURL = strings.TrimRight(c.TrainingURL, "/")
}

func (c *BrowserConfig) setDefaults() {
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = defaultLoginTimeout
	}
}

func (c *ScrapeConfig) setDefaults() {
	if c.NavigationAttempts <= 0 {
		c.NavigationAttempts = defaultNavigationAttempts
	}
	if c.NavigationDelay <= 0 {
		c.NavigationDelay = defaultNavigationDelay
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = defaultWaitTimeout
	}
	if c.PaginationTimeout <= 0 {
		c.PaginationTimeout = defaultPaginationTimeout
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
}

func (c *DatabaseConfig) setDefaults() {
	if c.Port == 0 {
		c.Port = defaultPostgresPort
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = defaultMaxOpenConns
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = defaultMaxIdleConns
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = defaultConnMaxLifetime
	}
	if c.MigrationsPath == "" {
		c.MigrationsPath = "migrations"
	}
}

func (c *StorageConfig) setDefaults() {
	if c.Backend == "" {
		c.Backend = StorageLocal
	}
	if c.LocalDir == "" {
		c.LocalDir = "contents"
	}
	if c.Minio.UploadTimeout <= 0 {
		c.Minio.UploadTimeout = defaultUploadTimeout
	}
	if c.Minio.MaxRetries <= 0 {
		c.Minio.MaxRetries = defaultMaxRetries
	}
	if c.SFTP.Port == 0 {
		c.SFTP.Port = defaultSFTPPort
	}
	if c.SFTP.RemoteDir == "" {
		c.SFTP.RemoteDir = "/"
	}
	if c.SFTP.DialTimeout <= 0 {
		c.SFTP.DialTimeout = defaultSFTPDialTimeout
	}
}

func (c *DownloaderConfig) setDefaults() {
	if c.YtDlpPath == "" {
		c.YtDlpPath = "yt-dlp"
	}
	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(os.TempDir(), "progress-scraper")
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.VideoTimeout <= 0 {
		c.VideoTimeout = defaultVideoTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
}

// Load reads the configuration at path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path, func(c *Config) { c.SetDefaults() })
	if err != nil {
		return nil, err
	}
	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("invalid config: %w", validateErr)
	}
	return cfg, nil
}
