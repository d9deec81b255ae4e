package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Files    FilesConfig    `yaml:"files"`
	Vision   VisionConfig   `yaml:"vision"`
	Quality  QualityConfig  `yaml:"quality"`
	Policy   PolicyConfig   `yaml:"policy"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port      int           `yaml:"port"`
	APIKey    string        `yaml:"api_key"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	// MaxUploadBytes caps a single multipart frame or upload.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Name       string `yaml:"name"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	MaxConns   int    `yaml:"max_conns"`
	SQLitePath string `yaml:"sqlite_path"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	// URL is optional; without it visit events are delivered in-process.
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	PublicURL string `yaml:"public_url"`
}

// FilesConfig configures the local image store used when MinIO is not set up.
type FilesConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	// MatchThreshold is the distance below which a face is accepted as a gallery label.
	MatchThreshold float64       `yaml:"match_threshold"`
	MinFaceSize    int           `yaml:"min_face_size"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
}

type QualityConfig struct {
	MaxDimension int `yaml:"max_dimension"`
}

type PolicyConfig struct {
	// AutoGrantKnown grants a visit as soon as a known gallery visitor is resolved.
	AutoGrantKnown bool `yaml:"auto_grant_known"`
}

type NotifyConfig struct {
	// Provider is "fcm" or "log".
	Provider        string        `yaml:"provider"`
	CredentialsFile string        `yaml:"credentials_file"`
	Concurrency     int           `yaml:"concurrency"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
	WorkerCount     int           `yaml:"worker_count"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A .env file in the working directory, if any, is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects combinations the services cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Notify.Provider {
	case "fcm":
		if c.Notify.CredentialsFile == "" {
			return fmt.Errorf("notify.credentials_file is required for the fcm provider")
		}
	case "log":
	default:
		return fmt.Errorf("unknown notify provider %q", c.Notify.Provider)
	}
	if c.Vision.MatchThreshold <= 0 {
		return fmt.Errorf("vision.match_threshold must be positive")
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.TokenTTL == 0 {
		cfg.Server.TokenTTL = 30 * 24 * time.Hour
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "doorgate.db"
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "doorgate"
	}
	if cfg.Files.Dir == "" {
		cfg.Files.Dir = "uploads"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.MatchThreshold == 0 {
		cfg.Vision.MatchThreshold = 50
	}
	if cfg.Vision.MinFaceSize == 0 {
		cfg.Vision.MinFaceSize = 80
	}
	if cfg.Vision.FetchTimeout == 0 {
		cfg.Vision.FetchTimeout = 10 * time.Second
	}
	if cfg.Quality.MaxDimension == 0 {
		cfg.Quality.MaxDimension = 640
	}
	if cfg.Notify.Provider == "" {
		cfg.Notify.Provider = "log"
	}
	if cfg.Notify.Concurrency == 0 {
		cfg.Notify.Concurrency = 8
	}
	if cfg.Notify.SendTimeout == 0 {
		cfg.Notify.SendTimeout = 5 * time.Second
	}
	if cfg.Notify.WorkerCount == 0 {
		cfg.Notify.WorkerCount = 4
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOORGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DOORGATE_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("DOORGATE_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("DOORGATE_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DOORGATE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DOORGATE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DOORGATE_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("DOORGATE_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DOORGATE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DOORGATE_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("DOORGATE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("DOORGATE_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("DOORGATE_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("DOORGATE_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("DOORGATE_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("DOORGATE_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("DOORGATE_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Vision.MatchThreshold = f
		}
	}
	if v := os.Getenv("DOORGATE_AUTO_GRANT_KNOWN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Policy.AutoGrantKnown = b
		}
	}
	if v := os.Getenv("DOORGATE_NOTIFY_PROVIDER"); v != "" {
		cfg.Notify.Provider = v
	}
	if v := os.Getenv("DOORGATE_FCM_CREDENTIALS"); v != "" {
		cfg.Notify.CredentialsFile = v
	}
}
