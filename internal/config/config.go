// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/andresuchdata/voice-transcriber/internal/storage"
)

const (
	DriverMinio = storage.DriverMinio
	DriverS3    = storage.DriverS3

	// DefaultWorkers bounds concurrent transfers in a batch download.
	DefaultWorkers = 30
)

type Config struct {
	Storage    StorageConfig
	Features   FeatureFlags
	Transfer   TransferSettings
	Cache      CacheConfig
	Recognizer RecognizerConfig
	Log        LogConfig
}

type StorageConfig struct {
	Driver       string
	Host         string
	Port         int
	UseSSL       bool
	AccessKey    string
	SecretKey    string
	Region       string
	UploadBucket string
	Version      string
}

// FeatureFlags are resolved once at startup; nothing below config compares flag strings.
type FeatureFlags struct {
	// MockStorage bypasses the object store entirely.
	MockStorage bool
	// DisableExistenceCheck makes every result-file existence check report "not found".
	DisableExistenceCheck bool
}

type TransferSettings struct {
	Workers int
}

type CacheConfig struct {
	Enabled       bool
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	TTLSeconds    int
}

type RecognizerConfig struct {
	Command      string
	Device       string
	DefaultModel string
}

type LogConfig struct {
	Level string
}

// TransferConfig is the per-client view of the configuration: where artifacts go and how the
// transfer layer behaves. It is passed by value and never mutated.
type TransferConfig struct {
	UploadBucket string
	PathPrefix   string
	Workers      int
	Features     FeatureFlags
}

var (
	once     sync.Once
	instance *Config
)

// Load reads the process configuration once. Later calls return the same instance.
func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()
		instance = FromEnv()
	})

	return instance
}

// FromEnv builds a Config from the current environment without caching it.
func FromEnv() *Config {
	v := viper.New()

	v.SetDefault("S3_DRIVER", DriverMinio)
	v.SetDefault("S3_HOST", "")
	v.SetDefault("S3_PORT", 443)
	v.SetDefault("S3_USE_SSL", true)
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_UPLOAD_ANALYSIS_BUCKET", "")
	v.SetDefault("S3_VERSION", "v0.0.1")
	v.SetDefault("FF_DEBUG_MOCK_S3", false)
	v.SetDefault("FF_DISABLE_CHECKING_OF_EXISTING_RESULT_FILE", false)
	v.SetDefault("TRANSFER_WORKERS", DefaultWorkers)
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL_SECONDS", 3600)
	v.SetDefault("RECOGNIZER_COMMAND", "whisper-timestamped-json")
	v.SetDefault("RECOGNIZER_DEVICE", "auto")
	v.SetDefault("RECOGNIZER_DEFAULT_MODEL", "large-v2")
	v.SetDefault("LOG_LEVEL", "info")

	// Read from environment variables
	v.AutomaticEnv()

	return &Config{
		Storage: StorageConfig{
			Driver:       strings.ToLower(strings.TrimSpace(v.GetString("S3_DRIVER"))),
			Host:         v.GetString("S3_HOST"),
			Port:         v.GetInt("S3_PORT"),
			UseSSL:       v.GetBool("S3_USE_SSL"),
			AccessKey:    v.GetString("S3_ACCESS_KEY"),
			SecretKey:    v.GetString("S3_SECRET_KEY"),
			Region:       v.GetString("S3_REGION"),
			UploadBucket: v.GetString("S3_UPLOAD_ANALYSIS_BUCKET"),
			Version:      v.GetString("S3_VERSION"),
		},
		Features: FeatureFlags{
			MockStorage:           v.GetBool("FF_DEBUG_MOCK_S3"),
			DisableExistenceCheck: v.GetBool("FF_DISABLE_CHECKING_OF_EXISTING_RESULT_FILE"),
		},
		Transfer: TransferSettings{
			Workers: v.GetInt("TRANSFER_WORKERS"),
		},
		Cache: CacheConfig{
			Enabled:       v.GetBool("CACHE_ENABLED"),
			RedisURL:      v.GetString("REDIS_URL"),
			RedisHost:     v.GetString("REDIS_HOST"),
			RedisPort:     v.GetString("REDIS_PORT"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			TTLSeconds:    v.GetInt("CACHE_TTL_SECONDS"),
		},
		Recognizer: RecognizerConfig{
			Command:      v.GetString("RECOGNIZER_COMMAND"),
			Device:       v.GetString("RECOGNIZER_DEVICE"),
			DefaultModel: v.GetString("RECOGNIZER_DEFAULT_MODEL"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Transfer.Workers < 1 {
		errs = append(errs, fmt.Errorf("TRANSFER_WORKERS must be at least 1, got %d", c.Transfer.Workers))
	}
	switch c.Storage.Driver {
	case DriverMinio, DriverS3:
	default:
		errs = append(errs, fmt.Errorf("unsupported S3_DRIVER %q", c.Storage.Driver))
	}
	if !c.Features.MockStorage {
		if c.Storage.Host == "" {
			errs = append(errs, errors.New("S3_HOST is required unless FF_DEBUG_MOCK_S3 is set"))
		}
		if c.Storage.UploadBucket == "" {
			errs = append(errs, errors.New("S3_UPLOAD_ANALYSIS_BUCKET is required unless FF_DEBUG_MOCK_S3 is set"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// TransferFor derives the configuration of a transfer client scoped to one test session.
// Uploads land under <version>/<testID>/<sessionID>.
func (c *Config) TransferFor(testID, sessionID string) TransferConfig {
	return TransferConfig{
		UploadBucket: c.Storage.UploadBucket,
		PathPrefix:   storage.JoinKey(c.Storage.Version, testID, sessionID),
		Workers:      c.Transfer.Workers,
		Features:     c.Features,
	}
}

// Backend translates the storage settings into what the backend factory needs.
func (c *Config) Backend() storage.BackendConfig {
	return storage.BackendConfig{
		Driver:    c.Storage.Driver,
		Endpoint:  c.Storage.Endpoint(),
		UseSSL:    c.Storage.UseSSL,
		AccessKey: c.Storage.AccessKey,
		SecretKey: c.Storage.SecretKey,
		Region:    c.Storage.Region,
		Mock:      c.Features.MockStorage,
	}
}

// Endpoint returns host:port as expected by S3-compatible clients.
func (s StorageConfig) Endpoint() string {
	if s.Host == "" || s.Port <= 0 {
		return s.Host
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// EndpointURL returns the endpoint with an explicit scheme.
func (s StorageConfig) EndpointURL() string {
	scheme := "https"
	if !s.UseSSL {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, s.Endpoint())
}
