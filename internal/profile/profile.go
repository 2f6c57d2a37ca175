package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// Driver is the metadata database driver (sqlite or postgres)
	Driver string
	// DSN points to where the metadata registry stores its data
	DSN string
	// Secret signs and verifies session tokens
	Secret string
	// Version is the current version of server
	Version string

	// Cache engine configuration
	RedisAddr     string        // CACHESTREAM_REDIS_ADDR (default: localhost:6379)
	RedisPassword string        // CACHESTREAM_REDIS_PASSWORD
	RedisDB       int           // CACHESTREAM_REDIS_DB (default: 0)
	KeyPrefix     string        // CACHESTREAM_KEY_PREFIX (default: "cs")
	DefaultTTL    time.Duration // CACHESTREAM_DEFAULT_TTL (default: 5m)
	TagIndexTTL   time.Duration // CACHESTREAM_TAG_INDEX_TTL (default: 24h)
	OpTimeout     time.Duration // CACHESTREAM_OP_TIMEOUT (default: 3s)

	// Event stream configuration
	HeartbeatInterval time.Duration // CACHESTREAM_HEARTBEAT_INTERVAL (default: 30s)
	ReaperInterval    time.Duration // CACHESTREAM_REAPER_INTERVAL (default: 5m)
	IdleTimeout       time.Duration // CACHESTREAM_IDLE_TIMEOUT (default: 10m)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from CACHESTREAM_* environment variables.
func (p *Profile) FromEnv() {
	getDurationEnv := func(key string, defaultValue time.Duration) time.Duration {
		if val := os.Getenv(key); val != "" {
			if d, err := time.ParseDuration(val); err == nil && d > 0 {
				return d
			}
		}
		return defaultValue
	}
	getIntEnv := func(key string, defaultValue int) int {
		if val := os.Getenv(key); val != "" {
			if n, err := strconv.Atoi(val); err == nil {
				return n
			}
		}
		return defaultValue
	}

	p.RedisAddr = getEnvOrDefault("CACHESTREAM_REDIS_ADDR", "localhost:6379")
	p.RedisPassword = os.Getenv("CACHESTREAM_REDIS_PASSWORD")
	p.RedisDB = getIntEnv("CACHESTREAM_REDIS_DB", 0)
	p.KeyPrefix = getEnvOrDefault("CACHESTREAM_KEY_PREFIX", "cs")
	p.DefaultTTL = getDurationEnv("CACHESTREAM_DEFAULT_TTL", 5*time.Minute)
	p.TagIndexTTL = getDurationEnv("CACHESTREAM_TAG_INDEX_TTL", 24*time.Hour)
	p.OpTimeout = getDurationEnv("CACHESTREAM_OP_TIMEOUT", 3*time.Second)

	p.HeartbeatInterval = getDurationEnv("CACHESTREAM_HEARTBEAT_INTERVAL", 30*time.Second)
	p.ReaperInterval = getDurationEnv("CACHESTREAM_REAPER_INTERVAL", 5*time.Minute)
	p.IdleTimeout = getDurationEnv("CACHESTREAM_IDLE_TIMEOUT", 10*time.Minute)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Driver != "sqlite" && p.Driver != "postgres" {
		p.Driver = "sqlite"
	}

	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for postgres driver")
	}

	if p.Driver == "sqlite" && p.DSN == "" {
		if p.Data == "" {
			p.Data = "."
		}
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			return err
		}
		p.Data = dataDir
		dbFile := fmt.Sprintf("cachestream_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.Secret == "" {
		if p.Mode == "prod" {
			return errors.New("secret is required in prod mode")
		}
		p.Secret = "cachestream-dev"
	}

	return nil
}
