package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends accepted in STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// devAdminToken is used for ADMIN_TOKEN in local and test environments only.
const devAdminToken = "local-admin-token"

// Config is the full process configuration, read once at start.
type Config struct {
	Server     Server
	DID        DID
	Issuer     Issuer
	Store      Store
	Redis      RedisConfig
	Mongo      MongoConfig
	Kafka      KafkaConfig
	Enrollment Enrollment
	Resolver   Resolver
	RateLimit  RateLimit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	Environment     string
	RequestTimeout  time.Duration
	MaxBodyBytes    int64
	TrustedProxies  string
	ShutdownTimeout time.Duration
	// AdminToken guards issuance, revocation and registry writes.
	AdminToken string
}

// DID configures the derivation engine.
type DID struct {
	Salt string
	Hash string
}

// Issuer configures the credential issuer key and validity bounds.
type Issuer struct {
	SigningAlg      string
	KeySeedHex      string
	ServiceEndpoint string
	DefaultValidity time.Duration
	MaxValidity     time.Duration
}

// Store selects the registration and revocation backend.
type Store struct {
	Backend         string
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// AutoMigrate applies embedded migrations on startup.
	AutoMigrate bool
}

// RedisConfig configures the shared Redis client. Empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MongoConfig configures the MongoDB registration store.
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// KafkaConfig configures the audit sink. Empty Brokers means log-only auditing.
type KafkaConfig struct {
	Brokers           []string
	AuditTopic        string
	ClientID          string
	AuditPartitions   int
	ReplicationFactor int
}

// Enrollment configures the WebAuthn relying party.
type Enrollment struct {
	RPID         string
	RPName       string
	RPOrigin     string
	ChallengeTTL time.Duration
}

// Resolver configures DID resolution caching.
type Resolver struct {
	CacheTTL time.Duration
}

// RateLimit configures per-IP request budgets. Enrollment has its own,
// stricter budget.
type RateLimit struct {
	Enabled            bool
	MaxRequests        int
	EnrollmentRequests int
	Window             time.Duration
}

// IsLocal reports whether the process runs in a developer environment.
func (c Config) IsLocal() bool {
	return c.Server.Environment == "local" || c.Server.Environment == "test"
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []error
	dur := func(key string, def time.Duration) time.Duration {
		d, err := durationEnv(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	cfg := Config{
		Server: Server{
			Addr:            env("ADDR", ":8080"),
			Environment:     env("ENVIRONMENT", "local"),
			RequestTimeout:  dur("REQUEST_TIMEOUT", 10*time.Second),
			MaxBodyBytes:    int64(intEnv("MAX_BODY_BYTES", 256*1024)),
			TrustedProxies:  os.Getenv("TRUSTED_PROXIES"),
			ShutdownTimeout: dur("SHUTDOWN_TIMEOUT", 10*time.Second),
			AdminToken:      strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),
		},
		DID: DID{
			Salt: env("DID_SALT", "bharat-id-salt-2025"),
			Hash: env("DID_HASH", "sha256"),
		},
		Issuer: Issuer{
			SigningAlg:      env("ISSUER_SIGNING_ALG", "EdDSA"),
			KeySeedHex:      os.Getenv("ISSUER_KEY_SEED"),
			ServiceEndpoint: env("ISSUER_SERVICE_ENDPOINT", "http://localhost:8080/credentials"),
			DefaultValidity: dur("CREDENTIAL_DEFAULT_VALIDITY", 365*24*time.Hour),
			MaxValidity:     dur("CREDENTIAL_MAX_VALIDITY", 365*24*time.Hour),
		},
		Store: Store{
			Backend:         env("STORE_BACKEND", StoreMemory),
			DatabaseURL:     os.Getenv("DATABASE_URL"),
			MaxOpenConns:    intEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    intEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: dur("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     env("DB_AUTO_MIGRATE", "true") != "false",
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intEnv("REDIS_POOL_SIZE", 20),
			MinIdleConns: intEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  dur("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  dur("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: dur("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Mongo: MongoConfig{
			URI:      os.Getenv("MONGODB_URI"),
			Database: env("MONGODB_DATABASE", "praman"),
			Timeout:  dur("MONGODB_TIMEOUT", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    splitCSV(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: env("KAFKA_AUDIT_TOPIC", "praman.audit"),
			ClientID:   env("KAFKA_CLIENT_ID", "praman"),

			AuditPartitions:   intEnv("KAFKA_AUDIT_PARTITIONS", 3),
			ReplicationFactor: intEnv("KAFKA_REPLICATION_FACTOR", 1),
		},
		Enrollment: Enrollment{
			RPID:         env("RP_ID", "localhost"),
			RPName:       env("RP_NAME", "Praman"),
			RPOrigin:     env("RP_ORIGIN", "http://localhost:3000"),
			ChallengeTTL: dur("ENROLLMENT_TTL", 5*time.Minute),
		},
		Resolver: Resolver{
			CacheTTL: dur("RESOLVER_CACHE_TTL", 10*time.Minute),
		},
		RateLimit: RateLimit{
			Enabled:            env("RATE_LIMIT_ENABLED", "true") != "false",
			MaxRequests:        intEnv("RATE_LIMIT_MAX_REQUESTS", 100),
			EnrollmentRequests: intEnv("RATE_LIMIT_WEBAUTHN_MAX", 10),
			Window:             dur("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if cfg.Server.AdminToken == "" && cfg.IsLocal() {
		cfg.Server.AdminToken = devAdminToken
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres store"))
		}
	case StoreMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	if c.DID.Salt == "" {
		errs = append(errs, errors.New("DID_SALT must not be empty"))
	}
	if c.DID.Hash != "sha256" && c.DID.Hash != "sha3-256" {
		errs = append(errs, fmt.Errorf("unknown DID_HASH %q", c.DID.Hash))
	}
	if c.Issuer.SigningAlg != "EdDSA" && c.Issuer.SigningAlg != "ES256K" {
		errs = append(errs, fmt.Errorf("unknown ISSUER_SIGNING_ALG %q", c.Issuer.SigningAlg))
	}
	if c.Issuer.KeySeedHex == "" && !c.IsLocal() {
		errs = append(errs, errors.New("ISSUER_KEY_SEED is required outside local environments"))
	}
	if c.Server.AdminToken == "" {
		errs = append(errs, errors.New("ADMIN_TOKEN is required outside local environments"))
	} else if len(c.Server.AdminToken) < 16 && !c.IsLocal() {
		errs = append(errs, errors.New("ADMIN_TOKEN must be at least 16 characters"))
	}
	if c.Issuer.DefaultValidity <= 0 || c.Issuer.DefaultValidity > c.Issuer.MaxValidity {
		errs = append(errs, errors.New("CREDENTIAL_DEFAULT_VALIDITY must be positive and not exceed CREDENTIAL_MAX_VALIDITY"))
	}
	if c.Enrollment.ChallengeTTL <= 0 {
		errs = append(errs, errors.New("ENROLLMENT_TTL must be positive"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.MaxRequests <= 0 || c.RateLimit.EnrollmentRequests <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate limits must be positive when RATE_LIMIT_ENABLED"))
	}
	return errors.Join(errs...)
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return def
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
