package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "local")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "bharat-id-salt-2025", cfg.DID.Salt)
	assert.Equal(t, "sha256", cfg.DID.Hash)
	assert.Equal(t, "EdDSA", cfg.Issuer.SigningAlg)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, 25, cfg.Store.MaxOpenConns)
	assert.True(t, cfg.Store.AutoMigrate)
	assert.Equal(t, 5*time.Minute, cfg.Enrollment.ChallengeTTL)
	assert.Equal(t, "praman.audit", cfg.Kafka.AuditTopic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 3, cfg.Kafka.AuditPartitions)
	assert.Equal(t, 1, cfg.Kafka.ReplicationFactor)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 10, cfg.RateLimit.EnrollmentRequests)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, devAdminToken, cfg.Server.AdminToken)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("ISSUER_KEY_SEED", "00")
	t.Setenv("ADMIN_TOKEN", "0123456789abcdef0123")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://db/praman")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("ENROLLMENT_TTL", "90s")
	t.Setenv("DID_HASH", "sha3-256")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 90*time.Second, cfg.Enrollment.ChallengeTTL)
	assert.Equal(t, "sha3-256", cfg.DID.Hash)
	assert.False(t, cfg.IsLocal())
	assert.Equal(t, "0123456789abcdef0123", cfg.Server.AdminToken)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{"bad duration", map[string]string{"ENROLLMENT_TTL": "soon"}, "ENROLLMENT_TTL"},
		{"postgres without url", map[string]string{"STORE_BACKEND": "postgres"}, "DATABASE_URL"},
		{"mongo without uri", map[string]string{"STORE_BACKEND": "mongo"}, "MONGODB_URI"},
		{"unknown backend", map[string]string{"STORE_BACKEND": "etcd"}, "STORE_BACKEND"},
		{"unknown hash", map[string]string{"DID_HASH": "md5"}, "DID_HASH"},
		{"unknown alg", map[string]string{"ISSUER_SIGNING_ALG": "HS256"}, "ISSUER_SIGNING_ALG"},
		{"missing seed in production", map[string]string{"ENVIRONMENT": "production"}, "ISSUER_KEY_SEED"},
		{"missing admin token in production", map[string]string{"ENVIRONMENT": "production", "ISSUER_KEY_SEED": "00"}, "ADMIN_TOKEN is required"},
		{"short admin token in production", map[string]string{"ENVIRONMENT": "production", "ISSUER_KEY_SEED": "00", "ADMIN_TOKEN": "short"}, "at least 16"},
		{"default over max", map[string]string{"CREDENTIAL_DEFAULT_VALIDITY": "9000h"}, "CREDENTIAL_DEFAULT_VALIDITY"},
		{"zero rate limit window", map[string]string{"RATE_LIMIT_WINDOW": "0s"}, "RATE_LIMIT_ENABLED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
