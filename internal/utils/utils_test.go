package utils

import (
	"crypto/tls"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_STR", " abc ")
	t.Setenv("X_INT", "42")
	t.Setenv("X_BAD_INT", "4x")
	t.Setenv("X_BOOL", "YES")
	t.Setenv("X_FLOAT", "2.5")
	t.Setenv("X_DUR", "90")
	t.Setenv("X_DUR2", "1m30s")

	assert.Equal(t, "abc", EnvString("X_STR", "d"))
	assert.Equal(t, "d", EnvString("X_UNSET", "d"))
	assert.Equal(t, 42, EnvInt("X_INT", 1))
	assert.Equal(t, 1, EnvInt("X_BAD_INT", 1))
	assert.True(t, EnvBool("X_BOOL", false))
	assert.True(t, EnvBool("X_UNSET", true))
	assert.InDelta(t, 2.5, EnvFloat("X_FLOAT", 0), 1e-9)
	assert.Equal(t, 90*time.Second, EnvDuration("X_DUR", 0))
	assert.Equal(t, 90*time.Second, EnvDuration("X_DUR2", 0))
}

func TestBuildPostgresDSNFromEnv(t *testing.T) {
	t.Setenv("PG_HOST", "db")
	t.Setenv("PG_PORT", "5433")
	t.Setenv("PG_USER", "bag")
	t.Setenv("PG_PASSWORD", "p@ss")
	t.Setenv("PG_DB", "")
	t.Setenv("PG_SSLMODE", "require")
	assert.Equal(t, "postgres://bag:p%40ss@db:5433/pcindex?sslmode=require", BuildPostgresDSNFromEnv())
}

func TestOpenRedisFromEnv_Disabled(t *testing.T) {
	t.Setenv("REDIS_ENABLED", "")
	assert.Nil(t, OpenRedisFromEnv())
}

func TestEnsureSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "tls", "cert.pem")
	key := filepath.Join(dir, "tls", "key.pem")
	require.NoError(t, EnsureSelfSignedCert(cert, key, "pcindex.local"))
	_, err := tls.LoadX509KeyPair(cert, key)
	require.NoError(t, err)
	// 已存在时不重新生成
	require.NoError(t, EnsureSelfSignedCert(cert, key, "other"))
}
