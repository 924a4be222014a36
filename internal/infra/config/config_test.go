package config

import (
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("TIMEZONE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.True(t, cfg.SeedDemo)
	assert.Equal(t, time.Hour, cfg.PaymentWindow)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}, cfg.RetryBackoff)
	assert.Equal(t, "1", cfg.PriceTolerance.String())
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, gocql.Quorum, cfg.ScyllaConsistency)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadParsesLists(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RETRY_BACKOFF", "2s,,1m")
	t.Setenv("TIMEZONE", "Asia/Jakarta")
	t.Setenv("SEED_DEMO", "off")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []time.Duration{2 * time.Second, time.Minute}, cfg.RetryBackoff)
	assert.Equal(t, "Asia/Jakarta", cfg.Location.String())
	assert.False(t, cfg.SeedDemo)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"STORE_DRIVER":       "sqlite",
		"PAYMENT_WINDOW":     "soon",
		"RATE_LIMIT_BURST":   "many",
		"PRICE_TOLERANCE":    "one",
		"SCYLLA_CONSISTENCY": "two",
		"S3_USE_SSL":         "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}

	t.Run("postgres needs dsn", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "postgres")
		t.Setenv("POSTGRES_DSN", "")
		_, err := Load()
		assert.ErrorContains(t, err, "POSTGRES_DSN")
	})
}
