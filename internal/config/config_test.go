package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StoreBackendMemory, cfg.Store.Backend)
	assert.Equal(t, int64(5000), cfg.Business.RondListingFee)
	assert.Equal(t, 30, cfg.Business.LockTTLSeconds)
	assert.Equal(t, "sim_market_events", cfg.Kafka.Topic.MarketEvents)
}

func TestLoadReadsPackages(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: memory
business:
  rond_listing_fee: 7000
  default_packages:
    - name: bronze
      price: 50000
      duration_days: 30
      listing_limit: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(7000), cfg.Business.RondListingFee)
	require.Len(t, cfg.Business.DefaultPackages, 1)
	assert.Equal(t, 5, cfg.Business.DefaultPackages[0].ListingLimit)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: gorm
database:
  driver: postgres
  host: db.internal
  port: 5432
`)
	t.Setenv("MARKET_DATABASE_HOST", "10.0.0.7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.7", cfg.Database.Host)
	assert.Contains(t, cfg.Database.DSN(), "host=10.0.0.7 port=5432")
	assert.Contains(t, cfg.Database.DSN(), "sslmode=disable")
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: firestore
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	c := DatabaseConfig{Driver: DriverMySQL, Host: "h", Port: 3306, User: "u", Password: "p", Database: "d"}
	assert.Equal(t, "u:p@tcp(h:3306)/d?charset=utf8mb4&parseTime=True&loc=Local", c.DSN())
}
