package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	require.NotNil(t, cfg)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 8, cfg.Fanout.Concurrency)
	assert.Equal(t, int64(10*1024*1024), cfg.Uploads.MaxFileSizeBytes)
	assert.Equal(t, int64(50*1024*1024), cfg.Uploads.MaxTotalSizeBytes)
	assert.Contains(t, cfg.Uploads.AllowedExtensions, "pdf")
	assert.Equal(t, "assignment-notifications", cfg.Notifications.Channel)
}

func TestUnknownStoreDriverFallsBackToPostgres(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("STORE_DRIVER", "firestore")
	v.Set("FANOUT_CONCURRENCY", -1)

	cfg := fromViper(v)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 8, cfg.Fanout.Concurrency)
}

func TestMongoDriver(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("STORE_DRIVER", " Mongo ")

	cfg := fromViper(v)
	assert.Equal(t, StoreDriverMongo, cfg.Store.Driver)
	assert.Equal(t, "assignment_tracker", cfg.Mongo.Database)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("nope", time.Minute))
	assert.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
}
