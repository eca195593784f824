package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/backup-mongodb/internal/domain"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MONGODB_URI", "mongodb://mongo:27017/")
	t.Setenv("DB_NAME", "app")
	t.Setenv("BACKUP_DIR", "/backups")
	t.Setenv("DAILY_RETENTION", "6")
	t.Setenv("WEEKLY_RETENTION", "4")
	t.Setenv("MONTHLY_RETENTION", "12")
	t.Setenv("YEARLY_RETENTION", "2")
	t.Setenv("TZ", "")
}

func problems(t *testing.T, err error) []string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	return verr.Problems
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mongodb://mongo:27017", cfg.Mongo.URI)
	assert.Equal(t, "app", cfg.Mongo.Database)
	assert.True(t, cfg.Mongo.Preflight)
	assert.Zero(t, cfg.Mongo.DumpTimeout)
	assert.Equal(t, "backup", cfg.Backup.Name)
	assert.Equal(t, domain.StorageLocal, cfg.Backup.StorageMode)
	assert.Equal(t, domain.RetentionPolicy{Yearly: 2, Monthly: 12, Weekly: 4, Daily: 6}, cfg.Backup.Retention)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/backups", cfg.LocalDir())
}

func TestLoadRequiresAllRetentionCounts(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("WEEKLY_RETENTION", "")
	t.Setenv("YEARLY_RETENTION", "many")

	_, err := Load()
	require.Error(t, err)

	got := problems(t, err)
	assert.Contains(t, got, "WEEKLY_RETENTION is required")
	assert.Contains(t, got, `YEARLY_RETENTION must be a non-negative integer, got "many"`)
}

func TestLoadRejectsNegativeRetention(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DAILY_RETENTION", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Len(t, problems(t, err), 1)
}

func TestLoadRejectsNameWithPathSeparators(t *testing.T) {
	for _, name := range []string{"prod/db", `prod\db`, "../backup"} {
		t.Run(name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv("NAME", name)

			_, err := Load()
			got := problems(t, err)
			require.Len(t, got, 1)
			assert.Contains(t, got[0], "NAME must not contain path separators")
		})
	}
}

func TestLoadMissingRequired(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("MONGODB_URI", "")
	t.Setenv("DB_NAME", "")

	_, err := Load()
	got := problems(t, err)
	assert.Contains(t, got, "MONGODB_URI is required")
	assert.Contains(t, got, "DB_NAME is required")
}

func TestLoadStorageModes(t *testing.T) {
	t.Run("invalid", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("STORAGE_LOCATION", "ftp")
		_, err := Load()
		require.Error(t, err)
		assert.ErrorContains(t, err, "STORAGE_LOCATION")
	})

	t.Run("remote needs bucket and credentials", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("STORAGE_LOCATION", "remote")
		_, err := Load()
		got := problems(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("remote without backup dir stages in staging dir", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("BACKUP_DIR", "")
		t.Setenv("STORAGE_LOCATION", "REMOTE")
		t.Setenv("S3_BUCKET_NAME", "backups")
		t.Setenv("S3_BUCKET_PATH", "/mongo/")
		t.Setenv("AWS_ACCESS_KEY", "key")
		t.Setenv("AWS_SECRET_KEY", "secret")
		t.Setenv("STAGING_DIR", "/tmp/staging")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, domain.StorageRemote, cfg.Backup.StorageMode)
		assert.Equal(t, "mongo", cfg.S3.Path)
		assert.Equal(t, "/tmp/staging", cfg.LocalDir())
	})

	t.Run("both needs backup dir", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("BACKUP_DIR", "")
		t.Setenv("STORAGE_LOCATION", "both")
		t.Setenv("S3_BUCKET_NAME", "backups")
		t.Setenv("AWS_ACCESS_KEY", "key")
		t.Setenv("AWS_SECRET_KEY", "secret")
		_, err := Load()
		assert.Len(t, problems(t, err), 1)
	})
}

func TestLoadPrefixedKeysWin(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("BACKUP_MONGODB_DB_NAME", "prefixed")
	t.Setenv("BACKUP_MONGODB_DUMP_TIMEOUT_SECONDS", "90")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Mongo.Database)
	assert.Equal(t, 90*time.Second, cfg.Mongo.DumpTimeout)
}

func TestLoadValidatesScheduleZoneAndLevel(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CRON", "0 2 * *")
	t.Setenv("TZ", "Mars/Olympus")
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := Load()
	got := problems(t, err)
	assert.Len(t, got, 3)
}

func TestLoadAcceptsScheduleAndZone(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CRON", "*/15 2 * * *")
	t.Setenv("TZ", "Europe/Paris")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "*/15 2 * * *", cfg.Backup.Cron)
	assert.Equal(t, "Europe/Paris", cfg.Backup.Timezone)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}
