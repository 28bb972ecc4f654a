package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresInstanceID(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadDefaultsFromEnv(t *testing.T) {
	t.Setenv("JOBSTORE_INSTANCE_ID", "scheduler-1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "scheduler-1", cfg.InstanceID)
	assert.Equal(t, DefaultTablePrefix, cfg.TablePrefix)
	assert.Equal(t, int64(DefaultMisfireThresholdMs), cfg.MisfireThresholdMs)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobstore.yaml")
	content := "table_prefix: QRTZ2_\ninstance_id: scheduler-yaml\nuse_properties: true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "QRTZ2_", cfg.TablePrefix)
	assert.Equal(t, "scheduler-yaml", cfg.InstanceID)
	assert.True(t, cfg.UseProperties)
}
