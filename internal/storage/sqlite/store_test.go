package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quartzdb/jobstore/internal/config"
)

// setupTestStore returns a Store backed by a fresh on-disk SQLite database
// under t.TempDir(), configured with instanceID as its scheduler identity.
// Using a file rather than ":memory:" keeps behaviour identical across the
// single pooled connection withTx relies on (grounded on the teacher's own
// claim_test.go pattern of a throwaway per-test database file).
func setupTestStore(t *testing.T, instanceID string) *Store {
	t.Helper()
	dir := t.TempDir()
	dsn := fmt.Sprintf("file:%s", filepath.Join(dir, "jobstore.db"))

	cfg := config.Defaults()
	cfg.InstanceID = instanceID

	store, err := Open(context.Background(), dsn, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func unixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
