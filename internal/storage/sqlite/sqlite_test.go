package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskfs/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestWriteAndQuery(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	events := []storage.AuditEvent{
		{Subject: "shell", Action: "read_file", Source: "ipc", Status: storage.StatusOK, RequestID: "r1", TS: base},
		{Subject: "shell", Action: "write_file", Source: "ipc", Status: storage.StatusError, RequestID: "r2", TS: base.Add(time.Minute)},
		{Subject: "admin", Action: "list_files", Source: "web", Status: storage.StatusDenied, RequestID: "r3", TS: base.Add(2 * time.Minute)},
	}
	for _, ev := range events {
		require.NoError(t, st.Write(ctx, ev))
	}

	all, err := st.QueryAudit(ctx, storage.AuditQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].RequestID, "newest first")
	assert.True(t, all[0].TS.Equal(base.Add(2*time.Minute)))

	bySubject, err := st.QueryAudit(ctx, storage.AuditQuery{Subject: "shell"})
	require.NoError(t, err)
	assert.Len(t, bySubject, 2)

	bySource, err := st.QueryAudit(ctx, storage.AuditQuery{Source: "web"})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, storage.StatusDenied, bySource[0].Status)

	window, err := st.QueryAudit(ctx, storage.AuditQuery{From: base.Add(30 * time.Second), To: base.Add(90 * time.Second)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "r2", window[0].RequestID)

	limited, err := st.QueryAudit(ctx, storage.AuditQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPruneAudit(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.Write(ctx, storage.AuditEvent{Action: "read_file", Source: "cli", Status: storage.StatusOK, TS: now.Add(-48 * time.Hour)}))
	require.NoError(t, st.Write(ctx, storage.AuditEvent{Action: "read_file", Source: "cli", Status: storage.StatusOK, TS: now}))

	n, err := st.PruneAudit(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	left, err := st.QueryAudit(ctx, storage.AuditQuery{})
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestOpenInMemory(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Write(context.Background(), storage.AuditEvent{Action: "check_license", Source: "cli", Status: storage.StatusOK}))
	events, err := st.QueryAudit(context.Background(), storage.AuditQuery{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestOpenEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
