package activity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosy-tax/reviewer/internal/models"
)

func TestJournal_RecordAndRecent(t *testing.T) {
	j, err := Open("")
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Record(ctx, models.Event{SessionID: "s1", Kind: models.EventUpload, OK: true, Status: "Processing complete", At: base}))
	require.NoError(t, j.Record(ctx, models.Event{SessionID: "s1", Kind: models.EventSave, OK: true, Status: "Updated fields for w2.txt", At: base.Add(time.Second)}))
	require.NoError(t, j.Record(ctx, models.Event{SessionID: "s2", Kind: models.EventFinalize, OK: false, Status: "Finalize failed", At: base.Add(2 * time.Second)}))

	events, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.EventFinalize, events[0].Kind)
	assert.False(t, events[0].OK)
	assert.Equal(t, models.EventUpload, events[2].Kind)
	assert.True(t, events[2].At.Equal(base))

	limited, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestJournal_ForSession(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "activity.duckdb"))
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	require.NoError(t, j.Record(ctx, models.Event{SessionID: "a", Kind: models.EventUpload, OK: true}))
	require.NoError(t, j.Record(ctx, models.Event{SessionID: "b", Kind: models.EventUpload, OK: false}))
	require.NoError(t, j.Record(ctx, models.Event{SessionID: "a", Kind: models.EventFinalize, OK: true}))

	events, err := j.ForSession(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventFinalize, events[0].Kind)
	assert.Equal(t, "a", events[1].SessionID)

	none, err := j.ForSession(ctx, "zzz", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
