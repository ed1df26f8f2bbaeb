package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/storage"
	"github.com/jwebster45206/quest-engine/pkg/storage/storagetest"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return openTestStore(t, filepath.Join(t.TempDir(), "quest.db"))
	})
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestOpen_OpenError(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	boom := errors.New("boom")
	openDB = func(string, string) (*sql.DB, error) { return nil, boom }

	_, err := Open(filepath.Join(t.TempDir(), "quest.db"))
	require.ErrorIs(t, err, boom)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "quest.db")
	ctx := context.Background()
	at := time.Date(2026, 6, 2, 8, 30, 0, 0, time.UTC)

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.AppendEvent(ctx, narrative.Event{UserID: "u1", Kind: narrative.KindJournalEntry, Attribute: narrative.AttributeNone, OccurredAt: at, Magnitude: 1})
	require.NoError(t, err)
	require.NoError(t, s.CreateNarrativeState(ctx, narrative.NewNarrativeState("u1", "ember_vale", "UTC", nil, at)))
	require.NoError(t, s.Close())

	// second open must skip the already-applied migration
	s = openTestStore(t, path)
	events, err := s.QueryEvents(ctx, "u1", narrative.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].OccurredAt.Equal(at))

	id, err := s.AppendEvent(ctx, narrative.Event{UserID: "u1", Kind: narrative.KindJournalEntry, Attribute: narrative.AttributeNone, OccurredAt: at, Magnitude: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), id, "event ids continue after reopen")

	st, err := s.LoadNarrativeState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ember_vale", st.ScenarioID)
	assert.Empty(t, st.Quests)

	var applied int
	require.NoError(t, s.sqlDB.QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestExtractUpMigration(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (id INTEGER);\n", extractUpMigration(content))
	assert.Equal(t, "SELECT 1;", extractUpMigration("SELECT 1;"))
}
