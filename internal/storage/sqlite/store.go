// Package sqlite implements storage.Storage on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jwebster45206/quest-engine/internal/storage/sqlite/migrations"
	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

const migrationTable = "schema_migrations"

// Store is a SQLite-backed storage.Storage.
type Store struct {
	sqlDB *sql.DB
}

// Ensure Store implements Storage interface
var _ storage.Storage = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies
// migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	sqlDB, err := openDB("sqlite", cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writers, so pragmas apply everywhere and
	// write transactions never race into SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Event log

func (s *Store) AppendEvent(ctx context.Context, e narrative.Event) (int64, error) {
	ids, err := s.AppendEvents(ctx, []narrative.Event{e})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// AppendEvents stores the batch in one transaction.
func (s *Store) AppendEvents(ctx context.Context, events []narrative.Event) ([]int64, error) {
	userID, err := narrative.BatchUser(events)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(events))
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range events {
			var id int64
			if err := tx.QueryRowContext(ctx, `
INSERT INTO event_sequences (user_id, last_id) VALUES (?, 1)
ON CONFLICT (user_id) DO UPDATE SET last_id = last_id + 1
RETURNING last_id
`, userID).Scan(&id); err != nil {
				return fmt.Errorf("next event id: %w", err)
			}

			_, err := tx.ExecContext(ctx, `
INSERT INTO events (user_id, event_id, kind, attribute, occurred_at, magnitude)
VALUES (?, ?, ?, ?, ?, ?)
`,
				userID,
				id,
				string(e.Kind),
				string(e.Attribute),
				toMillis(e.OccurredAt),
				e.Magnitude,
			)
			if err != nil {
				return fmt.Errorf("insert event: %w", err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append events: %w", err)
	}
	return ids, nil
}

func (s *Store) QueryEvents(ctx context.Context, userID string, filter narrative.EventFilter) ([]narrative.Event, error) {
	query := `
SELECT event_id, kind, attribute, occurred_at, magnitude
FROM events
WHERE user_id = ?`
	args := []any{userID}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Attribute != nil {
		query += ` AND attribute = ?`
		args = append(args, string(*filter.Attribute))
	}
	// Stored times are whole milliseconds; widen here and let Match apply
	// the exact bounds.
	if filter.From != nil {
		query += ` AND occurred_at >= ?`
		args = append(args, toMillis(*filter.From)-1)
	}
	if filter.To != nil {
		query += ` AND occurred_at <= ?`
		args = append(args, toMillis(*filter.To)+1)
	}
	query += ` ORDER BY occurred_at, event_id`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]narrative.Event, 0)
	for rows.Next() {
		var (
			e          narrative.Event
			kind, attr string
			occurredAt int64
		)
		if err := rows.Scan(&e.ID, &kind, &attr, &occurredAt, &e.Magnitude); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.UserID = userID
		e.Kind = narrative.EventKind(kind)
		e.Attribute = narrative.Attribute(attr)
		e.OccurredAt = fromMillis(occurredAt)
		if filter.Match(e) {
			events = append(events, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	narrative.SortEvents(events)
	return events, nil
}

// Narrative state

func (s *Store) CreateNarrativeState(ctx context.Context, st *narrative.NarrativeState) error {
	if st == nil {
		return errors.New("narrative state cannot be nil")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO narrative_states (user_id, scenario_id, time_zone, current_chapter, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO NOTHING
`,
			st.UserID, st.ScenarioID, st.TimeZone, st.CurrentChapter, toMillis(st.CreatedAt), toMillis(st.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert narrative state: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert narrative state: %w", err)
		}
		if n == 0 {
			var scenarioID string
			if err := tx.QueryRowContext(ctx, `SELECT scenario_id FROM narrative_states WHERE user_id = ?`, st.UserID).Scan(&scenarioID); err != nil {
				scenarioID = "unknown"
			}
			return narrative.Conflictf("user %q already has a narrative in scenario %q", st.UserID, scenarioID).
				With("user_id", st.UserID).
				With("scenario_id", scenarioID)
		}
		return insertQuests(ctx, tx, st)
	})
}

func (s *Store) LoadNarrativeState(ctx context.Context, userID string) (*narrative.NarrativeState, error) {
	st := &narrative.NarrativeState{UserID: userID}
	var createdAt, updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT scenario_id, time_zone, current_chapter, created_at, updated_at
FROM narrative_states
WHERE user_id = ?
`, userID).Scan(&st.ScenarioID, &st.TimeZone, &st.CurrentChapter, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, narrative.NotFoundf("no narrative for user %q", userID).With("user_id", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load narrative state: %w", err)
	}
	st.CreatedAt = fromMillis(createdAt)
	st.UpdatedAt = fromMillis(updatedAt)

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT quest_id, scenario_id, status, unlocked_at, consumed_at
FROM quest_instances
WHERE user_id = ?
ORDER BY position
`, userID)
	if err != nil {
		return nil, fmt.Errorf("load quests: %w", err)
	}
	defer rows.Close()

	st.Quests = make([]narrative.Quest, 0)
	for rows.Next() {
		var (
			q                      narrative.Quest
			status                 string
			unlockedAt, consumedAt sql.NullInt64
		)
		if err := rows.Scan(&q.ID, &q.ScenarioID, &status, &unlockedAt, &consumedAt); err != nil {
			return nil, fmt.Errorf("scan quest: %w", err)
		}
		q.Status = narrative.QuestStatus(status)
		q.UnlockedAt = nullableTime(unlockedAt)
		q.ConsumedAt = nullableTime(consumedAt)
		st.Quests = append(st.Quests, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quests: %w", err)
	}
	return st, nil
}

func (s *Store) SaveNarrativeState(ctx context.Context, st *narrative.NarrativeState) error {
	if st == nil {
		return errors.New("narrative state cannot be nil")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO narrative_states (user_id, scenario_id, time_zone, current_chapter, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
	scenario_id = excluded.scenario_id,
	time_zone = excluded.time_zone,
	current_chapter = excluded.current_chapter,
	updated_at = excluded.updated_at
`,
			st.UserID, st.ScenarioID, st.TimeZone, st.CurrentChapter, toMillis(st.CreatedAt), toMillis(st.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("save narrative state: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM quest_instances WHERE user_id = ?`, st.UserID); err != nil {
			return fmt.Errorf("clear quests: %w", err)
		}
		return insertQuests(ctx, tx, st)
	})
}

func insertQuests(ctx context.Context, tx *sql.Tx, st *narrative.NarrativeState) error {
	for i, q := range st.Quests {
		_, err := tx.ExecContext(ctx, `
INSERT INTO quest_instances (user_id, quest_id, position, scenario_id, status, unlocked_at, consumed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
			st.UserID, q.ID, i, q.ScenarioID, string(q.Status), nullableMillis(q.UnlockedAt), nullableMillis(q.ConsumedAt),
		)
		if err != nil {
			return fmt.Errorf("insert quest %s: %w", q.ID, err)
		}
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT user_id FROM narrative_states ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// Ledger

func (s *Store) ApplyReward(ctx context.Context, entry narrative.LedgerEntry, deltas map[string]int64) (narrative.LedgerEntry, bool, error) {
	var (
		stored  narrative.LedgerEntry
		applied bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO reward_ledger (user_id, quest_id, applied_at) VALUES (?, ?, ?)
ON CONFLICT (user_id, quest_id) DO NOTHING
`, entry.UserID, entry.QuestID, toMillis(entry.AppliedAt))
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}

		if n == 0 {
			var appliedAt int64
			if err := tx.QueryRowContext(ctx, `
SELECT applied_at FROM reward_ledger WHERE user_id = ? AND quest_id = ?
`, entry.UserID, entry.QuestID).Scan(&appliedAt); err != nil {
				return fmt.Errorf("load ledger entry: %w", err)
			}
			stored = narrative.LedgerEntry{UserID: entry.UserID, QuestID: entry.QuestID, AppliedAt: fromMillis(appliedAt)}
			return nil
		}

		keys := make([]string, 0, len(deltas))
		for k := range deltas {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			_, err := tx.ExecContext(ctx, `
INSERT INTO balances (user_id, balance_key, amount) VALUES (?, ?, ?)
ON CONFLICT (user_id, balance_key) DO UPDATE SET amount = amount + excluded.amount
`, entry.UserID, k, deltas[k])
			if err != nil {
				return fmt.Errorf("update balance %s: %w", k, err)
			}
		}
		stored = narrative.LedgerEntry{UserID: entry.UserID, QuestID: entry.QuestID, AppliedAt: fromMillis(toMillis(entry.AppliedAt))}
		applied = true
		return nil
	})
	if err != nil {
		return narrative.LedgerEntry{}, false, fmt.Errorf("apply reward: %w", err)
	}
	return stored, applied, nil
}

func (s *Store) LedgerEntry(ctx context.Context, userID, questID string) (narrative.LedgerEntry, error) {
	var appliedAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT applied_at FROM reward_ledger WHERE user_id = ? AND quest_id = ?
`, userID, questID).Scan(&appliedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return narrative.LedgerEntry{}, storage.LedgerNotFound(userID, questID)
	}
	if err != nil {
		return narrative.LedgerEntry{}, fmt.Errorf("load ledger entry: %w", err)
	}
	return narrative.LedgerEntry{UserID: userID, QuestID: questID, AppliedAt: fromMillis(appliedAt)}, nil
}

func (s *Store) Ledger(ctx context.Context, userID string) ([]narrative.LedgerEntry, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT quest_id, applied_at FROM reward_ledger WHERE user_id = ? ORDER BY applied_at, quest_id
`, userID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	defer rows.Close()

	entries := make([]narrative.LedgerEntry, 0)
	for rows.Next() {
		var (
			questID   string
			appliedAt int64
		)
		if err := rows.Scan(&questID, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, narrative.LedgerEntry{UserID: userID, QuestID: questID, AppliedAt: fromMillis(appliedAt)})
	}
	return entries, rows.Err()
}

func (s *Store) Balances(ctx context.Context, userID string) (narrative.Balances, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT balance_key, amount FROM balances WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	defer rows.Close()

	out := make(narrative.Balances)
	for rows.Next() {
		var (
			key    string
			amount int64
		)
		if err := rows.Scan(&key, &amount); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out[key] = amount
	}
	return out, rows.Err()
}

// withTx runs fn in a transaction, committing on nil and rolling back
// otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// applyMigrations executes each embedded *.sql file at most once, in name
// order, recording it in schema_migrations.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	slices.Sort(files)

	if _, err := sqlDB.Exec(fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`, migrationTable)); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var count int
		if err := sqlDB.QueryRow(fmt.Sprintf(`SELECT COUNT(1) FROM %s WHERE name = ?`, migrationTable), file).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if count > 0 {
			continue
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		upSQL := extractUpMigration(string(content))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}

		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration transaction %s: %w", file, err)
		}
		if _, err := tx.Exec(upSQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(
			fmt.Sprintf(`INSERT OR IGNORE INTO %s (name, applied_at) VALUES (?, ?)`, migrationTable),
			file, toMillis(time.Now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// extractUpMigration returns the SQL in the -- +migrate Up section.
func extractUpMigration(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	upIdx := strings.Index(content, up)
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, down)
	if downIdx == -1 {
		return content[upIdx+len(up):]
	}
	return content[upIdx+len(up) : downIdx]
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}

func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
