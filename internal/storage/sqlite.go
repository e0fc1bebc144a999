package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-device/internal/infrastructure/database"
)

// SQLiteConfig is a Config backed by the config_entries table.
//
// All rows are loaded at construction; reads are served from memory and
// Commit writes only the keys changed since the previous commit.
type SQLiteConfig struct {
	kv
	db *database.DB
}

// NewSQLiteConfig loads all config entries from db.
//
// Parameters:
//   - ctx: Context for the initial load
//   - db: Migrated device database
//
// Returns:
//   - *SQLiteConfig: Config with all persisted keys loaded
//   - error: If the table cannot be read
func NewSQLiteConfig(ctx context.Context, db *database.DB) (*SQLiteConfig, error) {
	c := &SQLiteConfig{db: db}
	c.kv.init()

	rows, err := db.QueryContext(ctx, "SELECT key, kind, value FROM config_entries")
	if err != nil {
		return nil, fmt.Errorf("loading config entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key  string
			k    int
			data []byte
		)
		if err := rows.Scan(&key, &k, &data); err != nil {
			return nil, fmt.Errorf("scanning config entry: %w", err)
		}
		e, err := decodeEntry(kind(k), data)
		if err != nil {
			return nil, fmt.Errorf("config entry %s: %w", key, err)
		}
		c.entries[key] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating config entries: %w", err)
	}
	return c, nil
}

// Commit writes changed keys in one transaction. On failure the keys stay
// pending and the next Commit retries them.
func (c *SQLiteConfig) Commit(ctx context.Context) error {
	pending := c.takeDirty()
	if len(pending) == 0 {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
		for key, e := range pending {
			if e == nil {
				if _, err := tx.ExecContext(ctx, "DELETE FROM config_entries WHERE key = ?", key); err != nil {
					return fmt.Errorf("erasing %s: %w", key, err)
				}
				continue
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO config_entries (key, kind, value, updated_at) VALUES (?, ?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, value = excluded.value, updated_at = excluded.updated_at`,
				key, int(e.kind), encodeEntry(*e), now)
			if err != nil {
				return fmt.Errorf("writing %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		c.restoreDirty(pending)
		return fmt.Errorf("committing config: %w", err)
	}
	return nil
}

func encodeEntry(e entry) []byte {
	switch e.kind {
	case kindString:
		return []byte(e.str)
	case kindInt32, kindUInt8:
		return []byte(strconv.FormatInt(e.num, 10))
	default:
		return e.blob
	}
}

func decodeEntry(k kind, data []byte) (entry, error) {
	switch k {
	case kindString:
		return entry{kind: k, str: string(data)}, nil
	case kindInt32, kindUInt8:
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return entry{}, fmt.Errorf("parsing %s: %w", k, err)
		}
		return entry{kind: k, num: n}, nil
	case kindBlob:
		return entry{kind: k, blob: data}, nil
	}
	return entry{}, fmt.Errorf("%w: unknown kind %d", ErrTypeMismatch, int(k))
}

// SQLiteState is a State backed by the state_sections table.
type SQLiteState struct {
	sections
	db *database.DB
}

// NewSQLiteState loads all state sections from db.
func NewSQLiteState(ctx context.Context, db *database.DB) (*SQLiteState, error) {
	s := &SQLiteState{db: db}
	s.sections.init()

	rows, err := db.QueryContext(ctx, "SELECT section, payload FROM state_sections")
	if err != nil {
		return nil, fmt.Errorf("loading state sections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name    string
			payload []byte
		)
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, fmt.Errorf("scanning state section: %w", err)
		}
		s.data[name] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state sections: %w", err)
	}
	return s, nil
}

// Commit writes changed sections in one transaction.
func (s *SQLiteState) Commit(ctx context.Context) error {
	pending := s.takeDirty()
	if len(pending) == 0 {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for name, payload := range pending {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO state_sections (section, payload, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(section) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
				name, payload, now)
			if err != nil {
				return fmt.Errorf("writing section %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		s.restoreDirty(pending)
		return fmt.Errorf("committing state: %w", err)
	}
	return nil
}
