package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"marlin/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS identity (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	blob       BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS key_packages (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	consumed   INTEGER NOT NULL DEFAULT 0,
	data       BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS groups (
	id         TEXT PRIMARY KEY,
	wire_id    TEXT NOT NULL UNIQUE,
	data       BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	envelope_id TEXT PRIMARY KEY,
	group_id    TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	data        BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_by_group ON messages (group_id, created_at, seq);
`

// SQLite is the durable storage backend. One database file under the data
// directory backs all protocol state so epoch and membership writes share
// the same transaction boundaries.
type SQLite struct {
	db *sql.DB
}

var _ domain.Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) SaveIdentity(passphrase string, id domain.Identity) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	enc, err := encryptIdentity(passphrase, raw)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO identity (id, blob) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET blob = excluded.blob`,
		enc,
	)
	return err
}

func (s *SQLite) LoadIdentity(passphrase string) (domain.Identity, bool, error) {
	var enc []byte
	err := s.db.QueryRow(`SELECT blob FROM identity WHERE id = 1`).Scan(&enc)
	if err == sql.ErrNoRows {
		return domain.Identity{}, false, nil
	}
	if err != nil {
		return domain.Identity{}, false, err
	}
	raw, err := decryptIdentity(passphrase, enc)
	if err != nil {
		return domain.Identity{}, false, err
	}
	var id domain.Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return domain.Identity{}, false, err
	}
	return id, true, nil
}

func (s *SQLite) SaveKeyPackage(pair domain.KeyPackagePair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO key_packages (id, created_at, consumed, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET consumed = excluded.consumed, data = excluded.data`,
		pair.ID.String(), pair.CreatedAt, boolToInt(pair.Consumed), data,
	)
	return err
}

func (s *SQLite) LoadKeyPackage(id domain.KeyPackageID) (domain.KeyPackagePair, bool, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM key_packages WHERE id = ?`, id.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return domain.KeyPackagePair{}, false, nil
	}
	if err != nil {
		return domain.KeyPackagePair{}, false, err
	}
	var pair domain.KeyPackagePair
	if err := json.Unmarshal(data, &pair); err != nil {
		return domain.KeyPackagePair{}, false, err
	}
	return pair, true, nil
}

func (s *SQLite) ListKeyPackages() ([]domain.KeyPackagePair, error) {
	rows, err := s.db.Query(`SELECT data FROM key_packages ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.KeyPackagePair
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var pair domain.KeyPackagePair
		if err := json.Unmarshal(data, &pair); err != nil {
			return nil, err
		}
		out = append(out, pair)
	}
	return out, rows.Err()
}

// MarkConsumed flips the consumed flag exactly once; the UPDATE's WHERE
// clause makes the consume atomic.
func (s *SQLite) MarkConsumed(id domain.KeyPackageID) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE key_packages
		 SET consumed = 1,
		     data = json_set(data, '$.Consumed', json('true'))
		 WHERE id = ? AND consumed = 0`,
		id.String(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLite) SaveGroup(g domain.GroupState) error {
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO groups (id, wire_id, data) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET wire_id = excluded.wire_id, data = excluded.data`,
		g.ID.String(), g.WireID, data,
	)
	return err
}

func (s *SQLite) LoadGroup(id domain.GroupID) (domain.GroupState, bool, error) {
	return s.loadGroupWhere(`id = ?`, id.String())
}

func (s *SQLite) LoadGroupByWireTag(tag string) (domain.GroupState, bool, error) {
	return s.loadGroupWhere(`wire_id = ?`, tag)
}

func (s *SQLite) loadGroupWhere(where string, arg any) (domain.GroupState, bool, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM groups WHERE `+where, arg).Scan(&data)
	if err == sql.ErrNoRows {
		return domain.GroupState{}, false, nil
	}
	if err != nil {
		return domain.GroupState{}, false, err
	}
	var g domain.GroupState
	if err := json.Unmarshal(data, &g); err != nil {
		return domain.GroupState{}, false, err
	}
	return g, true, nil
}

func (s *SQLite) ListGroups() ([]domain.GroupState, error) {
	rows, err := s.db.Query(`SELECT data FROM groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GroupState
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var g domain.GroupState
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteGroup(id domain.GroupID) error {
	if _, err := s.db.Exec(`DELETE FROM messages WHERE group_id = ?`, id.String()); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM groups WHERE id = ?`, id.String())
	return err
}

func (s *SQLite) AppendMessage(m domain.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	// INSERT OR IGNORE keyed on envelope id keeps replays idempotent.
	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO messages (envelope_id, group_id, seq, created_at, data) VALUES (?, ?, ?, ?, ?)`,
		m.EnvelopeID.String(), m.GroupID.String(), m.Seq, m.CreatedAt, data,
	)
	return err
}

func (s *SQLite) HasMessage(id domain.EnvelopeID) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE envelope_id = ?`, id.String()).Scan(&n)
	return n > 0, err
}

func (s *SQLite) ListMessages(gid domain.GroupID, limit int) ([]domain.Message, error) {
	// rowid order is append order, which is what history means here.
	q := `SELECT data FROM messages WHERE group_id = ? ORDER BY rowid`
	args := []any{gid.String()}
	if limit > 0 {
		q = `SELECT data FROM (
			SELECT data, rowid AS rid FROM messages WHERE group_id = ?
			ORDER BY rowid DESC LIMIT ?
		) ORDER BY rid`
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var m domain.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
