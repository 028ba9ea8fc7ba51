package tower

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/towerbridge/util"
)

// ErrNotFound is returned when a tower is not in the store
var ErrNotFound = errors.New("tower not found")

const schema = `
CREATE TABLE IF NOT EXISTS towers (
	tower_id TEXT PRIMARY KEY CHECK(length(tower_id) = 16),
	tower_name TEXT NOT NULL,
	firmware_version TEXT NOT NULL,
	rssi INTEGER NOT NULL,
	last_seen_at TEXT NOT NULL
);
`

// saveTimeout bounds writes made from discovery callbacks
const saveTimeout = 2 * time.Second

// Store persists the persistent tower cache in sqlite so known towers survive restarts
type Store struct {
	db *sql.DB
}

// OpenStore opens (and migrates) the store at path
func OpenStore(ctx context.Context, path string) (*Store, error) {
	if err := util.EnsureDir(path); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate towers: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert inserts or replaces a tower
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	if rec.LastSeen.IsZero() {
		rec.LastSeen = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO towers(tower_id, tower_name, firmware_version, rssi, last_seen_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(tower_id) DO UPDATE SET
	tower_name=excluded.tower_name,
	firmware_version=excluded.firmware_version,
	rssi=excluded.rssi,
	last_seen_at=excluded.last_seen_at
`, rec.ID.Hex(), rec.Name, rec.FirmwareVersion, rec.RSSI, rec.LastSeen.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert tower %s: %w", rec.ID.Hex(), err)
	}
	return nil
}

// SaveTower implements Persister
func (s *Store) SaveTower(rec Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	return s.Upsert(ctx, rec)
}

// Get returns one tower
func (s *Store) Get(ctx context.Context, id TowerID) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT tower_id, tower_name, firmware_version, rssi, last_seen_at FROM towers WHERE tower_id = ?
`, id.Hex())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Load returns every stored tower ordered by id
func (s *Store) Load(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT tower_id, tower_name, firmware_version, rssi, last_seen_at FROM towers ORDER BY tower_id
`)
	if err != nil {
		return nil, fmt.Errorf("load towers: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load towers: %w", err)
	}
	return out, nil
}

// Delete removes a tower
func (s *Store) Delete(ctx context.Context, id TowerID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM towers WHERE tower_id = ?`, id.Hex())
	if err != nil {
		return fmt.Errorf("delete tower %s: %w", id.Hex(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		rec      Record
		idHex    string
		lastSeen string
	)
	if err := sc.Scan(&idHex, &rec.Name, &rec.FirmwareVersion, &rec.RSSI, &lastSeen); err != nil {
		return Record{}, err
	}
	id, err := ParseTowerID(idHex)
	if err != nil {
		return Record{}, fmt.Errorf("stored tower: %w", err)
	}
	rec.ID = id
	if t, err := time.Parse(time.RFC3339Nano, lastSeen); err == nil {
		rec.LastSeen = t
	}
	return rec, nil
}
