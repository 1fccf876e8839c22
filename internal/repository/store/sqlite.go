package store

import (
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/geowidget/tilefetch/pkg/logger"
)

// SQLiteStore keeps tiles in a single local database file, one file per
// tile source. The database is opened lazily on first use; if opening
// fails the store degrades to always-miss lookups and dropped inserts
// rather than failing the pipeline.
//
// A single mutex spans open, Put and Get: lookups run on the fallback
// path while inserts arrive from the background writer, and the one
// *sql.DB handle is kept serialized rather than relying on connection
// pooling against a file database.
type SQLiteStore struct {
	mu     sync.Mutex
	path   string
	db     *sql.DB
	broken bool
	logger logger.Logger
}

func NewSQLiteStore(path string, l logger.Logger) *SQLiteStore {
	return &SQLiteStore{
		path:   path,
		logger: l,
	}
}

var _ Store = (*SQLiteStore)(nil)

// open initializes the database handle and schema. Callers must hold
// mu. Safe to call redundantly; after a failed attempt the store stays
// broken and open keeps reporting false without retrying.
func (s *SQLiteStore) open() bool {
	if s.db != nil {
		return true
	}
	if s.broken {
		return false
	}

	db, err := sql.Open("sqlite3", s.path)
	if err == nil {
		err = db.Ping()
	}
	if err == nil {
		err = s.runMigrations(db)
	}
	if err != nil {
		s.broken = true
		if db != nil {
			db.Close()
		}
		s.logger.Error("tile store unavailable, caching disabled", "path", s.path, "error", err)
		return false
	}

	s.db = db
	s.logger.Info("sqlite tile store opened", "path", s.path)
	return true
}

// goose configuration is package-level state; set it up once so
// stores opening lazily from different goroutines don't race.
var (
	gooseSetup    sync.Once
	gooseSetupErr error
)

func (s *SQLiteStore) runMigrations(db *sql.DB) error {
	gooseSetup.Do(func() {
		goose.SetBaseFS(migrations)
		gooseSetupErr = goose.SetDialect("sqlite3")
	})
	if gooseSetupErr != nil {
		return gooseSetupErr
	}

	err := goose.Up(db, "migrations")
	if err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) Get(k Key) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open() {
		return nil, false, nil
	}

	query := `SELECT data
	FROM tiles
	WHERE zoom = ? AND pos_x = ? AND pos_y = ?`

	var data []byte
	err := s.db.QueryRow(query, k.Zoom, k.X, k.Y).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		s.logger.Error("sqlite tile lookup failed", "zoom", k.Zoom, "x", k.X, "y", k.Y, "error", err)
		return nil, false, err
	}

	return data, true, nil
}

func (s *SQLiteStore) Put(k Key, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open() {
		return nil
	}

	// Entries are write-once: a duplicate key is ignored, never
	// overwritten.
	query := `INSERT OR IGNORE INTO tiles (zoom, pos_x, pos_y, data)
	VALUES (?, ?, ?, ?)`

	_, err := s.db.Exec(query, k.Zoom, k.X, k.Y, data)
	if err != nil {
		s.logger.Error("sqlite tile insert failed", "zoom", k.Zoom, "x", k.X, "y", k.Y, "error", err)
		return err
	}

	return nil
}

// Close releases the database handle if it was ever opened.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.broken = true
	return err
}
