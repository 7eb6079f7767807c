// Package sqlstore persists schemas, fields, entities and values in a SQL
// database. SQLite is the default backend; PostgreSQL is selected with
// Config.Backend = "postgres". Rows are never physically removed: deletion
// sets the deleted flag.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/cmdb/pkg/types"
)

// DBFile is the name of the SQLite database inside the data directory.
const DBFile = "cmdb.db"

// Backend lifecycle errors.
var (
	ErrAlreadyAttached = errors.New("backend already attached")
	ErrDetached        = errors.New("backend is detached")
)

// Backend owns the database handle. All engine access goes through Read or
// WithTx.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	dialect  dialect
}

// NewBackend creates a detached backend. Call Attach to open the database.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach opens the database described by config and creates any missing
// tables and indexes. Existing data is kept.
func (b *Backend) Attach(ctx context.Context, config types.Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	var (
		db  *sql.DB
		err error
	)
	switch config.Backend {
	case types.BackendPostgres:
		db, err = sql.Open("pgx", config.DSN)
	default:
		dataDir := config.DataDir
		if dataDir == "" {
			dataDir = "."
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}
		dsn := "file:" + filepath.Join(dataDir, DBFile) +
			"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		db, err = sql.Open("sqlite", dsn)
	}
	if err != nil {
		return fmt.Errorf("opening %s database: %w", config.Backend, err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return err
	}
	if err := b.AttachDB(db, config); err != nil {
		db.Close()
		return err
	}
	return nil
}

// AttachDB attaches an already opened database whose tables exist.
func (b *Backend) AttachDB(db *sql.DB, config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return ErrAlreadyAttached
	}
	b.db = db
	b.config = config
	b.dialect = dialectFor(config.Backend)
	b.attached = true
	return nil
}

// Detach closes the database. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	b.attached = false
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	return nil
}

// Config returns the configuration the backend was attached with.
func (b *Backend) Config() types.Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config
}

func (b *Backend) handle() (*sql.DB, dialect, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, dialect{}, ErrDetached
	}
	return b.db, b.dialect, nil
}

// Read returns a Queries handle on the connection pool. Statements issued
// through it are not part of any transaction.
func (b *Backend) Read() (*Queries, error) {
	db, d, err := b.handle()
	if err != nil {
		return nil, err
	}
	return &Queries{q: db, d: d}, nil
}

// WithTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back when fn fails or panics. On postgres the
// transaction first takes a transaction scoped advisory lock, so write
// transactions of every process sharing the database run one at a time.
func (b *Backend) WithTx(ctx context.Context, fn func(*Queries) error) error {
	db, d, err := b.handle()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if lock := d.writeLock(); lock != "" {
		if _, err := tx.ExecContext(ctx, lock); err != nil {
			return fmt.Errorf("acquiring write lock: %w", err)
		}
	}
	if err := fn(&Queries{q: tx, d: d}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// NewID returns a time ordered UUID v7. Ordering rows by id therefore
// follows insertion order.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
