// Package cmdb is a configuration database whose record schemas are defined
// at runtime. Schemas own fields, fields carry typed constraints and may
// relate to a unique field of another schema, and entities store one value
// row per attribute. The Engine keeps relations consistent through cascade
// policies and runs every mutation as a single transaction.
package cmdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/cmdb/internal/sqlstore"
	"github.com/mesh-intelligence/cmdb/pkg/types"
)

// Options configure an Engine.
type Options struct {
	// Logger receives storage failures and mutation traces. Nil disables
	// logging.
	Logger *zap.Logger
}

// Engine is the schema, field, entity and value store. Mutations are
// serialized; reads run concurrently with them and observe committed data.
type Engine struct {
	backend *sqlstore.Backend
	log     *zap.Logger
	owned   bool

	cascadeDepth int
	batchSize    int

	mu sync.Mutex
}

// Open attaches a backend described by config and returns an Engine that
// owns it.
func Open(ctx context.Context, config types.Config, opts Options) (*Engine, error) {
	b := sqlstore.NewBackend()
	if err := b.Attach(ctx, config); err != nil {
		return nil, fmt.Errorf("opening %s backend: %w", config.Backend, err)
	}
	e := New(b, opts)
	e.owned = true
	return e, nil
}

// New returns an Engine on an attached backend. Close does not detach a
// backend passed to New.
func New(b *sqlstore.Backend, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	config := b.Config()
	return &Engine{
		backend:      b,
		log:          log,
		cascadeDepth: config.EffectiveCascadeDepth(),
		batchSize:    config.EffectiveBatchSize(),
	}
}

// Close releases the backend opened by Open.
func (e *Engine) Close() error {
	if !e.owned {
		return nil
	}
	return e.backend.Detach()
}

// fail maps an error leaving an operation. Typed errors pass through
// unchanged; anything else is a storage failure, logged with its cause and
// returned as types.ErrStorage.
func (e *Engine) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *types.Error
	if errors.As(err, &te) {
		return err
	}
	e.log.Error("storage failure", zap.String("op", op), zap.Error(err))
	return types.ErrStorage.Wrap(err)
}

// read returns a handle for lock-free reads.
func (e *Engine) read(op string) (*sqlstore.Queries, error) {
	q, err := e.backend.Read()
	if err != nil {
		return nil, e.fail(op, err)
	}
	return q, nil
}

// mutate runs fn in one transaction while holding the mutation lock.
func (e *Engine) mutate(ctx context.Context, op string, fn func(t *txn) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.backend.WithTx(ctx, func(q *sqlstore.Queries) error {
		return fn(&txn{
			ctx:      ctx,
			q:        q,
			now:      sqlstore.Now(),
			cascade:  newCascade(e.cascadeDepth),
			deleting: make(map[string]bool),
			dropping: make(map[string]bool),
		})
	})
	if err != nil {
		return e.fail(op, err)
	}
	e.log.Debug("committed", zap.String("op", op))
	return nil
}

// Dump writes the whole database, tombstones included, as JSONL files.
func (e *Engine) Dump(ctx context.Context, dir string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fail("dump", e.backend.Dump(ctx, dir))
}

// Restore loads a Dump into an empty database.
func (e *Engine) Restore(ctx context.Context, dir string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.backend.Restore(ctx, dir)
	if errors.Is(err, sqlstore.ErrNotEmpty) {
		return err
	}
	return e.fail("restore", err)
}

// txn is the state of one mutation.
type txn struct {
	ctx     context.Context
	q       *sqlstore.Queries
	now     time.Time
	cascade *cascade

	// deleting holds the entities whose deletion is in progress.
	deleting map[string]bool

	// dropping holds the fields deleted together by DeleteSchema. Relations
	// among them do not block their deletion.
	dropping map[string]bool
}
