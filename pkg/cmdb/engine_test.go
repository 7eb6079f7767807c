package cmdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mesh-intelligence/cmdb/internal/sqlstore"
	"github.com/mesh-intelligence/cmdb/pkg/types"
)

func TestEngine_StorageFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	b := sqlstore.NewBackend()
	require.NoError(t, b.AttachDB(db, types.Config{Backend: types.BackendSQLite}))
	core, logs := observer.New(zapcore.ErrorLevel)
	e := New(b, Options{Logger: zap.New(core)})
	boom := errors.New("database disk image is malformed")

	mock.ExpectQuery("SELECT (.+) FROM schemas").WillReturnError(boom)
	_, err = e.GetSchema(context.Background(), "s1")
	require.ErrorIs(t, err, types.ErrStorage)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, types.KindStorage, types.KindOf(err))
	assert.Equal(t, "internal storage error", err.Error())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM schemas").WillReturnError(boom)
	mock.ExpectRollback()
	_, err = e.CreateEntity(context.Background(), "s1", types.Input{})
	assert.ErrorIs(t, err, types.ErrStorage)

	require.NoError(t, mock.ExpectationsWereMet())
	failures := logs.FilterMessage("storage failure").All()
	require.Len(t, failures, 2)
	assert.Equal(t, "get schema", failures[0].ContextMap()["op"])
	assert.Equal(t, "create entity", failures[1].ContextMap()["op"])
}

func TestEngine_TypedErrorsAreNotLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}
	e, err := Open(context.Background(), cfg, Options{Logger: zap.New(core)})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.GetSchema(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Zero(t, logs.Len())
}

func TestEngine_Closed(t *testing.T) {
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}
	e, err := Open(context.Background(), cfg, Options{})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.CreateSchema(context.Background(), "Host", "")
	assert.ErrorIs(t, err, types.ErrStorage)
	assert.ErrorIs(t, err, sqlstore.ErrDetached)
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), types.Config{Backend: "oracle"}, Options{})
	assert.ErrorIs(t, err, types.ErrBackendUnknown)
}

func TestEngine_ConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	inv := newInventory(t, nil)

	const workers, each = 4, 5
	var wg sync.WaitGroup
	errs := make(chan error, workers*each)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range each {
				_, err := inv.e.CreateEntity(ctx, inv.host.SchemaID, types.Input{"name": fmt.Sprintf("h%d-%d", w, i)})
				errs <- err
				if _, _, err := inv.e.ListRecords(ctx, types.RecordQuery{SchemaID: inv.host.SchemaID}, 1, 5); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, workers*each, countRecords(t, inv.e, inv.host.SchemaID))
}

func TestEngine_DumpRestore(t *testing.T) {
	ctx := context.Background()
	src := newFleet(t)
	dir := t.TempDir()
	require.NoError(t, src.e.Dump(ctx, dir))

	dst := newTestEngine(t)
	require.NoError(t, dst.Restore(ctx, dir))

	rq := types.RecordQuery{SchemaID: src.service.SchemaID}
	want, _, err := src.e.ListRelationRecords(ctx, rq, 1, 10)
	require.NoError(t, err)
	got, _, err := dst.ListRelationRecords(ctx, rq, 1, 10)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Fields, got[i].Fields)
		assert.Equal(t, want[i].Key, got[i].Key)
	}

	// Relations keep working on the restored copy.
	_, err = dst.CreateEntity(ctx, src.service.SchemaID, types.Input{"owner": "nobody"})
	assert.ErrorIs(t, err, types.ErrRelationValueMissing)

	assert.ErrorIs(t, dst.Restore(ctx, dir), sqlstore.ErrNotEmpty)
}
