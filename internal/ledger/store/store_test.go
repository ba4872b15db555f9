package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/marketledger/internal/ledger"
	"github.com/odyssey-erp/marketledger/internal/platform/db"
)

type memoryStore struct {
	mu    sync.Mutex
	docs  map[string][]byte
	saves int
	err   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: make(map[string][]byte)}
}

func (m *memoryStore) Save(ctx context.Context, name string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.docs[name] = append([]byte(nil), payload...)
	return nil
}

func (m *memoryStore) Load(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.docs[name]
	if !ok {
		return nil, ErrNoState
	}
	return raw, nil
}

func TestLoadStateEmpty(t *testing.T) {
	l, w, err := LoadState(context.Background(), newMemoryStore(), ledger.Config{})
	require.NoError(t, err)
	require.Zero(t, l.Snapshot().NextID)
	require.Empty(t, w.Snapshot())
}

func TestSnapshotterRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()

	l, w, err := LoadState(ctx, st, ledger.Config{})
	require.NoError(t, err)
	_, err = w.Deposit(ctx, "b1", 200)
	require.NoError(t, err)
	id, err := l.List(ctx, "s1", ledger.ListInput{Name: "Chair", Description: "Wooden chair", Price: 100})
	require.NoError(t, err)
	_, err = l.Buy(ctx, "b1", id, 100)
	require.NoError(t, err)

	snapper := NewSnapshotter(st, l, w, nil)
	saved, err := snapper.Flush(ctx)
	require.NoError(t, err)
	require.True(t, saved)

	saved, err = snapper.Flush(ctx)
	require.NoError(t, err)
	require.False(t, saved, "unchanged state is not saved again")
	require.Equal(t, 1, st.saves)

	restored, wallets, err := LoadState(ctx, st, ledger.Config{})
	require.NoError(t, err)
	require.Equal(t, l.Snapshot(), restored.Snapshot())
	require.Equal(t, uint64(100), wallets.Balance(ctx, "s1"))
	require.Equal(t, uint64(100), wallets.Balance(ctx, "b1"))

	// The restored wallets settle the restored ledger.
	next, err := restored.List(ctx, "s1", ledger.ListInput{Name: "Lamp", Description: "Desk lamp", Price: 100})
	require.NoError(t, err)
	require.Equal(t, uint64(2), next)
	_, err = restored.Buy(ctx, "b1", next, 100)
	require.NoError(t, err)
	require.Zero(t, wallets.Balance(ctx, "b1"))
}

func TestSnapshotterSavesAfterWalletChange(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	l, w, err := LoadState(ctx, st, ledger.Config{})
	require.NoError(t, err)
	snapper := NewSnapshotter(st, l, w, nil)

	_, err = snapper.Flush(ctx)
	require.NoError(t, err)
	_, err = w.Deposit(ctx, "b1", 5)
	require.NoError(t, err)
	saved, err := snapper.Flush(ctx)
	require.NoError(t, err)
	require.True(t, saved)

	var doc Document
	require.NoError(t, json.Unmarshal(st.docs[StateName], &doc))
	require.Equal(t, uint64(5), doc.Wallets["b1"])
}

func TestSnapshotterRetriesAfterFailure(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	l, w, err := LoadState(ctx, st, ledger.Config{})
	require.NoError(t, err)
	snapper := NewSnapshotter(st, l, w, nil)

	st.err = errors.New("disk full")
	_, err = snapper.Flush(ctx)
	require.Error(t, err)

	st.err = nil
	saved, err := snapper.Flush(ctx)
	require.NoError(t, err)
	require.True(t, saved)
}

func TestSnapshotterRunFinalFlush(t *testing.T) {
	st := newMemoryStore()
	l, w, err := LoadState(context.Background(), st, ledger.Config{})
	require.NoError(t, err)
	_, err = l.List(context.Background(), "s1", ledger.ListInput{Name: "A", Description: "a", Price: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, NewSnapshotter(st, l, w, nil).Run(ctx, 0))
	require.Equal(t, 1, st.saves)
}

func TestLoadStateRejectsCorruptDocument(t *testing.T) {
	st := newMemoryStore()
	st.docs[StateName] = []byte(`{"ledger":{"format":1,"next_id":0,"products":[{"id":1}]}}`)
	_, _, err := LoadState(context.Background(), st, ledger.Config{})
	require.ErrorIs(t, err, ledger.ErrInvalidSnapshot)

	st.docs[StateName] = []byte(`not json`)
	_, _, err = LoadState(context.Background(), st, ledger.Config{})
	require.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	st := NewRedis(client, "")
	ctx := context.Background()

	_, err := st.Load(ctx, StateName)
	require.ErrorIs(t, err, ErrNoState)

	require.NoError(t, st.Save(ctx, StateName, []byte(`{"a":1}`)))
	raw, err := st.Load(ctx, StateName)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(raw))
	require.True(t, mr.Exists("marketledger:state:"+StateName))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("MARKETLEDGER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("MARKETLEDGER_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.New(ctx, dsn, db.Options{})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	st := NewPostgres(pool)
	require.NoError(t, st.EnsureSchema(ctx))
	name := "test-" + t.Name()
	_, err = pool.Exec(ctx, `DELETE FROM ledger_state WHERE name = $1`, name)
	require.NoError(t, err)

	_, err = st.Load(ctx, name)
	require.ErrorIs(t, err, ErrNoState)
	require.NoError(t, st.Save(ctx, name, []byte(`{"v":1}`)))
	require.NoError(t, st.Save(ctx, name, []byte(`{"v":2}`)))
	raw, err := st.Load(ctx, name)
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(raw))
}
