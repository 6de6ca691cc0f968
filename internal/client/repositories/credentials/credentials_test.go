package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/applock/internal/pinhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memMeta struct {
	data map[string][]byte
	err  error
}

func newMemMeta() *memMeta { return &memMeta{data: map[string][]byte{}} }

func (m *memMeta) Get(_ context.Context, key string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.data[key], nil
}

func (m *memMeta) Set(_ context.Context, key string, value []byte) error {
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memMeta) Delete(_ context.Context, key string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.data, key)
	return nil
}

var rec = pinhash.Record{Hash: []byte("hash"), Salt: []byte("salt"), SchemeVersion: pinhash.SchemeCurrent}

func TestLegacyRepository_KeyedByPrincipal(t *testing.T) {
	ctx := context.Background()
	meta := newMemMeta()
	r := NewLegacyRepository(meta)

	require.NoError(t, r.Upsert(ctx, "p1", rec))
	assert.Contains(t, meta.data, "legacy_pin/p1")

	got, err := r.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)

	got, err = r.Get(ctx, "p2")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, r.Delete(ctx, "p1"))
	assert.Empty(t, meta.data)
}

func TestLocalOnlyRepository_IgnoresPrincipal(t *testing.T) {
	ctx := context.Background()
	meta := newMemMeta()
	r := NewLocalOnlyRepository(meta)

	require.NoError(t, r.Upsert(ctx, "", rec))
	assert.Contains(t, meta.data, LocalOnlyKey)

	got, err := r.Get(ctx, "p9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)

	require.NoError(t, r.Delete(ctx, "p9"))
	got, err = r.Get(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_Errors(t *testing.T) {
	ctx := context.Background()
	meta := newMemMeta()
	r := NewLegacyRepository(meta)

	meta.data["legacy_pin/p1"] = []byte("{not json")
	_, err := r.Get(ctx, "p1")
	assert.ErrorIs(t, err, pinhash.ErrCorruptRecord)

	boom := errors.New("disk")
	meta.err = boom
	_, err = r.Get(ctx, "p1")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, r.Upsert(ctx, "p1", rec), boom)
	assert.ErrorIs(t, r.Delete(ctx, "p1"), boom)
}
