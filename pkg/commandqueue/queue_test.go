package commandqueue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestQueue_FIFOAndAck(t *testing.T) {
	q := openMem(t)

	c1, err := q.Enqueue("SAQUE", map[string]string{"valor": "50"})
	require.NoError(t, err)
	c2, err := q.Enqueue("nivel", map[string]string{"nivel": "8"})
	require.NoError(t, err)
	assert.Less(t, c1.Seq, c2.Seq)
	assert.Equal(t, "saque", c1.Name)

	pending, err := q.Pending(0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, c1.ID, pending[0].ID)
	assert.False(t, pending[0].Executed)

	acked, err := q.Ack(c1.Seq, "ok", nil)
	require.NoError(t, err)
	assert.True(t, acked.Executed)
	assert.NotNil(t, acked.ExecutedAt)

	_, err = q.Ack(c2.Seq, "", errors.New("nivel inválido"))
	require.NoError(t, err)

	assert.Equal(t, 0, q.PendingLen())
	hist, err := q.History(10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, c2.ID, hist[0].ID)
	assert.Equal(t, "nivel inválido", hist[0].Error)

	_, err = q.Ack(c1.Seq, "", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueue_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(OpenOptions{Path: dir})
	require.NoError(t, err)
	c, err := q.Enqueue("pausar", nil)
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q, err = Open(OpenOptions{Path: dir})
	require.NoError(t, err)
	defer q.Close()
	pending, err := q.Pending(0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, c.ID, pending[0].ID)

	next, err := q.Enqueue("retomar", nil)
	require.NoError(t, err)
	assert.Greater(t, next.Seq, c.Seq)
}

func TestQueue_RejectsEmptyName(t *testing.T) {
	q := openMem(t)
	_, err := q.Enqueue("  ", nil)
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("")
	require.NoError(t, err)
	assert.Nil(t, k)

	hexKey := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	k, err = ParseKey(hexKey)
	require.NoError(t, err)
	assert.Len(t, k, 32)

	_, err = ParseKey("abcd")
	assert.Error(t, err)
}
