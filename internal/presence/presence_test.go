package presence

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsqprocess/dsqprocess/internal/logging"
)

func TestLogBroadcaster(t *testing.T) {
	var buf bytes.Buffer
	b := NewLogBroadcaster(logging.New(logging.INFO, false, &buf))

	_, ok := b.Current()
	assert.False(t, ok)

	require.NoError(t, b.SetActivity("Genshin Impact"))
	a, ok := b.Current()
	require.True(t, ok)
	assert.Equal(t, "Jugando: Genshin Impact", a.State)
	assert.Contains(t, buf.String(), "Jugando: Genshin Impact")

	require.NoError(t, b.Reset())
	a, _ = b.Current()
	assert.Equal(t, "Esperando...", a.State)
	assert.Empty(t, a.Game)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	_, ok = b.Current()
	assert.False(t, ok)
	assert.ErrorIs(t, b.SetActivity("x"), ErrClosed)
}

func TestNop(t *testing.T) {
	var b Broadcaster = Nop{}
	assert.NoError(t, b.SetActivity("x"))
	assert.NoError(t, b.Reset())
	assert.NoError(t, b.Close())
}
