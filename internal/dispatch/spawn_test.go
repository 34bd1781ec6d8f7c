package dispatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnDetachedRunsCommand(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "clicked")
	require.NoError(t, SpawnDetached("touch "+marker))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSlotTakeRestore(t *testing.T) {
	s := &slot{id: 3, state: StateOwned, inner: newFake("x", 0)}
	b := s.take()
	assert.NotNil(t, b)
	assert.Nil(t, s.inner)
	assert.Equal(t, StateInFlight, s.state)

	assert.Panics(t, func() { s.take() }, "a block cannot be taken twice")

	s.restore(b)
	assert.Equal(t, StateOwned, s.state)
	assert.Equal(t, "in_flight", StateInFlight.String())
}

func TestBoardText(t *testing.T) {
	st := SlotStatus{}
	assert.Empty(t, st.Text())
}
