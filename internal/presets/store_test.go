package presets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const officialJSON = `[
  {"name": "Genshin Impact", "executable": "GenshinImpact.exe", "path": "Genshin Impact"},
  {"name": "Valorant", "executable": "VALORANT.exe", "path": "Riot Games/VALORANT", "is_custom": true}
]`

func newStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, OfficialFile), []byte(officialJSON), 0o644))
	return NewStore(dir)
}

func TestLoadMarksCustom(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.AddCustom(Preset{Name: "My Game", Executable: "game.exe", Path: "Mine"}))

	list := s.Load()
	require.Len(t, list, 3)
	assert.False(t, list[0].IsCustom)
	assert.False(t, list[1].IsCustom, "official entries are never custom")
	assert.True(t, list[2].IsCustom)
	assert.Equal(t, "My Game", list[2].Name)
}

func TestLoadMissingFiles(t *testing.T) {
	assert.Empty(t, NewStore(t.TempDir()).Load())
}

func TestAddCustomRejectsDuplicate(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.AddCustom(Preset{Name: "My Game", Executable: "game.exe"}))

	err := s.AddCustom(Preset{Name: "my game", Executable: "other.exe"})
	assert.ErrorIs(t, err, ErrDuplicate)

	err = s.AddCustom(Preset{Name: "", Executable: "x.exe"})
	assert.Error(t, err)
}

func TestEditCustom(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.AddCustom(Preset{Name: "A", Executable: "a.exe"}))
	require.NoError(t, s.AddCustom(Preset{Name: "B", Executable: "b.exe"}))

	require.NoError(t, s.EditCustom("A", Preset{Name: "A2", Executable: "a2.exe", Path: "x"}))
	assert.ErrorIs(t, s.EditCustom("missing", Preset{Name: "C", Executable: "c.exe"}), ErrNotFound)
	assert.ErrorIs(t, s.EditCustom("A2", Preset{Name: "b", Executable: "b.exe"}), ErrDuplicate)

	p, ok := FindByExecutable(s.Load(), "a2.exe")
	require.True(t, ok)
	assert.Equal(t, "A2", p.Name)
}

func TestDeleteCustom(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.AddCustom(Preset{Name: "A", Executable: "a.exe"}))

	require.NoError(t, s.DeleteCustom("A"))
	assert.ErrorIs(t, s.DeleteCustom("A"), ErrNotFound)
	assert.Len(t, s.Load(), 2)
}

func TestFilter(t *testing.T) {
	list := newStore(t).Load()

	assert.Len(t, Filter(list, ""), 2)
	got := Filter(list, "valo")
	require.Len(t, got, 1)
	assert.Equal(t, "Valorant", got[0].Name)
	assert.Len(t, Filter(list, "GENSHINIMPACT.EXE"), 1)
	assert.Empty(t, Filter(list, "minecraft"))
}
