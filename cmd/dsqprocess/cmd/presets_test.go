package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dsqprocess/dsqprocess/internal/presets"
)

func TestFindCustomSkipsOfficial(t *testing.T) {
	list := []presets.Preset{
		{Name: "Valorant", Executable: "VALORANT.exe"},
		{Name: "Valorant", Executable: "VALORANT-Win64.exe", IsCustom: true},
	}

	p, ok := findCustom(list, "Valorant")
	assert.True(t, ok)
	assert.Equal(t, "VALORANT-Win64.exe", p.Executable)

	_, ok = findCustom(list, "Missing")
	assert.False(t, ok)
}
