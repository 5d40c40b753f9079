package compiler_test

import (
	"path/filepath"
	"testing"

	"github.com/aretw0/troupe/internal/compiler"
	"github.com/aretw0/troupe/pkg/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFile_YAMLTakesIDFromFileName(t *testing.T) {
	cfg, err := compiler.ParseFile(filepath.Join("testdata", "toggle.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "toggle", cfg.ID)
	assert.Equal(t, "off", cfg.Initial)
	assert.Equal(t, []string{"off", "on"}, cfg.States.Keys())

	m, err := machine.New(*cfg, machine.Implementations{})
	require.NoError(t, err)
	s, err := m.InitialState(nil)
	require.NoError(t, err)
	assert.Equal(t, "off", s.Value())
}

func TestParseFile_JSON(t *testing.T) {
	cfg, err := compiler.ParseFile(filepath.Join("testdata", "toggle.json"))
	require.NoError(t, err)
	assert.Equal(t, "toggle", cfg.ID)
	assert.Equal(t, []string{"off", "on"}, cfg.States.Keys())
}

func TestParseFile_UnsupportedExtension(t *testing.T) {
	_, err := compiler.ParseFile("machine.toml")
	assert.ErrorContains(t, err, "unsupported machine file extension")
}

func TestParse_Errors(t *testing.T) {
	_, err := compiler.Parse([]byte("states: [a, b"), compiler.FormatYAML)
	assert.ErrorContains(t, err, "failed to parse machine")

	_, err = compiler.Parse([]byte("{}"), compiler.FormatJSON)
	assert.ErrorContains(t, err, "empty")

	_, err = compiler.Parse([]byte("id: x"), "xml")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestParse_StrictRejectsUnknownKeys(t *testing.T) {
	src := []byte("id: x\ninitail: a\nstates:\n  a: {}\n")

	_, err := compiler.Parse(src, compiler.FormatYAML)
	require.NoError(t, err, "lenient by default")

	_, err = compiler.NewParser(compiler.WithStrict()).Parse(src, compiler.FormatYAML)
	assert.ErrorContains(t, err, "initail")
}
