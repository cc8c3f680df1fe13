package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gbuffer.vert.spv"), StubSPIRV(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.frag.spv"), []byte("nope"), 0o644))

	src := NewDirSource(dir)
	code, err := src.Load("gbuffer.vert")
	require.NoError(t, err)
	assert.Equal(t, StubSPIRV(), code)

	_, err = src.Load("missing")
	assert.ErrorIs(t, err, ErrShaderNotFound)

	_, err = src.Load("broken.frag")
	assert.Error(t, err)
}

func TestMapSource(t *testing.T) {
	src := NewMapSource(map[string][]byte{"a": {1}})
	code, err := src.Load("a")
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, code)

	src.Set("b", []byte{2})
	_, err = src.Load("b")
	assert.NoError(t, err)
	_, err = src.Load("c")
	assert.ErrorIs(t, err, ErrShaderNotFound)
}

func TestSPIRVWords(t *testing.T) {
	code := StubSPIRV()
	require.NoError(t, ValidateSPIRV(code))
	words := SPIRVWords(code)
	require.Len(t, words, 5)
	assert.Equal(t, spirvMagic, words[0])
	assert.Equal(t, uint32(0x00010000), words[1])

	assert.Error(t, ValidateSPIRV(code[:19]))
	bad := append([]byte(nil), code...)
	bad[0] = 0
	assert.Error(t, ValidateSPIRV(bad))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ChangeShader, classify("assets/shaders/ao.frag.spv"))
	assert.Equal(t, ChangeConfig, classify("prism.toml"))
	assert.Equal(t, ChangeNone, classify("assets/shaders/ao.frag"))
}

func TestWatcherForwardsShaderChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.AddRecursive(dir))

	path := filepath.Join(dir, "composition.frag.spv")
	require.NoError(t, os.WriteFile(path, StubSPIRV(), 0o644))

	select {
	case c := <-w.Changes():
		assert.Equal(t, ChangeShader, c.Kind)
		assert.Equal(t, path, c.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no change received")
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, err := NewWatcher()
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Empty(t, w.Drain())
	assert.Error(t, w.AddRecursive(t.TempDir()))
}
