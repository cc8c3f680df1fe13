package assets

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const spirvMagic uint32 = 0x07230203

var ErrShaderNotFound = errors.New("shader not found")

// ShaderSource resolves a shader name to SPIR-V bytes.
type ShaderSource interface {
	Load(name string) ([]byte, error)
}

// DirSource loads `<Dir>/<name>.spv` from disk on every call, so a reload
// after a recompile picks up the new code.
type DirSource struct {
	Dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

func (ds *DirSource) Load(name string) ([]byte, error) {
	path := filepath.Join(ds.Dir, name+".spv")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("shader `%s` at %s: %w", name, path, ErrShaderNotFound)
		}
		return nil, err
	}
	if err := ValidateSPIRV(data); err != nil {
		return nil, fmt.Errorf("shader `%s`: %w", name, err)
	}
	return data, nil
}

// MapSource serves shaders from memory. Tests and the headless backend use it.
type MapSource struct {
	mu      sync.RWMutex
	shaders map[string][]byte
}

func NewMapSource(shaders map[string][]byte) *MapSource {
	ms := &MapSource{shaders: make(map[string][]byte, len(shaders))}
	for k, v := range shaders {
		ms.shaders[k] = v
	}
	return ms
}

func (ms *MapSource) Set(name string, code []byte) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.shaders[name] = code
}

func (ms *MapSource) Load(name string) ([]byte, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	code, ok := ms.shaders[name]
	if !ok {
		return nil, fmt.Errorf("shader `%s`: %w", name, ErrShaderNotFound)
	}
	return code, nil
}

// StubSource returns a minimal valid SPIR-V header for any name. It lets the
// headless backend build every pipeline without compiled shaders on disk.
type StubSource struct{}

func (StubSource) Load(name string) ([]byte, error) {
	return StubSPIRV(), nil
}

// StubSPIRV returns a five word SPIR-V header with no instructions.
func StubSPIRV() []byte {
	b := make([]byte, 20)
	binary.LittleEndian.PutUint32(b[0:], spirvMagic)
	binary.LittleEndian.PutUint32(b[4:], 0x00010000)
	return b
}

// ValidateSPIRV checks the size and the magic number of a module.
func ValidateSPIRV(code []byte) error {
	if len(code) < 20 || len(code)%4 != 0 {
		return fmt.Errorf("invalid SPIR-V module of %d bytes", len(code))
	}
	if binary.LittleEndian.Uint32(code) != spirvMagic {
		return fmt.Errorf("invalid SPIR-V magic number")
	}
	return nil
}

// SPIRVWords converts a module to the 32 bit words the driver consumes.
func SPIRVWords(code []byte) []uint32 {
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words
}
