package systems

import (
	"fmt"
	"path/filepath"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/pass"
)

// cubeFaces are the file suffixes of a cubemap in layer order: +X, -X, +Y,
// -Y, +Z, -Z.
var cubeFaces = [6]string{"_r", "_l", "_u", "_d", "_f", "_b"}

type TextureSystemConfig struct {
	// Dir is where texture names are resolved.
	Dir string
	// MaxTextureCount bounds the textures alive at once.
	MaxTextureCount uint32
}

type textureEntry struct {
	texture    *metadata.Texture
	image      *pass.Image
	references int
	// released entries ignore a load that finishes afterwards.
	released bool
}

// TextureSystem loads textures on the job system and uploads them on the
// frame thread. An acquired texture is returned right away and flips to
// Ready once its pixels are on the GPU; until then the renderer binds a
// fallback.
type TextureSystem struct {
	config  TextureSystemConfig
	device  metadata.GraphicsDevice
	jobs    *JobSystem
	sampler metadata.SamplerHandle
	entries map[string]*textureEntry
}

func NewTextureSystem(config TextureSystemConfig, device metadata.GraphicsDevice, js *JobSystem) (*TextureSystem, error) {
	if config.MaxTextureCount == 0 {
		return nil, fmt.Errorf("func NewTextureSystem - config.MaxTextureCount must be > 0")
	}
	sampler, err := device.CreateSampler(metadata.SamplerCreateInfo{
		Filter:      metadata.FilterLinear,
		AddressMode: metadata.AddressModeRepeat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create texture sampler: %w", err)
	}
	return &TextureSystem{
		config:  config,
		device:  device,
		jobs:    js,
		sampler: sampler,
		entries: make(map[string]*textureEntry),
	}, nil
}

// Acquire returns the texture stored at name under the texture directory,
// loading it in the background the first time.
func (ts *TextureSystem) Acquire(name string) (*metadata.Texture, error) {
	return ts.acquire(name, metadata.ImageType2D, func() (interface{}, error) {
		return assets.LoadImage(filepath.Join(ts.config.Dir, name), false)
	})
}

// AcquireCube loads the six faces `<name>_r<ext>` ... `<name>_b<ext>` into one
// cubemap. Every face must have the same size.
func (ts *TextureSystem) AcquireCube(name, ext string) (*metadata.Texture, error) {
	return ts.acquire(name, metadata.ImageTypeCube, func() (interface{}, error) {
		var cube *assets.Image
		for i, suffix := range cubeFaces {
			face, err := assets.LoadImage(filepath.Join(ts.config.Dir, name+suffix+ext), false)
			if err != nil {
				return nil, err
			}
			if cube == nil {
				size := len(face.Pixels)
				cube = &assets.Image{Name: name, Width: face.Width, Height: face.Height, Pixels: make([]byte, 0, size*len(cubeFaces))}
			}
			if face.Width != cube.Width || face.Height != cube.Height {
				return nil, fmt.Errorf("cubemap `%s`: face %d is %dx%d, want %dx%d", name, i, face.Width, face.Height, cube.Width, cube.Height)
			}
			cube.Pixels = append(cube.Pixels, face.Pixels...)
		}
		return cube, nil
	})
}

func (ts *TextureSystem) acquire(name string, kind metadata.ImageType, load func() (interface{}, error)) (*metadata.Texture, error) {
	if e, ok := ts.entries[name]; ok {
		e.references++
		return e.texture, nil
	}
	if uint32(len(ts.entries)) >= ts.config.MaxTextureCount {
		return nil, fmt.Errorf("cannot acquire texture `%s`: %d textures already loaded", name, len(ts.entries))
	}
	e := &textureEntry{texture: &metadata.Texture{Name: name}, references: 1}
	ts.entries[name] = e

	err := ts.jobs.Submit(JobTask{
		Name:    "load texture " + name,
		OnStart: load,
		OnComplete: func(result interface{}) {
			img, ok := result.(*assets.Image)
			if !ok || e.released {
				return
			}
			if err := ts.upload(e, kind, img); err != nil {
				core.LogError(err.Error())
			}
		},
	})
	if err != nil {
		delete(ts.entries, name)
		return nil, err
	}
	return e.texture, nil
}

// Create uploads RGBA8 pixels right away. The texture is ready on return.
func (ts *TextureSystem) Create(name string, width, height uint32, pixels []byte) (*metadata.Texture, error) {
	if _, ok := ts.entries[name]; ok {
		return nil, fmt.Errorf("texture `%s` already exists", name)
	}
	if uint32(len(ts.entries)) >= ts.config.MaxTextureCount {
		return nil, fmt.Errorf("cannot create texture `%s`: %d textures already loaded", name, len(ts.entries))
	}
	e := &textureEntry{texture: &metadata.Texture{Name: name}, references: 1}
	img := &assets.Image{Name: name, Width: width, Height: height, Pixels: pixels}
	if err := ts.upload(e, metadata.ImageType2D, img); err != nil {
		return nil, err
	}
	ts.entries[name] = e
	return e.texture, nil
}

func (ts *TextureSystem) upload(e *textureEntry, kind metadata.ImageType, img *assets.Image) error {
	layers := uint32(1)
	if kind == metadata.ImageTypeCube {
		layers = 6
	}
	if want := int(img.Width) * int(img.Height) * 4 * int(layers); len(img.Pixels) != want {
		return fmt.Errorf("texture `%s`: got %d bytes of pixels, want %d", e.texture.Name, len(img.Pixels), want)
	}
	gpu, err := pass.NewImage(ts.device, pass.ImageOptions{
		Name:    e.texture.Name,
		Type:    kind,
		Format:  metadata.FormatRGBA8Unorm,
		Usage:   metadata.ImageUsageSampled,
		Extent:  metadata.Extent3D{Width: img.Width, Height: img.Height, Depth: 1},
		Sampler: ts.sampler,
		Data:    img.Pixels,
	})
	if err != nil {
		return fmt.Errorf("failed to upload texture `%s`: %w", e.texture.Name, err)
	}
	e.image = gpu
	e.texture.View = gpu.View
	e.texture.Sampler = ts.sampler
	e.texture.Ready = true
	core.LogDebug("texture `%s` ready (%dx%d)", e.texture.Name, img.Width, img.Height)
	return nil
}

// Release drops one reference. The last one waits for the device and frees
// the GPU image.
func (ts *TextureSystem) Release(name string) {
	e, ok := ts.entries[name]
	if !ok {
		core.LogWarn("release of unknown texture `%s`", name)
		return
	}
	e.references--
	if e.references > 0 {
		return
	}
	delete(ts.entries, name)
	e.released = true
	ts.destroy(e, true)
}

func (ts *TextureSystem) destroy(e *textureEntry, wait bool) {
	e.texture.Ready = false
	e.texture.View = 0
	e.texture.Sampler = 0
	e.texture.Released = e.released
	if e.image == nil {
		return
	}
	if wait {
		if err := ts.device.WaitIdle(); err != nil {
			core.LogError("texture `%s` released on a busy device: %s", e.texture.Name, err)
		}
	}
	e.image.Destroy(ts.device)
	e.image = nil
}

// Update uploads the textures whose loads finished. Call it once a frame
// from the frame thread.
func (ts *TextureSystem) Update() {
	ts.jobs.Update()
}

// Loaded counts the textures that are on the GPU.
func (ts *TextureSystem) Loaded() int {
	n := 0
	for _, e := range ts.entries {
		if e.texture.Ready {
			n++
		}
	}
	return n
}

// Shutdown destroys every texture. The caller makes sure the device is idle.
func (ts *TextureSystem) Shutdown() error {
	for name, e := range ts.entries {
		e.released = true
		ts.destroy(e, false)
		delete(ts.entries, name)
	}
	ts.device.DestroySampler(ts.sampler)
	return nil
}
