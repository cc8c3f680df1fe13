package engine

import (
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/systems"
)

// Services is what the engine hands to the game once the renderer is up.
type Services struct {
	Device   metadata.GraphicsDevice
	Textures *systems.TextureSystem
}

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnBoot            Boot
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Boot lets the game adjust the loaded config before anything is created.
type Boot func(cfg *config.Config) error

// Initialize creates the game's buffers and textures.
type Initialize func(services *Services) error
type Update func(deltaTime float64) error

// Render fills the scene the renderer draws this frame.
type Render func(scene *metadata.Scene, deltaTime float64) error
type OnResize func(width uint32, height uint32) error

// Shutdown runs once the device is idle, before the renderer goes away.
type Shutdown func(services *Services) error
