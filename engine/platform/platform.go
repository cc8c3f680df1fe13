package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

var keys = map[glfw.Key]core.KeyCode{
	glfw.KeyEnter:  core.KEY_ENTER,
	glfw.KeyEscape: core.KEY_ESCAPE,
	glfw.KeySpace:  core.KEY_SPACE,
	glfw.KeyR:      core.KEY_R,
	glfw.KeyF1:     core.KEY_F1,
	glfw.KeyF2:     core.KEY_F2,
	glfw.KeyF3:     core.KEY_F3,
	glfw.KeyF4:     core.KEY_F4,
	glfw.KeyF5:     core.KEY_F5,
	glfw.KeyF6:     core.KEY_F6,
	glfw.KeyF7:     core.KEY_F7,
	glfw.KeyF8:     core.KEY_F8,
	glfw.KeyF9:     core.KEY_F9,
}

// Platform owns the glfw window the renderer presents to. It is the
// pipeline surface: resizes wait on it until the window has a drawable size.
type Platform struct {
	Window    *glfw.Window
	startTime float64
}

func New() (*Platform, error) {
	return &Platform{
		Window: nil,
	}, nil
}

func (p *Platform) Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		core.LogError("glfw reports no Vulkan loader")
		return core.ErrUnknown
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		glfw.Terminate()
		core.LogError("failed to create window: %s", err)
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(keyCallback)
	p.Window.SetFramebufferSizeCallback(framebufferSizeCallback)
	p.Window.SetCloseCallback(closeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	p.startTime = glfw.GetTime()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages runs the glfw callbacks for everything that happened since
// the last call.
func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

// Elapsed is the time in seconds since the window was created.
func (p *Platform) Elapsed() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) FramebufferExtent() metadata.Extent2D {
	if p.Window == nil {
		return metadata.Extent2D{}
	}
	w, h := p.Window.GetFramebufferSize()
	return metadata.Extent2D{Width: uint32(max(w, 0)), Height: uint32(max(h, 0))}
}

// WaitEvents blocks until glfw has an event to process.
func (p *Platform) WaitEvents() {
	glfw.WaitEvents()
}

func keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	code, ok := keys[key]
	if !ok || action == glfw.Repeat {
		return
	}
	core.InputProcessKey(code, action == glfw.Press)
}

func framebufferSizeCallback(w *glfw.Window, width, height int) {
	core.EventFire(core.EventContext{
		Type: core.EVENT_CODE_RESIZED,
		Data: &core.SystemEvent{
			WindowWidth:  uint32(max(width, 0)),
			WindowHeight: uint32(max(height, 0)),
		},
	})
}

func closeCallback(w *glfw.Window) {
	core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
}
