package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/platform"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/passes"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
	"github.com/spaghettifunk/prism/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it created
	EngineStageShutDown
)

// shadingKeys maps F1 to F6 to the composition outputs, in order.
var shadingKeys = []core.KeyCode{core.KEY_F1, core.KEY_F2, core.KEY_F3, core.KEY_F4, core.KEY_F5, core.KEY_F6}

type Engine struct {
	currentStage Stage
	gameInstance *Game
	cfg          *config.Config
	configPath   string
	isRunning    bool
	isSuspended  bool
	platform     *platform.Platform
	device       metadata.GraphicsDevice
	renderer     *renderer.Renderer
	watcher      *assets.Watcher
	jobs         *systems.JobSystem
	textures     *systems.TextureSystem
	scene        *metadata.Scene
	width        uint32
	height       uint32
	clock        *core.Clock
	metrics      *core.Metrics
	frames       int

	ctx    context.Context
	cancel context.CancelFunc
}

// New loads the config and lets the game boot on it.
func New(g *Game) (*Engine, error) {
	app := g.ApplicationConfig
	if app == nil {
		app = &ApplicationConfig{}
	}
	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		configPath:   app.ConfigPath,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		scene:        &metadata.Scene{},
		isRunning:    true,
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	cfg := config.Default()
	if app.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(app.ConfigPath); err != nil {
			return nil, err
		}
	}
	if app.Headless {
		cfg.Renderer.Backend = config.BackendHeadless
	}
	if g.FnBoot != nil {
		if err := g.FnBoot(cfg); err != nil {
			return nil, fmt.Errorf("game boot failed: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	core.SetLogLevel(cfg.Renderer.LogLevel)

	e.cfg = cfg
	e.frames = app.Frames
	e.width = cfg.Application.Width
	e.height = cfg.Application.Height
	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) headless() bool {
	return e.cfg.Renderer.Backend == config.BackendHeadless
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageBootComplete {
		return fmt.Errorf("engine initialized in stage %d", e.currentStage)
	}
	e.currentStage = EngineStageInitializing

	// initialize input
	if err := core.InputInitialize(); err != nil {
		return err
	}

	// initialize events
	if !core.EventSystemInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}

	// register some events
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, e, e.onResized)
	core.EventRegister(core.EVENT_CODE_SHADERS_CHANGED, e, e.onShadersChanged)
	core.EventRegister(core.EVENT_CODE_CONFIG_CHANGED, e, e.onConfigChanged)
	core.EventRegister(core.EVENT_CODE_TOGGLE_PASS, e, e.onTogglePass)
	core.EventRegister(core.EVENT_CODE_SHADING_OUTPUT, e, e.onShadingOutput)

	var window vulkan.Window
	if !e.headless() {
		p, err := platform.New()
		if err != nil {
			return err
		}
		app := e.cfg.Application
		if err := p.Startup(app.Name, app.PosX, app.PosY, app.Width, app.Height); err != nil {
			return err
		}
		e.platform = p
		window = p.Window
	}

	device, err := renderer.NewBackend(e.cfg, window)
	if err != nil {
		return fmt.Errorf("failed to create the %s backend: %w", e.cfg.Renderer.Backend, err)
	}
	e.device = device

	var surface pipeline.Surface
	if e.platform != nil {
		surface = e.platform
	}
	e.renderer, err = renderer.New(e.ctx, e.cfg, device, surface, e.shaderSource())
	if err != nil {
		return err
	}

	if e.jobs, err = systems.NewJobSystem(e.cfg.Assets.Workers, int(e.cfg.Assets.MaxTextures)); err != nil {
		return err
	}
	e.textures, err = systems.NewTextureSystem(systems.TextureSystemConfig{
		Dir:             e.cfg.Assets.TextureDir,
		MaxTextureCount: e.cfg.Assets.MaxTextures,
	}, device, e.jobs)
	if err != nil {
		return err
	}

	if e.cfg.Assets.Watch && !e.headless() {
		if err := e.startWatcher(); err != nil {
			core.LogWarn("shader hot reload disabled: %s", err)
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.services()); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// shaderSource reads SPIR-V from the shader directory. The headless backend
// never runs the code and uses stub modules when there is nothing compiled.
func (e *Engine) shaderSource() assets.ShaderSource {
	dir := e.cfg.Assets.ShaderDir
	if _, err := os.Stat(dir); err != nil && e.headless() {
		core.LogDebug("no shader directory at `%s`, using stub modules", dir)
		return assets.StubSource{}
	}
	return assets.NewDirSource(dir)
}

func (e *Engine) startWatcher() error {
	w, err := assets.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.AddRecursive(e.cfg.Assets.ShaderDir); err != nil {
		w.Close()
		return err
	}
	if e.configPath != "" {
		if err := w.AddFile(e.configPath); err != nil {
			w.Close()
			return err
		}
	}
	e.watcher = w
	return nil
}

func (e *Engine) services() *Services {
	return &Services{Device: e.device, Textures: e.textures}
}

// Renderer is nil before Initialize.
func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine run in stage %d", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.clock.Start()

	var rendered int
	var sinceReport float64
	for e.isRunning {
		if e.platform != nil {
			e.platform.PumpMessages()
		}
		e.forwardFileChanges()
		core.EventDispatch()
		if !e.isRunning {
			break
		}

		if e.isSuspended {
			// Nothing to draw into until the window is restored.
			if e.platform != nil {
				e.platform.WaitEvents()
			}
			e.clock.Tick()
			continue
		}

		delta := e.clock.Tick()
		e.clock.Update()
		frameStart := e.clock.Elapsed()

		e.textures.Update()
		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				return fmt.Errorf("game update failed: %w", err)
			}
		}
		if e.gameInstance.FnRender != nil {
			if err := e.gameInstance.FnRender(e.scene, delta); err != nil {
				return fmt.Errorf("game render failed: %w", err)
			}
		}
		if err := e.renderer.DrawFrame(e.scene); err != nil {
			return fmt.Errorf("draw frame failed: %w", err)
		}

		e.clock.Update()
		e.metrics.Update(e.clock.Elapsed() - frameStart)
		sinceReport += delta
		if sinceReport >= 1 {
			core.LogDebug("%.0f fps, %.2f ms per frame", e.metrics.FPS(), e.metrics.FrameTime())
			sinceReport = 0
		}

		// NOTE: Input update/state copying should always be handled
		// after any input should be recorded; I.E. before this line.
		core.InputUpdate()

		rendered++
		if e.frames > 0 && rendered >= e.frames {
			core.LogInfo("rendered %d frames, stopping", rendered)
			e.isRunning = false
		}
	}
	return nil
}

// forwardFileChanges turns watcher changes into events for the frame thread.
func (e *Engine) forwardFileChanges() {
	if e.watcher == nil {
		return
	}
	for _, c := range e.watcher.Drain() {
		code := core.EVENT_CODE_SHADERS_CHANGED
		if c.Kind == assets.ChangeConfig {
			code = core.EVENT_CODE_CONFIG_CHANGED
		}
		core.EventFire(core.EventContext{Type: code, Data: &core.FileEvent{Path: c.Path}})
	}
}

// Stop makes Run return after the current frame. It is safe to call from
// another goroutine.
func (e *Engine) Stop() {
	e.cancel()
	core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
}

// Shutdown releases the renderer, the device and the window, in that order.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.cancel()

	var errs []error
	if e.device != nil {
		if err := e.device.WaitIdle(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.gameInstance.FnShutdown != nil && e.device != nil {
		if err := e.gameInstance.FnShutdown(e.services()); err != nil {
			errs = append(errs, err)
		}
	}
	if e.jobs != nil {
		if err := e.jobs.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.textures != nil {
		if err := e.textures.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.renderer != nil {
		if err := e.renderer.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.device != nil {
		e.device.Destroy()
	}
	if e.platform != nil {
		if err := e.platform.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	core.EventUnregister(core.EVENT_CODE_APPLICATION_QUIT, e)
	if err := core.EventSystemShutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := core.InputShutdown(); err != nil {
		errs = append(errs, err)
	}
	e.currentStage = EngineStageShutDown
	return errors.Join(errs...)
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
	}
}

func (e *Engine) onKey(context core.EventContext) {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}

	switch ke.KeyCode {
	case core.KEY_ESCAPE:
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
	case core.KEY_F7:
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_TOGGLE_PASS, Data: &core.PassEvent{Name: passes.AOName}})
	case core.KEY_F8:
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_TOGGLE_PASS, Data: &core.PassEvent{Name: passes.BloomName}})
	case core.KEY_R:
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_SHADERS_CHANGED, Data: &core.FileEvent{}})
	default:
		outputs := config.ShadingOutputs()
		for i, key := range shadingKeys {
			if key == ke.KeyCode && i < len(outputs) {
				core.EventFire(core.EventContext{
					Type: core.EVENT_CODE_SHADING_OUTPUT,
					Data: &core.PassEvent{Name: passes.CompositionName, Value: string(outputs[i])},
				})
				return
			}
		}
	}
}

func (e *Engine) onResized(context core.EventContext) {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}

	width := se.WindowWidth
	height := se.WindowHeight
	// Check if different. If so, trigger a resize event.
	if width == e.width && height == e.height {
		return
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	e.renderer.OnResize(width, height)
}

func (e *Engine) onShadersChanged(context core.EventContext) {
	if fe, ok := context.Data.(*core.FileEvent); ok && fe.Path != "" {
		core.LogInfo("shader `%s` changed, reloading", fe.Path)
	}
	if err := e.renderer.ReloadShaders(); err != nil {
		core.LogError(err.Error())
	}
}

func (e *Engine) onConfigChanged(context core.EventContext) {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		core.LogError("config not reloaded: %s", err)
		return
	}
	if err := e.renderer.ApplyConfig(cfg); err != nil {
		core.LogError("config not applied: %s", err)
		return
	}
	core.LogInfo("config `%s` reloaded", e.configPath)
}

func (e *Engine) onTogglePass(context core.EventContext) {
	pe, ok := context.Data.(*core.PassEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}
	if _, err := e.renderer.TogglePass(pe.Name); err != nil {
		core.LogError(err.Error())
	}
}

func (e *Engine) onShadingOutput(context core.EventContext) {
	pe, ok := context.Data.(*core.PassEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}
	if err := e.renderer.SetShadingOutput(config.ShadingOutput(pe.Value)); err != nil {
		core.LogError(err.Error())
	}
}
