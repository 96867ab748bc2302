package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/overlay"
	"github.com/spaghettifunk/prism/engine/platform"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/drawer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// suspendedPoll is how long the loop sleeps between event pumps while the
// window is minimized.
const suspendedPoll = 50 * time.Millisecond

// Engine is the context every subsystem hangs off. Nothing in the engine
// is global; the game reaches the subsystems through it.
type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *config.Config
	configPath   string
	logger       *log.Logger

	events   *core.EventBus
	input    *core.Input
	platform *platform.Platform
	clock    *core.Clock
	metrics  *core.FrameMetrics
	watcher  *config.Watcher

	device      renderer.Device
	submission  *renderer.SubmissionContext
	targetViews *renderer.ResourceViewAllocator
	depthViews  *renderer.ResourceViewAllocator
	shaderViews *renderer.ResourceViewAllocator
	pipelines   *renderer.PipelineStateCache
	factory     *renderer.BufferMeshFactory
	textures    *assets.TextureManager
	overlay     drawer.Overlay
	drawer      *drawer.FrameDrawer

	isSuspended bool
	quit        atomic.Bool
	// failure raised inside an event callback, checked by the loop
	err      error
	lastTime time.Duration
}

// New prepares an engine for g. configPath is watched for live changes
// when it is not empty.
func New(g *Game, cfg *config.Config, configPath string) (*Engine, error) {
	if g == nil {
		return nil, core.NilDependency("game")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	events := core.NewEventBus()
	input := core.NewInput(events)
	p, err := platform.New(input, events)
	if err != nil {
		return nil, err
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		configPath:   configPath,
		logger:       core.Logger("engine"),
		events:       events,
		input:        input,
		platform:     p,
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	cfg := e.config

	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogWarn("unknown log level %q: %s", cfg.Log.Level, err)
	}

	// register some events
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)

	app := cfg.Application
	if err := e.platform.Startup(app.Name, app.StartPosX, app.StartPosY, app.StartWidth, app.StartHeight); err != nil {
		return err
	}

	device, err := vulkan.NewDevice(e.platform.Handle(), vulkan.Options{
		AppName:    app.Name,
		Validation: cfg.Renderer.Validation,
		VSync:      cfg.Renderer.VSync,
	})
	if err != nil {
		return err
	}
	e.device = device

	if err := e.createRenderer(); err != nil {
		return err
	}

	if cfg.Assets.Watch {
		if err := e.textures.Watch(); err != nil {
			core.LogWarn("texture hot reload disabled: %s", err)
		}
	}
	if e.configPath != "" {
		if e.watcher, err = config.NewWatcher(e.configPath); err != nil {
			core.LogWarn("config hot reload disabled: %s", err)
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return errors.Wrap(err, "game initialize")
		}
	}
	width, height := e.platform.ClientSize()
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	e.logger.Info("engine initialized", "width", width, "height", height)
	return nil
}

// createRenderer builds the frame core in dependency order: submission
// context, view allocators, pipeline cache, factory, textures, overlay and
// the frame drawer.
func (e *Engine) createRenderer() error {
	cfg := e.config.Renderer
	width, height := e.platform.ClientSize()

	var err error
	e.submission, err = renderer.NewSubmissionContext(e.device, renderer.SubmissionConfig{
		Width:      width,
		Height:     height,
		ClearColor: metadata.Color(cfg.ClearColor),
		VSync:      cfg.VSync,
	})
	if err != nil {
		return err
	}

	if e.targetViews, err = renderer.NewResourceViewAllocator(e.device, "render targets", metadata.HeapTypeRenderTarget, renderer.PresentBufferCount); err != nil {
		return err
	}
	if e.depthViews, err = renderer.NewResourceViewAllocator(e.device, "depth stencil", metadata.HeapTypeDepthStencil, cfg.DepthViewCapacity); err != nil {
		return err
	}
	if e.shaderViews, err = renderer.NewResourceViewAllocator(e.device, "shader resources", metadata.HeapTypeShaderResource, cfg.ShaderViewCapacity); err != nil {
		return err
	}
	if err := e.submission.BindTargets(e.targetViews, e.depthViews); err != nil {
		return err
	}

	shaders, err := assets.LoadShaderSet(e.config.Shaders.Vertex, e.config.Shaders.Pixel)
	if err != nil {
		return err
	}
	if e.pipelines, err = renderer.NewPipelineStateCache(e.device, shaders, e.submission.TargetFormat(), e.submission.DepthFormat(), cfg.ShaderViewCapacity); err != nil {
		return err
	}
	if e.factory, err = renderer.NewBufferMeshFactory(e.device); err != nil {
		return err
	}

	if e.textures, err = assets.NewTextureManager(e.device, e.shaderViews, e.config.Assets.Root); err != nil {
		return err
	}
	if len(e.config.Assets.Textures) > 0 {
		if _, err := e.textures.LoadAll(context.Background(), e.config.Assets.Textures); err != nil {
			return err
		}
	}

	e.overlay = overlay.Nop{}
	if path := e.config.Debug.OverlayFont; path != "" {
		if stats, err := e.createOverlay(path); err != nil {
			core.LogWarn("stats overlay disabled: %s", err)
		} else {
			e.overlay = stats
		}
	}

	e.drawer, err = drawer.NewFrameDrawer(drawer.Dependencies{
		Submission:  e.submission,
		ShaderViews: e.shaderViews,
		Pipelines:   e.pipelines,
		Factory:     e.factory,
		Window:      e.platform,
		Textures:    e.textures,
		Overlay:     e.overlay,
		Input:       e.input,
		Metrics:     e.metrics,
	}, drawer.Config{
		TargetFrameRate:   cfg.TargetFrameRate,
		ClassifyDrawLists: cfg.ClassifyDrawLists,
		FreeCamera:        e.config.Debug.FreeCamera,
	})
	return err
}

func (e *Engine) createOverlay(fontPath string) (*overlay.Stats, error) {
	font, err := assets.LoadFont(fontPath)
	if err != nil {
		return nil, err
	}
	return overlay.NewStats(overlay.Dependencies{
		Factory:   e.factory,
		Pipelines: e.pipelines,
		Textures:  e.textures,
		Window:    e.platform,
		Metrics:   e.metrics,
		Font:      font,
	})
}

// Run drives frames until the window closes, Stop is called or a frame fails.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return errors.New("engine is not initialized")
	}
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.lastTime = 0

	for !e.quit.Load() {
		if !e.platform.PumpMessages() {
			break
		}
		if e.err != nil {
			return e.err
		}
		e.applyConfigUpdates()

		if e.isSuspended {
			time.Sleep(suspendedPoll)
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := (currentTime - e.lastTime).Seconds()

		if err := e.frame(delta); err != nil {
			return err
		}

		e.input.Update()
		e.lastTime = currentTime
	}
	return nil
}

func (e *Engine) frame(delta float64) error {
	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta); err != nil {
			return errors.Wrap(err, "game update")
		}
	}
	if err := e.drawer.PreDraw(); err != nil {
		return err
	}
	if e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(e.drawer, delta); err != nil {
			return errors.Wrap(err, "game render")
		}
	}
	if err := e.drawer.PostDraw(); err != nil {
		return err
	}
	// The fence wait in PostDraw guarantees no texture is in use anymore.
	if n := e.textures.ApplyReloads(); n > 0 {
		core.LogInfo("reloaded %d textures", n)
	}
	return nil
}

func (e *Engine) applyConfigUpdates() {
	if e.watcher == nil {
		return
	}
	select {
	case cfg := <-e.watcher.Updates():
		if err := core.SetLogLevel(cfg.Log.Level); err != nil {
			core.LogWarn("unknown log level %q", cfg.Log.Level)
		}
		e.drawer.SetTargetFrameRate(cfg.Renderer.TargetFrameRate)
		e.submission.SetClearColor(metadata.Color(cfg.Renderer.ClearColor))
		e.config = cfg
		e.logger.Info("configuration reloaded", "target_frame_rate", cfg.Renderer.TargetFrameRate)
	default:
	}
}

// Stop asks Run to return after the current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	e.quit.Store(true)
}

// Shutdown waits for the GPU and releases everything in reverse creation order.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	var errs error
	if e.device != nil {
		if err := e.device.WaitIdle(); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	if e.gameInstance.FnShutdown != nil {
		errs = errors.CombineErrors(errs, e.gameInstance.FnShutdown())
	}
	if e.watcher != nil {
		errs = errors.CombineErrors(errs, e.watcher.Close())
	}
	if e.drawer != nil {
		e.drawer.Destroy()
	}
	if stats, ok := e.overlay.(*overlay.Stats); ok {
		stats.Destroy()
	}
	if e.textures != nil {
		errs = errors.CombineErrors(errs, e.textures.Close())
	}
	if e.pipelines != nil {
		e.pipelines.Destroy()
	}
	for _, a := range []*renderer.ResourceViewAllocator{e.shaderViews, e.depthViews, e.targetViews} {
		if a != nil {
			a.Destroy()
		}
	}
	if e.submission != nil {
		errs = errors.CombineErrors(errs, e.submission.Close())
	}
	if e.device != nil {
		e.device.Destroy()
	}
	errs = errors.CombineErrors(errs, e.platform.Shutdown())
	e.currentStage = EngineStageUninitialized
	return errs
}

func (e *Engine) onEvent(ctx core.EventContext) bool {
	if ctx.Code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Stop()
		return true
	}
	return false
}

func (e *Engine) onKey(ctx core.EventContext) bool {
	if ctx.Key == core.KEY_ESCAPE {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EventContext{Code: core.EVENT_CODE_APPLICATION_QUIT})
		return true
	}
	return false
}

func (e *Engine) onResized(ctx core.EventContext) bool {
	// Handle minimization
	if ctx.Width == 0 || ctx.Height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if err := e.submission.Resize(ctx.Width, ctx.Height); err != nil {
		e.err = errors.Wrapf(err, "resize to %dx%d", ctx.Width, ctx.Height)
		return true
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(ctx.Width, ctx.Height); err != nil {
			e.err = err
		}
	}
	// Other listeners may want to know about the resize too.
	return false
}

func (e *Engine) Config() *config.Config { return e.config }

func (e *Engine) Input() *core.Input { return e.input }

func (e *Engine) Events() *core.EventBus { return e.events }

func (e *Engine) Factory() *renderer.BufferMeshFactory { return e.factory }

func (e *Engine) Textures() *assets.TextureManager { return e.textures }

func (e *Engine) Drawer() *drawer.FrameDrawer { return e.drawer }

func (e *Engine) ClientSize() (uint32, uint32) { return e.platform.ClientSize() }
