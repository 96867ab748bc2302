package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// PresentBufferCount is the size of the presentation ring.
const PresentBufferCount = 2

type submissionState uint8

const (
	// The command list is open and PreDraw has not been called.
	submissionStateReady submissionState = iota
	// PreDraw ran; callers are recording draws.
	submissionStateRecording
	// A fatal failure happened; nothing else may be recorded.
	submissionStateBroken
)

type SubmissionConfig struct {
	Width        uint32
	Height       uint32
	TargetFormat metadata.Format
	DepthFormat  metadata.Format
	ClearColor   metadata.Color
	VSync        bool
}

// SubmissionContext owns the device queue, the single command list and its
// allocator, the presentation ring and the frame fence. Exactly one command
// list is open at a time; it is closed before submission and reset after
// the GPU has caught up.
type SubmissionContext struct {
	device    Device
	queue     CommandQueue
	allocator CommandAllocator
	list      CommandList
	swapChain SwapChain
	fence     *FrameFence

	targetViews *ResourceViewAllocator
	depthViews  *ResourceViewAllocator
	targetSlots [PresentBufferCount]Slot
	depthSlot   Slot
	depth       Texture

	config  SubmissionConfig
	state   submissionState
	current uint32
	frames  uint64
}

// NewSubmissionContext creates the queue, allocator, open command list,
// swap chain and frame fence on device.
func NewSubmissionContext(device Device, config SubmissionConfig) (*SubmissionContext, error) {
	if device == nil {
		return nil, core.NilDependency("device")
	}
	if config.TargetFormat == metadata.FormatUnknown {
		config.TargetFormat = metadata.FormatBGRA8Unorm
	}
	if config.DepthFormat == metadata.FormatUnknown {
		config.DepthFormat = metadata.FormatD32Float
	}

	sc := &SubmissionContext{device: device, config: config}

	var err error
	if sc.queue, err = device.CreateCommandQueue(); err != nil {
		return nil, core.CreationFailed(err, "create command queue")
	}
	if sc.allocator, err = device.CreateCommandAllocator(); err != nil {
		return nil, core.CreationFailed(err, "create command allocator")
	}
	if sc.list, err = device.CreateCommandList(sc.allocator); err != nil {
		return nil, core.CreationFailed(err, "create command list")
	}
	if sc.swapChain, err = device.CreateSwapChain(sc.queue, config.Width, config.Height, PresentBufferCount, config.TargetFormat); err != nil {
		return nil, core.CreationFailed(err, "create swap chain %dx%d buffers %d format %s",
			config.Width, config.Height, PresentBufferCount, config.TargetFormat)
	}
	if sc.fence, err = NewFrameFence(device); err != nil {
		return nil, err
	}
	core.LogInfo("submission context created: %dx%d, %d buffers, %s", config.Width, config.Height, PresentBufferCount, config.TargetFormat)
	return sc, nil
}

// BindTargets creates the presentation buffer views at slots 0 and 1 of
// targetViews and the depth buffer view at slot 0 of depthViews.
func (sc *SubmissionContext) BindTargets(targetViews, depthViews *ResourceViewAllocator) error {
	if targetViews == nil {
		return core.NilDependency("target view allocator")
	}
	if depthViews == nil {
		return core.NilDependency("depth view allocator")
	}
	sc.targetViews = targetViews
	sc.depthViews = depthViews
	return sc.createTargets()
}

func (sc *SubmissionContext) createTargets() error {
	for i := uint32(0); i < PresentBufferCount; i++ {
		slot, err := sc.targetViews.AllocateAt(i)
		if err != nil {
			return err
		}
		if err := sc.device.CreateRenderTargetView(sc.swapChain.Buffer(i), sc.targetViews.Heap(), slot.Index); err != nil {
			return core.CreationFailed(err, "create render target view %d format %s", i, sc.config.TargetFormat)
		}
		sc.targetSlots[i] = slot
	}

	depth, err := sc.device.CreateDepthTexture(sc.config.Width, sc.config.Height, sc.config.DepthFormat)
	if err != nil {
		return core.CreationFailed(err, "create depth buffer %dx%d format %s", sc.config.Width, sc.config.Height, sc.config.DepthFormat)
	}
	slot, err := sc.depthViews.AllocateAt(0)
	if err != nil {
		depth.Destroy()
		return err
	}
	if err := sc.device.CreateDepthStencilView(depth, sc.depthViews.Heap(), slot.Index); err != nil {
		depth.Destroy()
		return core.CreationFailed(err, "create depth stencil view format %s", sc.config.DepthFormat)
	}
	sc.depth = depth
	sc.depthSlot = slot
	return nil
}

// PreDraw transitions the current presentation buffer to render target,
// binds it with the depth buffer and clears both.
func (sc *SubmissionContext) PreDraw() error {
	switch sc.state {
	case submissionStateRecording:
		return errors.Wrap(core.ErrFrameBracket, "PreDraw called twice without PostDraw")
	case submissionStateBroken:
		return errors.Wrap(core.ErrFrameBracket, "submission context is broken")
	}
	if sc.targetViews == nil {
		return core.NilDependency("render targets, call BindTargets first")
	}

	sc.current = sc.swapChain.CurrentBufferIndex()
	sc.list.ResourceBarrier(Barrier{
		Resource: sc.swapChain.Buffer(sc.current),
		Before:   metadata.ResourceStatePresent,
		After:    metadata.ResourceStateRenderTarget,
	})

	rtv := sc.targetSlots[sc.current].Handle
	dsv := sc.depthSlot.Handle
	sc.list.SetRenderTargets(rtv, &dsv)
	sc.list.ClearRenderTargetView(rtv, sc.config.ClearColor)
	sc.list.ClearDepthStencilView(dsv, 1.0, 0)

	sc.state = submissionStateRecording
	return nil
}

// PostDraw finishes the frame: final barrier, close, submit, present,
// signal the fence and wait for it, then reopen the command list.
func (sc *SubmissionContext) PostDraw() error {
	switch sc.state {
	case submissionStateReady:
		return errors.Wrap(core.ErrFrameBracket, "PostDraw called without PreDraw")
	case submissionStateBroken:
		return errors.Wrap(core.ErrFrameBracket, "submission context is broken")
	}

	sc.list.ResourceBarrier(Barrier{
		Resource: sc.swapChain.Buffer(sc.current),
		Before:   metadata.ResourceStateRenderTarget,
		After:    metadata.ResourceStatePresent,
	})

	if err := sc.submit(); err != nil {
		sc.state = submissionStateBroken
		return err
	}
	sc.frames++
	sc.state = submissionStateReady
	return nil
}

func (sc *SubmissionContext) submit() error {
	if err := sc.list.Close(); err != nil {
		return errors.Wrap(err, "close command list")
	}
	if err := sc.queue.ExecuteCommandList(sc.list); err != nil {
		return errors.Wrap(err, "execute command list")
	}

	var syncInterval uint32
	if sc.config.VSync {
		syncInterval = 1
	}
	if err := sc.swapChain.Present(syncInterval); err != nil {
		return errors.Wrapf(err, "present buffer %d", sc.current)
	}

	v, err := sc.fence.Signal(sc.queue)
	if err != nil {
		return err
	}
	if err := sc.fence.WaitFor(v); err != nil {
		return err
	}

	if err := sc.allocator.Reset(); err != nil {
		return errors.Wrap(err, "reset command allocator")
	}
	if err := sc.list.Reset(sc.allocator); err != nil {
		return errors.Wrap(err, "reset command list")
	}
	return nil
}

// Flush blocks until the GPU has finished every submitted frame.
func (sc *SubmissionContext) Flush() error {
	return sc.fence.Flush(sc.queue)
}

// Resize recreates the presentation buffers and the depth buffer at the
// same view slots. It must be called between frames.
func (sc *SubmissionContext) Resize(width, height uint32) error {
	if sc.state != submissionStateReady {
		return errors.Wrap(core.ErrFrameBracket, "Resize called inside a frame")
	}
	if width == 0 || height == 0 {
		return nil
	}
	if err := sc.Flush(); err != nil {
		return err
	}
	if sc.depth != nil {
		sc.depth.Destroy()
		sc.depth = nil
	}
	if err := sc.swapChain.Resize(width, height); err != nil {
		return core.CreationFailed(err, "resize swap chain %dx%d", width, height)
	}
	sc.config.Width = width
	sc.config.Height = height
	if sc.targetViews == nil {
		return nil
	}
	core.LogDebug("resized presentation buffers to %dx%d", width, height)
	return sc.createTargets()
}

// SetClearColor changes the background color used by the next PreDraw.
func (sc *SubmissionContext) SetClearColor(color metadata.Color) {
	sc.config.ClearColor = color
}

func (sc *SubmissionContext) ClearColor() metadata.Color {
	return sc.config.ClearColor
}

func (sc *SubmissionContext) Device() Device {
	return sc.device
}

// CommandList is the open list callers record draws into between PreDraw and PostDraw.
func (sc *SubmissionContext) CommandList() CommandList {
	return sc.list
}

func (sc *SubmissionContext) Queue() CommandQueue {
	return sc.queue
}

func (sc *SubmissionContext) Fence() *FrameFence {
	return sc.fence
}

func (sc *SubmissionContext) TargetFormat() metadata.Format {
	return sc.config.TargetFormat
}

func (sc *SubmissionContext) DepthFormat() metadata.Format {
	return sc.config.DepthFormat
}

// Recording reports whether PreDraw has been called without a matching PostDraw.
func (sc *SubmissionContext) Recording() bool {
	return sc.state == submissionStateRecording
}

// Frames is the number of frames presented so far.
func (sc *SubmissionContext) Frames() uint64 {
	return sc.frames
}

// Close drains the queue and releases everything in reverse creation order.
func (sc *SubmissionContext) Close() error {
	var err error
	if sc.state != submissionStateBroken && sc.fence != nil {
		err = sc.Flush()
	}
	if sc.depth != nil {
		sc.depth.Destroy()
		sc.depth = nil
	}
	if sc.fence != nil {
		sc.fence.Destroy()
		sc.fence = nil
	}
	if sc.swapChain != nil {
		sc.swapChain.Destroy()
		sc.swapChain = nil
	}
	return err
}
