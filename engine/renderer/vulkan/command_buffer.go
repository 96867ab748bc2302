package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandAllocator is a command pool. Resetting it recycles every
// command buffer allocated from it.
type VulkanCommandAllocator struct {
	context *VulkanContext
	Handle  vk.CommandPool
}

var _ renderer.CommandAllocator = (*VulkanCommandAllocator)(nil)

func NewCommandAllocator(context *VulkanContext) (*VulkanCommandAllocator, error) {
	a := &VulkanCommandAllocator{context: context}
	err := context.locks.SafeCall(CommandBufferManagement, func() error {
		return resultError("vkCreateCommandPool", vk.CreateCommandPool(context.Device.LogicalDevice, &vk.CommandPoolCreateInfo{
			SType:            vk.StructureTypeCommandPoolCreateInfo,
			QueueFamilyIndex: uint32(context.Device.GraphicsQueueIndex),
			Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		}, context.Allocator, &a.Handle))
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *VulkanCommandAllocator) Reset() error {
	return a.context.locks.SafeCall(CommandBufferManagement, func() error {
		return resultError("vkResetCommandPool", vk.ResetCommandPool(a.context.Device.LogicalDevice, a.Handle, 0))
	})
}

func (a *VulkanCommandAllocator) Destroy() {
	if a.Handle == vk.NullCommandPool {
		return
	}
	vk.DestroyCommandPool(a.context.Device.LogicalDevice, a.Handle, a.context.Allocator)
	a.Handle = vk.NullCommandPool
}

// VulkanCommandList records into a primary command buffer. Render passes
// are opened lazily on the first clear or draw after the targets are set
// and closed by any barrier, target change or Close. Recording calls do
// not return errors; the first failure is reported by Close.
type VulkanCommandList struct {
	backend   *VulkanBackend
	allocator *VulkanCommandAllocator
	Handle    vk.CommandBuffer
	State     VulkanCommandBufferState
	err       error

	target *VulkanImage
	depth  *VulkanImage
	pass   *VulkanRenderpass

	textures   *VulkanDescriptorHeap
	layout     *VulkanBindingLayout
	pipeline   *VulkanPipeline
	topology   metadata.PrimitiveTopology
	constants  uniformKey
	texture    uint32
	vertices   metadata.VertexBufferView
	indices    metadata.IndexBufferView
	bindingsOK bool
}

var _ renderer.CommandList = (*VulkanCommandList)(nil)

func NewCommandList(backend *VulkanBackend, allocator *VulkanCommandAllocator) (*VulkanCommandList, error) {
	l := &VulkanCommandList{backend: backend, State: COMMAND_BUFFER_STATE_NOT_ALLOCATED}
	if err := l.allocate(allocator); err != nil {
		return nil, err
	}
	if err := l.begin(); err != nil {
		l.Free()
		return nil, err
	}
	return l, nil
}

func (l *VulkanCommandList) allocate(allocator *VulkanCommandAllocator) error {
	context := l.backend.context
	buffers := make([]vk.CommandBuffer, 1)
	err := context.locks.SafeCall(CommandBufferManagement, func() error {
		return resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(context.Device.LogicalDevice, &vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        allocator.Handle,
			CommandBufferCount: 1,
			Level:              vk.CommandBufferLevelPrimary,
		}, buffers))
	})
	if err != nil {
		return err
	}
	l.allocator = allocator
	l.Handle = buffers[0]
	l.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (l *VulkanCommandList) begin() error {
	if err := resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(l.Handle, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})); err != nil {
		return err
	}
	l.State = COMMAND_BUFFER_STATE_RECORDING
	l.err = nil
	l.target, l.depth, l.pass = nil, nil, nil
	l.layout, l.pipeline = nil, nil
	l.textures = nil
	l.constants = uniformKey{}
	l.texture = 0
	l.vertices = metadata.VertexBufferView{}
	l.indices = metadata.IndexBufferView{}
	l.bindingsOK = false
	return nil
}

func (l *VulkanCommandList) fail(err error) {
	if err != nil && l.err == nil {
		core.LogError("command list: %s", err)
		l.err = err
	}
}

func (l *VulkanCommandList) recording() bool {
	if l.State == COMMAND_BUFFER_STATE_RECORDING || l.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return true
	}
	l.fail(errors.New("command list is not open"))
	return false
}

// Reset reopens the list. A different allocator moves the buffer to its pool.
func (l *VulkanCommandList) Reset(allocator renderer.CommandAllocator) error {
	a, ok := allocator.(*VulkanCommandAllocator)
	if !ok || a == nil {
		return core.NilDependency("vulkan command allocator")
	}
	if l.State == COMMAND_BUFFER_STATE_RECORDING || l.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return errors.New("command list reset while open")
	}
	if a != l.allocator {
		l.Free()
		if err := l.allocate(a); err != nil {
			return err
		}
	}
	return l.begin()
}

func (l *VulkanCommandList) Close() error {
	if !l.recording() {
		return l.err
	}
	l.endPass()
	if err := resultError("vkEndCommandBuffer", vk.EndCommandBuffer(l.Handle)); err != nil {
		l.fail(err)
	}
	l.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return l.err
}

func (l *VulkanCommandList) Free() {
	if l.Handle == nil || l.allocator == nil {
		return
	}
	context := l.backend.context
	_ = context.locks.SafeCall(CommandBufferManagement, func() error {
		vk.FreeCommandBuffers(context.Device.LogicalDevice, l.allocator.Handle, 1, []vk.CommandBuffer{l.Handle})
		return nil
	})
	l.Handle = nil
	l.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (l *VulkanCommandList) endPass() {
	if l.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return
	}
	l.pass.RenderpassEnd(l.Handle)
	l.State = COMMAND_BUFFER_STATE_RECORDING
}

func (l *VulkanCommandList) beginPass() bool {
	if l.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return true
	}
	if l.target == nil {
		l.fail(errors.New("no render target bound"))
		return false
	}
	depthFormat := vk.FormatUndefined
	if l.depth != nil {
		depthFormat = l.depth.vkFormat
	}
	pass, err := l.backend.passes.get(l.target.vkFormat, depthFormat)
	if err != nil {
		l.fail(err)
		return false
	}
	framebuffer, err := l.backend.framebuffers.get(pass, l.target, l.depth)
	if err != nil {
		l.fail(err)
		return false
	}
	pass.RenderpassBegin(l.Handle, framebuffer)
	l.pass = pass
	l.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
	return true
}

func (l *VulkanCommandList) ResourceBarrier(barriers ...renderer.Barrier) {
	if !l.recording() {
		return
	}
	l.endPass()
	for _, b := range barriers {
		img, ok := b.Resource.(*VulkanImage)
		if !ok || img == nil {
			l.fail(errors.Newf("barrier %s -> %s on a foreign resource", b.Before, b.After))
			continue
		}
		if expected := toImageLayout(b.Before); img.Layout != expected && img.Layout != vk.ImageLayoutUndefined {
			core.LogDebug("barrier from %s but image is in layout %d", b.Before, img.Layout)
		}
		img.Transition(l.Handle, toImageLayout(b.After))
	}
}

func (l *VulkanCommandList) SetRenderTargets(renderTarget metadata.DescriptorHandle, depthStencil *metadata.DescriptorHandle) {
	if !l.recording() {
		return
	}
	target, ok := l.backend.viewAt(renderTarget)
	if !ok {
		l.fail(errors.Newf("no render target view at %s slot %d", renderTarget.Heap, renderTarget.Index))
		return
	}
	var depth *VulkanImage
	if depthStencil != nil {
		if depth, ok = l.backend.viewAt(*depthStencil); !ok {
			l.fail(errors.Newf("no depth stencil view at slot %d", depthStencil.Index))
			return
		}
	}
	if target == l.target && depth == l.depth {
		return
	}
	l.endPass()
	l.target, l.depth = target, depth
}

func (l *VulkanCommandList) fullRect(img *VulkanImage) []vk.ClearRect {
	return []vk.ClearRect{{
		Rect: vk.Rect2D{
			Extent: vk.Extent2D{Width: img.Width(), Height: img.Height()},
		},
		LayerCount: 1,
	}}
}

func (l *VulkanCommandList) ClearRenderTargetView(renderTarget metadata.DescriptorHandle, color metadata.Color) {
	if !l.recording() {
		return
	}
	img, ok := l.backend.viewAt(renderTarget)
	if !ok {
		l.fail(errors.Newf("no render target view at slot %d", renderTarget.Index))
		return
	}
	if img != l.target {
		l.fail(errors.Newf("render target %d is not bound", renderTarget.Index))
		return
	}
	if !l.beginPass() {
		return
	}
	vk.CmdClearAttachments(l.Handle, 1, []vk.ClearAttachment{{
		AspectMask:      vk.ImageAspectFlags(vk.ImageAspectColorBit),
		ColorAttachment: 0,
		ClearValue:      vk.NewClearValue(color[:]),
	}}, 1, l.fullRect(img))
}

func (l *VulkanCommandList) ClearDepthStencilView(depthStencil metadata.DescriptorHandle, depth float32, stencil uint8) {
	if !l.recording() {
		return
	}
	img, ok := l.backend.viewAt(depthStencil)
	if !ok {
		l.fail(errors.Newf("no depth stencil view at slot %d", depthStencil.Index))
		return
	}
	if img != l.depth {
		l.fail(errors.Newf("depth stencil %d is not bound", depthStencil.Index))
		return
	}
	if !l.beginPass() {
		return
	}
	vk.CmdClearAttachments(l.Handle, 1, []vk.ClearAttachment{{
		AspectMask: vk.ImageAspectFlags(img.Aspect),
		ClearValue: vk.NewClearDepthStencil(depth, uint32(stencil)),
	}}, 1, l.fullRect(img))
}

func (l *VulkanCommandList) SetDescriptorHeap(heap renderer.DescriptorHeap) {
	h, ok := heap.(*VulkanDescriptorHeap)
	if !ok || h.heapType != metadata.HeapTypeShaderResource {
		l.fail(errors.New("only shader resource heaps can be bound"))
		return
	}
	l.textures = h
	l.bindingsOK = false
}

func (l *VulkanCommandList) SetViewport(viewport metadata.Viewport) {
	if !l.recording() {
		return
	}
	// Flipped so that clip space Y points up.
	vk.CmdSetViewport(l.Handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y + viewport.Height,
		Width:    viewport.Width,
		Height:   -viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (l *VulkanCommandList) SetScissorRect(rect metadata.Rect) {
	if !l.recording() {
		return
	}
	vk.CmdSetScissor(l.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: rect.Left, Y: rect.Top},
		Extent: vk.Extent2D{
			Width:  uint32(max(rect.Right-rect.Left, 0)),
			Height: uint32(max(rect.Bottom-rect.Top, 0)),
		},
	}})
}

func (l *VulkanCommandList) SetBindingLayout(layout renderer.BindingLayout) {
	bl, ok := layout.(*VulkanBindingLayout)
	if !ok || bl == nil {
		l.fail(core.NilDependency("vulkan binding layout"))
		return
	}
	if bl != l.layout {
		l.layout = bl
		l.bindingsOK = false
	}
}

func (l *VulkanCommandList) SetPipelineState(pipeline renderer.PipelineState) {
	if !l.recording() {
		return
	}
	p, ok := pipeline.(*VulkanPipeline)
	if !ok || p == nil {
		l.fail(core.NilDependency("vulkan pipeline"))
		return
	}
	l.pipeline = p
	p.Bind(l.Handle)
}

// SetPrimitiveTopology is baked into the pipeline; a mismatch is an error.
func (l *VulkanCommandList) SetPrimitiveTopology(topology metadata.PrimitiveTopology) {
	l.topology = topology
}

func (l *VulkanCommandList) SetVertexBuffer(view metadata.VertexBufferView) {
	if !l.recording() {
		return
	}
	b, offset, ok := l.backend.context.resolve(view.Address)
	if !ok {
		l.fail(errors.Newf("vertex buffer at unknown address %#x", uint64(view.Address)))
		return
	}
	l.vertices = view
	vk.CmdBindVertexBuffers(l.Handle, 0, 1, []vk.Buffer{b.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (l *VulkanCommandList) SetIndexBuffer(view metadata.IndexBufferView) {
	if !l.recording() {
		return
	}
	b, offset, ok := l.backend.context.resolve(view.Address)
	if !ok {
		l.fail(errors.Newf("index buffer at unknown address %#x", uint64(view.Address)))
		return
	}
	indexType := vk.IndexTypeUint32
	switch view.Format {
	case metadata.FormatR32Uint:
	case metadata.FormatR16Uint:
		indexType = vk.IndexTypeUint16
	default:
		l.fail(errors.Newf("index format %s is not supported", view.Format))
		return
	}
	l.indices = view
	vk.CmdBindIndexBuffer(l.Handle, b.Handle, vk.DeviceSize(offset), indexType)
}

func (l *VulkanCommandList) SetConstantBuffer(param metadata.BindingParam, address metadata.GPUAddress) {
	binding, ok := constantBinding[param]
	if !ok {
		l.fail(errors.Newf("parameter %d is not a constant buffer", param))
		return
	}
	if l.constants[binding] != address {
		l.constants[binding] = address
		l.bindingsOK = false
	}
}

func (l *VulkanCommandList) SetDescriptorTable(param metadata.BindingParam, base metadata.DescriptorHandle) {
	if param != metadata.BindingParamTextureTable || base.Heap != metadata.HeapTypeShaderResource {
		l.fail(errors.Newf("parameter %d cannot take a %s table", param, base.Heap))
		return
	}
	l.texture = base.Index
	if l.textures != nil && base.Index >= l.textures.Capacity() {
		l.fail(errors.Mark(errors.Newf("texture slot %d out of %d", base.Index, l.textures.Capacity()), core.ErrSlotOverflow))
	}
}

// flush binds everything a draw reads and opens the render pass.
func (l *VulkanCommandList) flush() bool {
	if !l.recording() {
		return false
	}
	switch {
	case l.pipeline == nil:
		l.fail(errors.New("draw without a pipeline"))
		return false
	case l.layout == nil:
		l.fail(errors.New("draw without a binding layout"))
		return false
	case l.textures == nil:
		l.fail(errors.New("draw without a shader resource heap"))
		return false
	}
	if l.pipeline.desc.Topology != l.topology {
		l.fail(errors.Newf("topology %d does not match the pipeline", l.topology))
		return false
	}
	if !l.beginPass() {
		return false
	}
	if !l.bindingsOK {
		constants, err := l.backend.descriptors.constants(l.constants)
		if err != nil {
			l.fail(err)
			return false
		}
		vk.CmdBindDescriptorSets(l.Handle, vk.PipelineBindPointGraphics, l.layout.Handle,
			textureSet, 2, []vk.DescriptorSet{l.textures.Set, constants}, 0, nil)
		l.bindingsOK = true
	}
	texture := l.texture
	vk.CmdPushConstants(l.Handle, l.layout.Handle, vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		0, textureIndexSize, unsafe.Pointer(&texture))
	return true
}

func (l *VulkanCommandList) DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32) {
	if !l.flush() {
		return
	}
	vk.CmdDraw(l.Handle, vertexCount, instanceCount, startVertex, startInstance)
}

func (l *VulkanCommandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	if !l.flush() {
		return
	}
	vk.CmdDrawIndexed(l.Handle, indexCount, instanceCount, startIndex, baseVertex, startInstance)
}

// VulkanCommandQueue submits to the graphics queue.
type VulkanCommandQueue struct {
	context *VulkanContext
	Handle  vk.Queue
	family  uint32
}

var _ renderer.CommandQueue = (*VulkanCommandQueue)(nil)

func (q *VulkanCommandQueue) ExecuteCommandList(list renderer.CommandList) error {
	l, ok := list.(*VulkanCommandList)
	if !ok || l == nil {
		return core.NilDependency("vulkan command list")
	}
	if l.State != COMMAND_BUFFER_STATE_RECORDING_ENDED {
		return errors.New("command list must be closed before execution")
	}
	err := q.context.locks.SafeQueueCall(q.family, func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(q.Handle, 1, []vk.SubmitInfo{{
			SType:              vk.StructureTypeSubmitInfo,
			CommandBufferCount: 1,
			PCommandBuffers:    []vk.CommandBuffer{l.Handle},
		}}, nullFence))
	})
	if err != nil {
		return err
	}
	l.State = COMMAND_BUFFER_STATE_SUBMITTED
	return nil
}

func (q *VulkanCommandQueue) Signal(fence renderer.Fence, value uint64) error {
	f, ok := fence.(*VulkanFence)
	if !ok || f == nil {
		return core.NilDependency("vulkan fence")
	}
	return q.context.locks.SafeQueueCall(q.family, func() error {
		return f.signal(q.Handle, value)
	})
}
