package renderer

import "github.com/spaghettifunk/prism/engine/renderer/metadata"

// Device creates every GPU object the frame core uses. Creation calls are
// made at startup (or on resize) and any failure is fatal for the engine.
type Device interface {
	CreateCommandQueue() (CommandQueue, error)
	CreateCommandAllocator() (CommandAllocator, error)
	// CreateCommandList returns a list that is already open for recording.
	CreateCommandList(allocator CommandAllocator) (CommandList, error)
	CreateSwapChain(queue CommandQueue, width, height, bufferCount uint32, format metadata.Format) (SwapChain, error)
	CreateFence(initialValue uint64) (Fence, error)
	CreateDescriptorHeap(heapType metadata.HeapType, capacity uint32) (DescriptorHeap, error)
	// CreateUploadBuffer returns a CPU-visible buffer of exactly size bytes.
	CreateUploadBuffer(size uint64) (Buffer, error)
	CreateDepthTexture(width, height uint32, format metadata.Format) (Texture, error)
	CreateTexture(width, height uint32, format metadata.Format, pixels []byte) (Texture, error)
	// WriteTexture replaces the content of a texture created with the same size.
	WriteTexture(texture Texture, pixels []byte) error
	CreateRenderTargetView(texture Texture, heap DescriptorHeap, index uint32) error
	CreateDepthStencilView(texture Texture, heap DescriptorHeap, index uint32) error
	CreateShaderResourceView(texture Texture, heap DescriptorHeap, index uint32) error
	CreateBindingLayout(desc metadata.BindingLayoutDesc) (BindingLayout, error)
	CreatePipelineState(layout BindingLayout, desc metadata.PipelineStateDesc) (PipelineState, error)
	// WaitIdle blocks until the device has finished all submitted work.
	WaitIdle() error
	Destroy()
}

type CommandQueue interface {
	ExecuteCommandList(list CommandList) error
	// Signal sets fence to value once all work submitted before it completes.
	Signal(fence Fence, value uint64) error
}

type CommandAllocator interface {
	// Reset reclaims the memory of recorded commands. The GPU must be done with them.
	Reset() error
}

// Barrier transitions a single resource between two usage states.
type Barrier struct {
	Resource Texture
	Before   metadata.ResourceState
	After    metadata.ResourceState
}

// CommandList records GPU commands between Reset and Close.
type CommandList interface {
	Reset(allocator CommandAllocator) error
	Close() error
	ResourceBarrier(barriers ...Barrier)
	SetRenderTargets(renderTarget metadata.DescriptorHandle, depthStencil *metadata.DescriptorHandle)
	ClearRenderTargetView(renderTarget metadata.DescriptorHandle, color metadata.Color)
	ClearDepthStencilView(depthStencil metadata.DescriptorHandle, depth float32, stencil uint8)
	SetDescriptorHeap(heap DescriptorHeap)
	SetViewport(viewport metadata.Viewport)
	SetScissorRect(rect metadata.Rect)
	SetBindingLayout(layout BindingLayout)
	SetPipelineState(pipeline PipelineState)
	SetPrimitiveTopology(topology metadata.PrimitiveTopology)
	SetVertexBuffer(view metadata.VertexBufferView)
	SetIndexBuffer(view metadata.IndexBufferView)
	SetConstantBuffer(param metadata.BindingParam, address metadata.GPUAddress)
	SetDescriptorTable(param metadata.BindingParam, base metadata.DescriptorHandle)
	DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32)
	DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32)
}

// SwapChain is the ring of presentation buffers.
type SwapChain interface {
	BufferCount() uint32
	// CurrentBufferIndex is the buffer the next frame renders into.
	CurrentBufferIndex() uint32
	Buffer(index uint32) Texture
	Format() metadata.Format
	// Present queues the current buffer for display and advances the ring.
	Present(syncInterval uint32) error
	// Resize recreates the buffers. All references to the old buffers must be dropped.
	Resize(width, height uint32) error
	Destroy()
}

// Fence is a monotonically increasing counter written by the GPU.
type Fence interface {
	CompletedValue() uint64
	// Wait blocks the calling thread until CompletedValue reaches value.
	Wait(value uint64) error
	Destroy()
}

// DescriptorHeap is a fixed-capacity table of resource views.
type DescriptorHeap interface {
	Type() metadata.HeapType
	Capacity() uint32
	Destroy()
}

// Buffer is GPU memory with a persistent CPU mapping.
type Buffer interface {
	Size() uint64
	Address() metadata.GPUAddress
	// Mapped exposes the whole buffer, valid until Destroy.
	Mapped() []byte
	Destroy()
}

type Texture interface {
	Width() uint32
	Height() uint32
	Format() metadata.Format
	Destroy()
}

type BindingLayout interface {
	Destroy()
}

type PipelineState interface {
	Desc() metadata.PipelineStateDesc
	Destroy()
}
