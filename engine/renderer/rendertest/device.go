// Package rendertest provides an in-memory renderer.Device that records
// every submitted command, for tests of the frame core.
package rendertest

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type OpKind int

const (
	OpBarrier OpKind = iota
	OpSetRenderTargets
	OpClearRenderTarget
	OpClearDepthStencil
	OpSetDescriptorHeap
	OpSetViewport
	OpSetScissorRect
	OpSetBindingLayout
	OpSetPipelineState
	OpSetPrimitiveTopology
	OpSetVertexBuffer
	OpSetIndexBuffer
	OpSetConstantBuffer
	OpSetDescriptorTable
	OpDraw
	OpDrawIndexed
	OpPresent
	OpSignal
)

var opNames = []string{
	"Barrier", "SetRenderTargets", "ClearRenderTarget", "ClearDepthStencil", "SetDescriptorHeap",
	"SetViewport", "SetScissorRect", "SetBindingLayout", "SetPipelineState", "SetPrimitiveTopology",
	"SetVertexBuffer", "SetIndexBuffer", "SetConstantBuffer", "SetDescriptorTable", "Draw",
	"DrawIndexed", "Present", "Signal",
}

func (k OpKind) String() string {
	if int(k) < len(opNames) {
		return opNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", k)
}

// Op is one recorded command. Only the fields relevant to Kind are set.
type Op struct {
	Kind      OpKind
	Barrier   renderer.Barrier
	Target    metadata.DescriptorHandle
	Color     metadata.Color
	Depth     float32
	Pipeline  *Pipeline
	Param     metadata.BindingParam
	Address   metadata.GPUAddress
	Handle    metadata.DescriptorHandle
	Viewport  metadata.Viewport
	Rect      metadata.Rect
	Vertex    metadata.VertexBufferView
	Index     metadata.IndexBufferView
	Count     uint32
	Instances uint32
	Value     uint64
}

// Device is a renderer.Device whose queue appends executed commands to Log.
type Device struct {
	mu sync.Mutex

	// Log holds every executed command, presents and fence signals in
	// submission order.
	Log []Op
	// Errors collects protocol violations: recording into a closed list,
	// executing an open list, barriers from the wrong state.
	Errors []error
	// Fail makes the named creation method return the error.
	Fail map[string]error
	// GPULag keeps signaled fence values pending until someone waits on them.
	GPULag bool

	Buffers   []*Buffer
	Textures  []*Texture
	Heaps     []*DescriptorHeap
	Pipelines []*Pipeline
	Fences    []*Fence

	nextAddress metadata.GPUAddress
	waitIdle    int
}

func NewDevice() *Device {
	return &Device{
		Fail:        make(map[string]error),
		nextAddress: 0x10000,
	}
}

func (d *Device) fail(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.Fail[op]; ok {
		return err
	}
	return nil
}

func (d *Device) violation(format string, args ...interface{}) {
	d.mu.Lock()
	d.Errors = append(d.Errors, errors.Newf(format, args...))
	d.mu.Unlock()
}

// Kinds returns the kinds of every logged op, in order.
func (d *Device) Kinds() []OpKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	kinds := make([]OpKind, len(d.Log))
	for i, op := range d.Log {
		kinds[i] = op.Kind
	}
	return kinds
}

// Ops returns the logged ops of the given kind.
func (d *Device) Ops(kind OpKind) []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Op
	for _, op := range d.Log {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// ResetLog drops the recorded history.
func (d *Device) ResetLog() {
	d.mu.Lock()
	d.Log = nil
	d.Errors = nil
	d.mu.Unlock()
}

// WaitIdleCalls counts WaitIdle calls.
func (d *Device) WaitIdleCalls() int {
	return d.waitIdle
}

func (d *Device) CreateCommandQueue() (renderer.CommandQueue, error) {
	if err := d.fail("CreateCommandQueue"); err != nil {
		return nil, err
	}
	return &Queue{device: d}, nil
}

func (d *Device) CreateCommandAllocator() (renderer.CommandAllocator, error) {
	if err := d.fail("CreateCommandAllocator"); err != nil {
		return nil, err
	}
	return &Allocator{}, nil
}

func (d *Device) CreateCommandList(allocator renderer.CommandAllocator) (renderer.CommandList, error) {
	if err := d.fail("CreateCommandList"); err != nil {
		return nil, err
	}
	return &CommandList{device: d, open: true}, nil
}

func (d *Device) CreateSwapChain(queue renderer.CommandQueue, width, height, bufferCount uint32, format metadata.Format) (renderer.SwapChain, error) {
	if err := d.fail("CreateSwapChain"); err != nil {
		return nil, err
	}
	sc := &SwapChain{device: d, format: format}
	sc.allocate(width, height, bufferCount)
	return sc, nil
}

func (d *Device) CreateFence(initialValue uint64) (renderer.Fence, error) {
	if err := d.fail("CreateFence"); err != nil {
		return nil, err
	}
	f := &Fence{device: d, completed: initialValue}
	d.Fences = append(d.Fences, f)
	return f, nil
}

func (d *Device) CreateDescriptorHeap(heapType metadata.HeapType, capacity uint32) (renderer.DescriptorHeap, error) {
	if err := d.fail("CreateDescriptorHeap"); err != nil {
		return nil, err
	}
	h := &DescriptorHeap{heapType: heapType, capacity: capacity, Views: make(map[uint32]*Texture)}
	d.Heaps = append(d.Heaps, h)
	return h, nil
}

func (d *Device) CreateUploadBuffer(size uint64) (renderer.Buffer, error) {
	if err := d.fail("CreateUploadBuffer"); err != nil {
		return nil, err
	}
	b := &Buffer{data: make([]byte, size), address: d.nextAddress}
	// keep addresses disjoint and aligned like a real allocator would
	d.nextAddress += metadata.GPUAddress((size + 255) &^ 255)
	d.Buffers = append(d.Buffers, b)
	return b, nil
}

// BufferAt returns the buffer whose base address is addr.
func (d *Device) BufferAt(addr metadata.GPUAddress) *Buffer {
	for _, b := range d.Buffers {
		if b.address == addr {
			return b
		}
	}
	return nil
}

func (d *Device) CreateDepthTexture(width, height uint32, format metadata.Format) (renderer.Texture, error) {
	if err := d.fail("CreateDepthTexture"); err != nil {
		return nil, err
	}
	t := &Texture{width: width, height: height, format: format, State: metadata.ResourceStateDepthWrite}
	d.Textures = append(d.Textures, t)
	return t, nil
}

func (d *Device) CreateTexture(width, height uint32, format metadata.Format, pixels []byte) (renderer.Texture, error) {
	if err := d.fail("CreateTexture"); err != nil {
		return nil, err
	}
	t := &Texture{width: width, height: height, format: format, State: metadata.ResourceStateShaderResource}
	t.Pixels = append([]byte(nil), pixels...)
	d.Textures = append(d.Textures, t)
	return t, nil
}

func (d *Device) WriteTexture(texture renderer.Texture, pixels []byte) error {
	if err := d.fail("WriteTexture"); err != nil {
		return err
	}
	t := texture.(*Texture)
	t.Pixels = append(t.Pixels[:0], pixels...)
	t.Writes++
	return nil
}

func (d *Device) createView(op string, texture renderer.Texture, heap renderer.DescriptorHeap, index uint32) error {
	if err := d.fail(op); err != nil {
		return err
	}
	h := heap.(*DescriptorHeap)
	if index >= h.capacity {
		return errors.Newf("%s: index %d outside heap of %d", op, index, h.capacity)
	}
	h.Views[index] = texture.(*Texture)
	return nil
}

func (d *Device) CreateRenderTargetView(texture renderer.Texture, heap renderer.DescriptorHeap, index uint32) error {
	return d.createView("CreateRenderTargetView", texture, heap, index)
}

func (d *Device) CreateDepthStencilView(texture renderer.Texture, heap renderer.DescriptorHeap, index uint32) error {
	return d.createView("CreateDepthStencilView", texture, heap, index)
}

func (d *Device) CreateShaderResourceView(texture renderer.Texture, heap renderer.DescriptorHeap, index uint32) error {
	return d.createView("CreateShaderResourceView", texture, heap, index)
}

func (d *Device) CreateBindingLayout(desc metadata.BindingLayoutDesc) (renderer.BindingLayout, error) {
	if err := d.fail("CreateBindingLayout"); err != nil {
		return nil, err
	}
	return &BindingLayout{Desc: desc}, nil
}

func (d *Device) CreatePipelineState(layout renderer.BindingLayout, desc metadata.PipelineStateDesc) (renderer.PipelineState, error) {
	if err := d.fail("CreatePipelineState"); err != nil {
		return nil, err
	}
	p := &Pipeline{desc: desc, Layout: layout.(*BindingLayout)}
	d.Pipelines = append(d.Pipelines, p)
	return p, nil
}

func (d *Device) WaitIdle() error {
	d.waitIdle++
	return nil
}

func (d *Device) Destroy() {}
