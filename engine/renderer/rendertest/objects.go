package rendertest

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type Queue struct {
	device *Device
	// Executed counts executed command lists.
	Executed int
}

func (q *Queue) ExecuteCommandList(list renderer.CommandList) error {
	if err := q.device.fail("ExecuteCommandList"); err != nil {
		return err
	}
	cl := list.(*CommandList)
	if cl.open {
		q.device.violation("execute of an open command list")
		return errors.New("command list is still open")
	}
	for _, op := range cl.ops {
		if op.Kind == OpBarrier {
			t, ok := op.Barrier.Resource.(*Texture)
			if !ok {
				q.device.violation("barrier on a foreign resource")
				continue
			}
			if t.State != op.Barrier.Before {
				q.device.violation("barrier expects %s but resource is %s", op.Barrier.Before, t.State)
			}
			t.State = op.Barrier.After
		}
	}
	q.device.mu.Lock()
	q.device.Log = append(q.device.Log, cl.ops...)
	q.device.mu.Unlock()
	cl.ops = nil
	cl.executed = true
	q.Executed++
	return nil
}

func (q *Queue) Signal(fence renderer.Fence, value uint64) error {
	if err := q.device.fail("Signal"); err != nil {
		return err
	}
	f := fence.(*Fence)
	f.pending = value
	if !q.device.GPULag {
		f.completed = value
	}
	q.device.mu.Lock()
	q.device.Log = append(q.device.Log, Op{Kind: OpSignal, Value: value})
	q.device.mu.Unlock()
	return nil
}

type Allocator struct {
	Resets int
}

func (a *Allocator) Reset() error {
	a.Resets++
	return nil
}

// CommandList buffers ops until the queue executes it.
type CommandList struct {
	device   *Device
	ops      []Op
	open     bool
	executed bool
}

// Open reports whether the list is recording.
func (l *CommandList) Open() bool {
	return l.open
}

// Pending returns the ops recorded since the last execution.
func (l *CommandList) Pending() []Op {
	return l.ops
}

func (l *CommandList) record(op Op) {
	if !l.open {
		l.device.violation("%s recorded into a closed command list", op.Kind)
		return
	}
	l.ops = append(l.ops, op)
}

func (l *CommandList) Reset(allocator renderer.CommandAllocator) error {
	if l.open {
		return errors.New("reset of an open command list")
	}
	l.ops = nil
	l.open = true
	l.executed = false
	return nil
}

func (l *CommandList) Close() error {
	if !l.open {
		return errors.New("close of a closed command list")
	}
	l.open = false
	return nil
}

func (l *CommandList) ResourceBarrier(barriers ...renderer.Barrier) {
	for _, b := range barriers {
		l.record(Op{Kind: OpBarrier, Barrier: b})
	}
}

func (l *CommandList) SetRenderTargets(renderTarget metadata.DescriptorHandle, depthStencil *metadata.DescriptorHandle) {
	op := Op{Kind: OpSetRenderTargets, Target: renderTarget}
	if depthStencil != nil {
		op.Handle = *depthStencil
	}
	l.record(op)
}

func (l *CommandList) ClearRenderTargetView(renderTarget metadata.DescriptorHandle, color metadata.Color) {
	l.record(Op{Kind: OpClearRenderTarget, Target: renderTarget, Color: color})
}

func (l *CommandList) ClearDepthStencilView(depthStencil metadata.DescriptorHandle, depth float32, stencil uint8) {
	l.record(Op{Kind: OpClearDepthStencil, Target: depthStencil, Depth: depth})
}

func (l *CommandList) SetDescriptorHeap(heap renderer.DescriptorHeap) {
	l.record(Op{Kind: OpSetDescriptorHeap, Handle: metadata.DescriptorHandle{Heap: heap.Type()}})
}

func (l *CommandList) SetViewport(viewport metadata.Viewport) {
	l.record(Op{Kind: OpSetViewport, Viewport: viewport})
}

func (l *CommandList) SetScissorRect(rect metadata.Rect) {
	l.record(Op{Kind: OpSetScissorRect, Rect: rect})
}

func (l *CommandList) SetBindingLayout(layout renderer.BindingLayout) {
	l.record(Op{Kind: OpSetBindingLayout})
}

func (l *CommandList) SetPipelineState(pipeline renderer.PipelineState) {
	l.record(Op{Kind: OpSetPipelineState, Pipeline: pipeline.(*Pipeline)})
}

func (l *CommandList) SetPrimitiveTopology(topology metadata.PrimitiveTopology) {
	l.record(Op{Kind: OpSetPrimitiveTopology, Count: uint32(topology)})
}

func (l *CommandList) SetVertexBuffer(view metadata.VertexBufferView) {
	l.record(Op{Kind: OpSetVertexBuffer, Vertex: view})
}

func (l *CommandList) SetIndexBuffer(view metadata.IndexBufferView) {
	l.record(Op{Kind: OpSetIndexBuffer, Index: view})
}

func (l *CommandList) SetConstantBuffer(param metadata.BindingParam, address metadata.GPUAddress) {
	l.record(Op{Kind: OpSetConstantBuffer, Param: param, Address: address})
}

func (l *CommandList) SetDescriptorTable(param metadata.BindingParam, base metadata.DescriptorHandle) {
	l.record(Op{Kind: OpSetDescriptorTable, Param: param, Handle: base})
}

func (l *CommandList) DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32) {
	l.record(Op{Kind: OpDraw, Count: vertexCount, Instances: instanceCount})
}

func (l *CommandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	l.record(Op{Kind: OpDrawIndexed, Count: indexCount, Instances: instanceCount})
}

// SwapChain flips between its buffers on every Present.
type SwapChain struct {
	device  *Device
	buffers []*Texture
	format  metadata.Format
	current uint32
	// Presents counts Present calls.
	Presents int
	Width    uint32
	Height   uint32
}

func (s *SwapChain) allocate(width, height, count uint32) {
	s.buffers = make([]*Texture, count)
	for i := range s.buffers {
		s.buffers[i] = &Texture{width: width, height: height, format: s.format, State: metadata.ResourceStatePresent}
	}
	s.Width, s.Height = width, height
	s.current = 0
}

func (s *SwapChain) BufferCount() uint32 {
	return uint32(len(s.buffers))
}

func (s *SwapChain) CurrentBufferIndex() uint32 {
	return s.current
}

func (s *SwapChain) Buffer(index uint32) renderer.Texture {
	return s.buffers[index]
}

func (s *SwapChain) Format() metadata.Format {
	return s.format
}

func (s *SwapChain) Present(syncInterval uint32) error {
	if err := s.device.fail("Present"); err != nil {
		return err
	}
	if st := s.buffers[s.current].State; st != metadata.ResourceStatePresent {
		s.device.violation("present of buffer %d in state %s", s.current, st)
	}
	s.device.mu.Lock()
	s.device.Log = append(s.device.Log, Op{Kind: OpPresent, Count: s.current})
	s.device.mu.Unlock()
	s.current = (s.current + 1) % uint32(len(s.buffers))
	s.Presents++
	return nil
}

func (s *SwapChain) Resize(width, height uint32) error {
	if err := s.device.fail("Resize"); err != nil {
		return err
	}
	s.allocate(width, height, uint32(len(s.buffers)))
	return nil
}

func (s *SwapChain) Destroy() {}

type Fence struct {
	device    *Device
	completed uint64
	pending   uint64
	// Waits counts the calls that had to block.
	Waits     int
	Destroyed bool
}

func (f *Fence) CompletedValue() uint64 {
	return f.completed
}

// Wait completes everything up to value, as a GPU catching up would.
func (f *Fence) Wait(value uint64) error {
	if err := f.device.fail("Wait"); err != nil {
		return err
	}
	if value > f.pending {
		return errors.Newf("wait for %d which was never signaled (last %d)", value, f.pending)
	}
	f.Waits++
	f.completed = value
	return nil
}

func (f *Fence) Destroy() {
	f.Destroyed = true
}

type DescriptorHeap struct {
	heapType metadata.HeapType
	capacity uint32
	// Views maps slot index to the texture viewed there.
	Views     map[uint32]*Texture
	Destroyed bool
}

func (h *DescriptorHeap) Type() metadata.HeapType {
	return h.heapType
}

func (h *DescriptorHeap) Capacity() uint32 {
	return h.capacity
}

func (h *DescriptorHeap) Destroy() {
	h.Destroyed = true
}

// Buffer is plain host memory with a fake GPU address.
type Buffer struct {
	data      []byte
	address   metadata.GPUAddress
	Destroyed bool
}

func (b *Buffer) Size() uint64 {
	return uint64(len(b.data))
}

func (b *Buffer) Address() metadata.GPUAddress {
	return b.address
}

func (b *Buffer) Mapped() []byte {
	return b.data
}

func (b *Buffer) Destroy() {
	b.Destroyed = true
}

type Texture struct {
	width, height uint32
	format        metadata.Format
	// State is updated as executed barriers are replayed.
	State     metadata.ResourceState
	Pixels    []byte
	Writes    int
	Destroyed bool
}

func (t *Texture) Width() uint32 {
	return t.width
}

func (t *Texture) Height() uint32 {
	return t.height
}

func (t *Texture) Format() metadata.Format {
	return t.format
}

func (t *Texture) Destroy() {
	t.Destroyed = true
}

type BindingLayout struct {
	Desc      metadata.BindingLayoutDesc
	Destroyed bool
}

func (l *BindingLayout) Destroy() {
	l.Destroyed = true
}

type Pipeline struct {
	desc      metadata.PipelineStateDesc
	Layout    *BindingLayout
	Destroyed bool
}

func (p *Pipeline) Desc() metadata.PipelineStateDesc {
	return p.desc
}

func (p *Pipeline) Destroy() {
	p.Destroyed = true
}

// Key returns the fill and blend mode the pipeline was built for.
func (p *Pipeline) Key() (metadata.FillMode, metadata.BlendMode) {
	return p.desc.Fill, p.desc.Blend
}
