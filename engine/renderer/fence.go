package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/core"
)

// FrameFence pairs a GPU fence with the last value the CPU asked the queue to signal.
type FrameFence struct {
	fence Fence
	value uint64
}

func NewFrameFence(device Device) (*FrameFence, error) {
	f, err := device.CreateFence(0)
	if err != nil {
		return nil, core.CreationFailed(err, "create frame fence")
	}
	return &FrameFence{fence: f}, nil
}

// Value is the last value handed to Signal.
func (f *FrameFence) Value() uint64 {
	return f.value
}

// Completed is the value the GPU has reached.
func (f *FrameFence) Completed() uint64 {
	return f.fence.CompletedValue()
}

// Signal increments the counter and asks queue to write it once the GPU
// has finished everything submitted so far.
func (f *FrameFence) Signal(queue CommandQueue) (uint64, error) {
	f.value++
	if err := queue.Signal(f.fence, f.value); err != nil {
		return f.value, errors.Wrapf(err, "signal frame fence value %d", f.value)
	}
	return f.value, nil
}

// WaitFor blocks until the GPU reached value. It returns immediately when
// the value is already complete.
func (f *FrameFence) WaitFor(value uint64) error {
	if f.fence.CompletedValue() >= value {
		return nil
	}
	if err := f.fence.Wait(value); err != nil {
		return errors.Mark(errors.Wrapf(err, "wait for frame fence value %d", value), core.ErrFenceWait)
	}
	return nil
}

// Flush signals a new value and waits for it, draining the queue.
func (f *FrameFence) Flush(queue CommandQueue) error {
	v, err := f.Signal(queue)
	if err != nil {
		return err
	}
	return f.WaitFor(v)
}

func (f *FrameFence) Destroy() {
	if f.fence != nil {
		f.fence.Destroy()
		f.fence = nil
	}
}
