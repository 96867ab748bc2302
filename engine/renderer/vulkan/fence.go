package vulkan

import (
	"math"
	"sync"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
)

type pendingSignal struct {
	handle vk.Fence
	value  uint64
}

// VulkanFence is a counting fence built from binary fences. Every Signal
// submits an empty batch guarded by its own vk.Fence; the completed value is
// the highest value whose fence has been reached.
type VulkanFence struct {
	context *VulkanContext

	mu        sync.Mutex
	completed uint64
	pending   []pendingSignal
	free      []vk.Fence
}

var _ renderer.Fence = (*VulkanFence)(nil)

func NewFence(context *VulkanContext, initialValue uint64) *VulkanFence {
	return &VulkanFence{context: context, completed: initialValue}
}

func (vf *VulkanFence) acquire() (vk.Fence, error) {
	if n := len(vf.free); n > 0 {
		handle := vf.free[n-1]
		vf.free = vf.free[:n-1]
		return handle, nil
	}
	var handle vk.Fence
	err := vf.context.locks.SafeCall(SynchronizationManagement, func() error {
		return resultError("vkCreateFence", vk.CreateFence(vf.context.Device.LogicalDevice, &vk.FenceCreateInfo{
			SType: vk.StructureTypeFenceCreateInfo,
		}, vf.context.Allocator, &handle))
	})
	return handle, err
}

// signal queues value on queue. The caller holds the queue lock.
func (vf *VulkanFence) signal(queue vk.Queue, value uint64) error {
	vf.mu.Lock()
	defer vf.mu.Unlock()

	handle, err := vf.acquire()
	if err != nil {
		return err
	}
	if err := resultError("vkQueueSubmit", vk.QueueSubmit(queue, 0, nil, handle)); err != nil {
		vf.free = append(vf.free, handle)
		return err
	}
	vf.pending = append(vf.pending, pendingSignal{handle: handle, value: value})
	return nil
}

// poll retires every signal the device has reached. The caller holds mu.
func (vf *VulkanFence) poll() {
	kept := vf.pending[:0]
	for _, p := range vf.pending {
		if vk.GetFenceStatus(vf.context.Device.LogicalDevice, p.handle) != vk.Success {
			kept = append(kept, p)
			continue
		}
		vf.retire(p)
	}
	vf.pending = kept
}

func (vf *VulkanFence) retire(p pendingSignal) {
	if p.value > vf.completed {
		vf.completed = p.value
	}
	if res := vk.ResetFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{p.handle}); res != vk.Success {
		core.LogWarn("vkResetFences failed with %s, dropping fence", VulkanResultString(res, false))
		vk.DestroyFence(vf.context.Device.LogicalDevice, p.handle, vf.context.Allocator)
		return
	}
	vf.free = append(vf.free, p.handle)
}

func (vf *VulkanFence) CompletedValue() uint64 {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	vf.poll()
	return vf.completed
}

func (vf *VulkanFence) Wait(value uint64) error {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	if vf.completed >= value {
		return nil
	}

	target := -1
	for i, p := range vf.pending {
		if p.value >= value {
			target = i
			break
		}
	}
	if target < 0 {
		return errors.Mark(errors.Newf("fence value %d was never signaled", value), core.ErrFenceWait)
	}

	handle := vf.pending[target].handle
	if err := resultError("vkWaitForFences", vk.WaitForFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{handle}, vk.True, math.MaxUint64)); err != nil {
		return errors.Mark(err, core.ErrFenceWait)
	}
	vf.poll()
	return nil
}

func (vf *VulkanFence) Destroy() {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	device := vf.context.Device.LogicalDevice
	if device == nil {
		return
	}
	for _, p := range vf.pending {
		vk.WaitForFences(device, 1, []vk.Fence{p.handle}, vk.True, math.MaxUint64)
		vk.DestroyFence(device, p.handle, vf.context.Allocator)
	}
	for _, handle := range vf.free {
		vk.DestroyFence(device, handle, vf.context.Allocator)
	}
	vf.pending, vf.free = nil, nil
}
