package vulkan

import (
	"sync"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Buffers are addressed as id<<32 | offset. Zero is never a valid address.
const addressShift = 32

var nullFence vk.Fence

type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	locks *VulkanLockPool

	// Single-use command buffers for uploads come from their own pool.
	uploadPool vk.CommandPool

	addressMu   sync.RWMutex
	nextBuffer  uint64
	buffers     map[uint64]*VulkanBuffer
	onBufferDie []func(address metadata.GPUAddress)
	onImageDie  []func(view vk.ImageView)
}

func newVulkanContext() *VulkanContext {
	return &VulkanContext{
		Device:  &VulkanDevice{GraphicsQueueIndex: -1, PresentQueueIndex: -1, TransferQueueIndex: -1},
		locks:   NewVulkanLockPool(),
		buffers: make(map[uint64]*VulkanBuffer),
	}
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (memoryProperties.MemoryTypes[i].PropertyFlags&propertyFlags) == propertyFlags {
			return i, nil
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return 0, errors.Newf("no memory type matches filter %b with properties %b", typeFilter, propertyFlags)
}

// registerBuffer hands out the GPU address of a new buffer.
func (vc *VulkanContext) registerBuffer(b *VulkanBuffer) metadata.GPUAddress {
	vc.addressMu.Lock()
	defer vc.addressMu.Unlock()
	vc.nextBuffer++
	vc.buffers[vc.nextBuffer] = b
	return metadata.GPUAddress(vc.nextBuffer << addressShift)
}

func (vc *VulkanContext) releaseBuffer(address metadata.GPUAddress) {
	vc.addressMu.Lock()
	delete(vc.buffers, uint64(address)>>addressShift)
	hooks := vc.onBufferDie
	vc.addressMu.Unlock()
	for _, fn := range hooks {
		fn(address)
	}
}

// resolve maps an address back to its buffer and the byte offset inside it.
func (vc *VulkanContext) resolve(address metadata.GPUAddress) (*VulkanBuffer, uint64, bool) {
	vc.addressMu.RLock()
	defer vc.addressMu.RUnlock()
	b, ok := vc.buffers[uint64(address)>>addressShift]
	if !ok {
		return nil, 0, false
	}
	offset := uint64(address) & (1<<addressShift - 1)
	if offset >= b.size {
		return nil, 0, false
	}
	return b, offset, true
}

// onBufferRelease registers fn to run whenever a buffer is destroyed.
func (vc *VulkanContext) onBufferRelease(fn func(address metadata.GPUAddress)) {
	vc.addressMu.Lock()
	vc.onBufferDie = append(vc.onBufferDie, fn)
	vc.addressMu.Unlock()
}

// beginSingleUse allocates and begins a one-time command buffer.
func (vc *VulkanContext) beginSingleUse() (vk.CommandBuffer, error) {
	buffers := make([]vk.CommandBuffer, 1)
	err := vc.locks.SafeCall(CommandBufferManagement, func() error {
		return resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(vc.Device.LogicalDevice, &vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        vc.uploadPool,
			Level:              vk.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		}, buffers))
	})
	if err != nil {
		return nil, err
	}
	if err := resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(buffers[0], &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})); err != nil {
		vc.freeSingleUse(buffers[0])
		return nil, err
	}
	return buffers[0], nil
}

// endSingleUse submits cmd, waits for the queue to drain and frees it.
func (vc *VulkanContext) endSingleUse(cmd vk.CommandBuffer) error {
	defer vc.freeSingleUse(cmd)
	if err := resultError("vkEndCommandBuffer", vk.EndCommandBuffer(cmd)); err != nil {
		return err
	}
	family := uint32(vc.Device.GraphicsQueueIndex)
	return vc.locks.SafeQueueCall(family, func() error {
		if err := resultError("vkQueueSubmit", vk.QueueSubmit(vc.Device.GraphicsQueue, 1, []vk.SubmitInfo{{
			SType:              vk.StructureTypeSubmitInfo,
			CommandBufferCount: 1,
			PCommandBuffers:    []vk.CommandBuffer{cmd},
		}}, nullFence)); err != nil {
			return err
		}
		return resultError("vkQueueWaitIdle", vk.QueueWaitIdle(vc.Device.GraphicsQueue))
	})
}

func (vc *VulkanContext) freeSingleUse(cmd vk.CommandBuffer) {
	_ = vc.locks.SafeCall(CommandBufferManagement, func() error {
		vk.FreeCommandBuffers(vc.Device.LogicalDevice, vc.uploadPool, 1, []vk.CommandBuffer{cmd})
		return nil
	})
}

// onImageRelease registers fn to run whenever an image view is destroyed.
func (vc *VulkanContext) onImageRelease(fn func(view vk.ImageView)) {
	vc.addressMu.Lock()
	vc.onImageDie = append(vc.onImageDie, fn)
	vc.addressMu.Unlock()
}

func (vc *VulkanContext) releaseImage(view vk.ImageView) {
	vc.addressMu.RLock()
	hooks := vc.onImageDie
	vc.addressMu.RUnlock()
	for _, fn := range hooks {
		fn(view)
	}
}
