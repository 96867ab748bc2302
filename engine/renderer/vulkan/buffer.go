package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// VulkanBuffer is host-visible, coherent memory mapped for its whole life.
// It can back vertices, indices and uniforms alike.
type VulkanBuffer struct {
	context *VulkanContext
	Handle  vk.Buffer
	Memory  vk.DeviceMemory
	size    uint64
	address metadata.GPUAddress
	mapped  []byte
}

var _ renderer.Buffer = (*VulkanBuffer)(nil)

const bufferUsage = vk.BufferUsageVertexBufferBit |
	vk.BufferUsageIndexBufferBit |
	vk.BufferUsageUniformBufferBit |
	vk.BufferUsageTransferSrcBit

func NewVulkanBuffer(context *VulkanContext, size uint64, usage vk.BufferUsageFlagBits) (*VulkanBuffer, error) {
	if size == 0 {
		return nil, errors.New("buffer size must be positive")
	}
	device := context.Device.LogicalDevice
	b := &VulkanBuffer{context: context, size: size}

	err := context.locks.SafeCall(BufferManagement, func() error {
		return resultError("vkCreateBuffer", vk.CreateBuffer(device, &vk.BufferCreateInfo{
			SType:       vk.StructureTypeBufferCreateInfo,
			Size:        vk.DeviceSize(size),
			Usage:       vk.BufferUsageFlags(usage),
			SharingMode: vk.SharingModeExclusive,
		}, context.Allocator, &b.Handle))
	})
	if err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, b.Handle, &requirements)
	requirements.Deref()

	memoryType, err := context.FindMemoryIndex(requirements.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		b.Destroy()
		return nil, err
	}
	if err := resultError("vkAllocateMemory", vk.AllocateMemory(device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	}, context.Allocator, &b.Memory)); err != nil {
		b.Destroy()
		return nil, err
	}
	if err := resultError("vkBindBufferMemory", vk.BindBufferMemory(device, b.Handle, b.Memory, 0)); err != nil {
		b.Destroy()
		return nil, err
	}

	var ptr unsafe.Pointer
	if err := resultError("vkMapMemory", vk.MapMemory(device, b.Memory, 0, vk.DeviceSize(size), 0, &ptr)); err != nil {
		b.Destroy()
		return nil, err
	}
	b.mapped = byteView(ptr, size)
	b.address = context.registerBuffer(b)
	return b, nil
}

func (b *VulkanBuffer) Size() uint64 { return b.size }

func (b *VulkanBuffer) Address() metadata.GPUAddress { return b.address }

func (b *VulkanBuffer) Mapped() []byte { return b.mapped }

func (b *VulkanBuffer) Destroy() {
	if b.context == nil {
		return
	}
	device := b.context.Device.LogicalDevice
	if b.address != 0 {
		b.context.releaseBuffer(b.address)
		b.address = 0
	}
	if b.mapped != nil {
		vk.UnmapMemory(device, b.Memory)
		b.mapped = nil
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, b.Memory, b.context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(device, b.Handle, b.context.Allocator)
		b.Handle = vk.NullBuffer
	}
}
