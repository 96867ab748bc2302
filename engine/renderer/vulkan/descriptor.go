package vulkan

import (
	"sync"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

const (
	// Descriptor set 0 is the shader view table, set 1 the constant buffers.
	textureSet  = 0
	constantSet = 1

	constantBindings   = 3
	uniformSetsPerPool = 256
)

// constantBinding is the binding of each constant buffer inside set 1.
var constantBinding = map[metadata.BindingParam]uint32{
	metadata.BindingParamMaterial:  0,
	metadata.BindingParamTransform: 1,
	metadata.BindingParamLight:     2,
}

type uniformKey [constantBindings]metadata.GPUAddress

type uniformSet struct {
	pool vk.DescriptorPool
	set  vk.DescriptorSet
}

// VulkanDescriptors owns the set layouts shared by every pipeline, the
// texture sampler and the cache of constant buffer sets.
type VulkanDescriptors struct {
	context *VulkanContext
	Sampler vk.Sampler

	mu             sync.Mutex
	textureLayouts map[uint32]vk.DescriptorSetLayout
	uniformLayout  vk.DescriptorSetLayout
	pools          []vk.DescriptorPool
	sets           map[uniformKey]uniformSet
}

func NewVulkanDescriptors(context *VulkanContext) (*VulkanDescriptors, error) {
	d := &VulkanDescriptors{
		context:        context,
		textureLayouts: make(map[uint32]vk.DescriptorSetLayout),
		sets:           make(map[uniformKey]uniformSet),
	}
	device := context.Device.LogicalDevice

	if err := resultError("vkCreateSampler", vk.CreateSampler(device, &vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.True,
		MaxAnisotropy:           16,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
	}, context.Allocator, &d.Sampler)); err != nil {
		return nil, err
	}

	bindings := make([]vk.DescriptorSetLayoutBinding, constantBindings)
	for i := range bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
		}
	}
	if err := resultError("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, context.Allocator, &d.uniformLayout)); err != nil {
		d.Destroy()
		return nil, err
	}

	context.onBufferRelease(d.forget)
	return d, nil
}

// textureLayout returns the layout of a shader view table of size slots.
func (d *VulkanDescriptors) textureLayout(size uint32) (vk.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if layout, ok := d.textureLayouts[size]; ok {
		return layout, nil
	}
	var layout vk.DescriptorSetLayout
	err := d.context.locks.SafeCall(DescriptorManagement, func() error {
		return resultError("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.context.Device.LogicalDevice, &vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: 1,
			PBindings: []vk.DescriptorSetLayoutBinding{{
				Binding:         0,
				DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
				DescriptorCount: size,
				StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			}},
		}, d.context.Allocator, &layout))
	})
	if err != nil {
		return nil, err
	}
	d.textureLayouts[size] = layout
	return layout, nil
}

func (d *VulkanDescriptors) newUniformPool() (vk.DescriptorPool, error) {
	var pool vk.DescriptorPool
	err := d.context.locks.SafeCall(DescriptorManagement, func() error {
		return resultError("vkCreateDescriptorPool", vk.CreateDescriptorPool(d.context.Device.LogicalDevice, &vk.DescriptorPoolCreateInfo{
			SType:         vk.StructureTypeDescriptorPoolCreateInfo,
			Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
			MaxSets:       uniformSetsPerPool,
			PoolSizeCount: 1,
			PPoolSizes: []vk.DescriptorPoolSize{{
				Type:            vk.DescriptorTypeUniformBuffer,
				DescriptorCount: uniformSetsPerPool * constantBindings,
			}},
		}, d.context.Allocator, &pool))
	})
	if err != nil {
		return nil, err
	}
	d.pools = append(d.pools, pool)
	core.LogDebug("descriptor pool %d created for constant buffer sets", len(d.pools))
	return pool, nil
}

// constants returns a set pointing at the three constant buffers of key.
func (d *VulkanDescriptors) constants(key uniformKey) (vk.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if entry, ok := d.sets[key]; ok {
		return entry.set, nil
	}

	infos := make([]vk.DescriptorBufferInfo, constantBindings)
	for i, address := range key {
		b, offset, ok := d.context.resolve(address)
		if !ok {
			return nil, errors.Newf("constant buffer %d is bound to unknown address %#x", i, uint64(address))
		}
		infos[i] = vk.DescriptorBufferInfo{
			Buffer: b.Handle,
			Offset: vk.DeviceSize(offset),
			Range:  vk.DeviceSize(b.size - offset),
		}
	}

	entry, err := d.allocate()
	if err != nil {
		return nil, err
	}
	writes := make([]vk.WriteDescriptorSet, constantBindings)
	for i := range writes {
		writes[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          entry.set,
			DstBinding:      uint32(i),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo:     infos[i : i+1],
		}
	}
	vk.UpdateDescriptorSets(d.context.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	d.sets[key] = entry
	return entry.set, nil
}

// allocate takes a set from the newest pool, growing the pool list when
// the current one is exhausted. The caller holds mu.
func (d *VulkanDescriptors) allocate() (uniformSet, error) {
	try := func(pool vk.DescriptorPool) (vk.DescriptorSet, vk.Result) {
		var set vk.DescriptorSet
		res := vk.AllocateDescriptorSets(d.context.Device.LogicalDevice, &vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{d.uniformLayout},
		}, &set)
		return set, res
	}

	if n := len(d.pools); n > 0 {
		pool := d.pools[n-1]
		set, res := try(pool)
		if res == vk.Success {
			return uniformSet{pool: pool, set: set}, nil
		}
		if res != vk.ErrorOutOfPoolMemory && res != vk.ErrorFragmentedPool {
			return uniformSet{}, resultError("vkAllocateDescriptorSets", res)
		}
	}
	pool, err := d.newUniformPool()
	if err != nil {
		return uniformSet{}, err
	}
	set, res := try(pool)
	if err := resultError("vkAllocateDescriptorSets", res); err != nil {
		return uniformSet{}, err
	}
	return uniformSet{pool: pool, set: set}, nil
}

// forget frees every set that points into the buffer at address.
func (d *VulkanDescriptors) forget(address metadata.GPUAddress) {
	id := uint64(address) >> addressShift
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, entry := range d.sets {
		for _, a := range key {
			if uint64(a)>>addressShift == id {
				vk.FreeDescriptorSets(d.context.Device.LogicalDevice, entry.pool, 1, []vk.DescriptorSet{entry.set})
				delete(d.sets, key)
				break
			}
		}
	}
}

func (d *VulkanDescriptors) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	device := d.context.Device.LogicalDevice
	for _, pool := range d.pools {
		vk.DestroyDescriptorPool(device, pool, d.context.Allocator)
	}
	d.pools = nil
	clear(d.sets)
	for size, layout := range d.textureLayouts {
		vk.DestroyDescriptorSetLayout(device, layout, d.context.Allocator)
		delete(d.textureLayouts, size)
	}
	if d.uniformLayout != nil {
		vk.DestroyDescriptorSetLayout(device, d.uniformLayout, d.context.Allocator)
		d.uniformLayout = nil
	}
	if d.Sampler != nil {
		vk.DestroySampler(device, d.Sampler, d.context.Allocator)
		d.Sampler = nil
	}
}

// VulkanDescriptorHeap is a table of views. Render target and depth heaps
// only remember the images; a shader resource heap is also a descriptor
// set of combined image samplers indexed by slot.
type VulkanDescriptorHeap struct {
	descriptors *VulkanDescriptors
	heapType    metadata.HeapType
	views       []*VulkanImage

	pool vk.DescriptorPool
	Set  vk.DescriptorSet
	// Unset slots sample this image.
	placeholder *VulkanImage
}

var _ renderer.DescriptorHeap = (*VulkanDescriptorHeap)(nil)

func NewVulkanDescriptorHeap(descriptors *VulkanDescriptors, heapType metadata.HeapType, capacity uint32) (*VulkanDescriptorHeap, error) {
	if capacity == 0 {
		return nil, errors.Newf("%s heap needs at least one slot", heapType)
	}
	h := &VulkanDescriptorHeap{
		descriptors: descriptors,
		heapType:    heapType,
		views:       make([]*VulkanImage, capacity),
	}
	if heapType != metadata.HeapTypeShaderResource {
		return h, nil
	}

	context := descriptors.context
	layout, err := descriptors.textureLayout(capacity)
	if err != nil {
		return nil, err
	}
	err = context.locks.SafeCall(DescriptorManagement, func() error {
		return resultError("vkCreateDescriptorPool", vk.CreateDescriptorPool(context.Device.LogicalDevice, &vk.DescriptorPoolCreateInfo{
			SType:         vk.StructureTypeDescriptorPoolCreateInfo,
			MaxSets:       1,
			PoolSizeCount: 1,
			PPoolSizes: []vk.DescriptorPoolSize{{
				Type:            vk.DescriptorTypeCombinedImageSampler,
				DescriptorCount: capacity,
			}},
		}, context.Allocator, &h.pool))
	})
	if err != nil {
		return nil, err
	}
	if err := resultError("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(context.Device.LogicalDevice, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     h.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}, &h.Set)); err != nil {
		h.Destroy()
		return nil, err
	}

	if h.placeholder, err = NewVulkanImage(context, 1, 1, metadata.FormatRGBA8Unorm,
		vk.ImageUsageSampledBit|vk.ImageUsageTransferDstBit); err != nil {
		h.Destroy()
		return nil, err
	}
	if err := h.placeholder.Upload([]byte{255, 0, 255, 255}); err != nil {
		h.Destroy()
		return nil, err
	}
	for i := uint32(0); i < capacity; i++ {
		h.write(i, h.placeholder)
	}
	context.onImageRelease(h.forget)
	return h, nil
}

func (h *VulkanDescriptorHeap) Type() metadata.HeapType { return h.heapType }

func (h *VulkanDescriptorHeap) Capacity() uint32 { return uint32(len(h.views)) }

func (h *VulkanDescriptorHeap) setView(index uint32, img *VulkanImage) error {
	if index >= uint32(len(h.views)) {
		return errors.Mark(errors.Newf("%s view %d out of %d slots", h.heapType, index, len(h.views)), core.ErrSlotOverflow)
	}
	h.views[index] = img
	if h.heapType == metadata.HeapTypeShaderResource {
		h.write(index, img)
	}
	return nil
}

func (h *VulkanDescriptorHeap) view(index uint32) (*VulkanImage, bool) {
	if index >= uint32(len(h.views)) || h.views[index] == nil {
		return nil, false
	}
	return h.views[index], true
}

func (h *VulkanDescriptorHeap) write(index uint32, img *VulkanImage) {
	vk.UpdateDescriptorSets(h.descriptors.context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          h.Set,
		DstBinding:      0,
		DstArrayElement: index,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo: []vk.DescriptorImageInfo{{
			Sampler:     h.descriptors.Sampler,
			ImageView:   img.View,
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}},
	}}, 0, nil)
}

// forget points every slot showing view back at the placeholder.
func (h *VulkanDescriptorHeap) forget(view vk.ImageView) {
	if h.placeholder == nil || view == h.placeholder.View {
		return
	}
	for i, img := range h.views {
		if img != nil && img.View == view {
			h.views[i] = nil
			h.write(uint32(i), h.placeholder)
		}
	}
}

func (h *VulkanDescriptorHeap) Destroy() {
	context := h.descriptors.context
	if h.placeholder != nil {
		h.placeholder.Destroy()
		h.placeholder = nil
	}
	if h.pool != nil {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, h.pool, context.Allocator)
		h.pool = nil
		h.Set = nil
	}
	clear(h.views)
}
