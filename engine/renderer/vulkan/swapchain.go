package vulkan

import (
	"math"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

// VulkanSwapchain renders into a ring of its own images. Present copies the
// current ring image into an image acquired from the surface swapchain, so
// an out of date surface only costs the frame being shown and never
// invalidates the ring.
type VulkanSwapchain struct {
	context *VulkanContext
	queue   *VulkanCommandQueue

	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	Images      []vk.Image
	Extent      vk.Extent2D
	vsync       bool

	buffers []*VulkanImage
	format  metadata.Format
	current uint32

	pool           vk.CommandPool
	blits          []vk.CommandBuffer
	blitFences     []vk.Fence
	imageAvailable []vk.Semaphore
	renderComplete []vk.Semaphore
}

var _ renderer.SwapChain = (*VulkanSwapchain)(nil)

func SwapchainCreate(context *VulkanContext, queue *VulkanCommandQueue, width, height, bufferCount uint32, format metadata.Format, vsync bool) (*VulkanSwapchain, error) {
	if bufferCount == 0 {
		return nil, errors.New("swapchain needs at least one buffer")
	}
	vs := &VulkanSwapchain{context: context, queue: queue, format: format, vsync: vsync}
	if err := vs.createSync(bufferCount); err != nil {
		vs.Destroy()
		return nil, err
	}
	if err := vs.createBuffers(width, height, bufferCount); err != nil {
		vs.Destroy()
		return nil, err
	}
	if err := vs.createSwapchain(width, height); err != nil {
		vs.Destroy()
		return nil, err
	}
	core.LogInfo("Swapchain created successfully.")
	return vs, nil
}

func (vs *VulkanSwapchain) createSync(count uint32) error {
	device := vs.context.Device.LogicalDevice
	err := vs.context.locks.SafeCall(CommandBufferManagement, func() error {
		return resultError("vkCreateCommandPool", vk.CreateCommandPool(device, &vk.CommandPoolCreateInfo{
			SType:            vk.StructureTypeCommandPoolCreateInfo,
			QueueFamilyIndex: vs.queue.family,
			Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		}, vs.context.Allocator, &vs.pool))
	})
	if err != nil {
		return err
	}

	vs.blits = make([]vk.CommandBuffer, count)
	if err := resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        vs.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	}, vs.blits)); err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		var fence vk.Fence
		if err := resultError("vkCreateFence", vk.CreateFence(device, &vk.FenceCreateInfo{
			SType: vk.StructureTypeFenceCreateInfo,
			Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
		}, vs.context.Allocator, &fence)); err != nil {
			return err
		}
		vs.blitFences = append(vs.blitFences, fence)

		for _, list := range []*[]vk.Semaphore{&vs.imageAvailable, &vs.renderComplete} {
			var semaphore vk.Semaphore
			if err := resultError("vkCreateSemaphore", vk.CreateSemaphore(device, &vk.SemaphoreCreateInfo{
				SType: vk.StructureTypeSemaphoreCreateInfo,
			}, vs.context.Allocator, &semaphore)); err != nil {
				return err
			}
			*list = append(*list, semaphore)
		}
	}
	return nil
}

func (vs *VulkanSwapchain) createBuffers(width, height, count uint32) error {
	usage := vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit
	buffers := make([]*VulkanImage, 0, count)
	for i := uint32(0); i < count; i++ {
		img, err := NewVulkanImage(vs.context, width, height, vs.format, usage)
		if err != nil {
			for _, b := range buffers {
				b.Destroy()
			}
			return errors.Wrapf(err, "presentation buffer %d", i)
		}
		buffers = append(buffers, img)
	}

	// Buffers start out ready for presentation.
	cmd, err := vs.context.beginSingleUse()
	if err != nil {
		return err
	}
	for _, b := range buffers {
		b.Transition(cmd, toImageLayout(metadata.ResourceStatePresent))
	}
	if err := vs.context.endSingleUse(cmd); err != nil {
		return err
	}
	vs.buffers = buffers
	vs.current = 0
	return nil
}

func (vs *VulkanSwapchain) choosePresentMode(support *VulkanSwapchainSupportInfo) vk.PresentMode {
	if vs.vsync {
		return vk.PresentModeFifo
	}
	presentMode := vk.PresentModeFifo
	for _, mode := range support.PresentModes {
		if mode == vk.PresentModeMailbox {
			return mode
		}
		if mode == vk.PresentModeImmediate {
			presentMode = mode
		}
	}
	return presentMode
}

func (vs *VulkanSwapchain) createSwapchain(width, height uint32) error {
	context := vs.context
	support := &context.Device.SwapchainSupport
	if err := DeviceQuerySwapchainSupport(context.Device.PhysicalDevice, context.Surface, support); err != nil {
		return err
	}
	if len(support.Formats) == 0 {
		return errors.New("surface reports no formats")
	}

	// Choose a swap surface format.
	vs.ImageFormat = support.Formats[0]
	for _, format := range support.Formats {
		// Preferred formats
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			vs.ImageFormat = format
			break
		}
	}

	// Swapchain extent
	extent := vk.Extent2D{Width: width, Height: height}
	if support.Capabilities.CurrentExtent.Width != math.MaxUint32 {
		extent = support.Capabilities.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	low := support.Capabilities.MinImageExtent
	high := support.Capabilities.MaxImageExtent
	extent.Width = core.Clamp(extent.Width, low.Width, high.Width)
	extent.Height = core.Clamp(extent.Height, low.Height, high.Height)
	if extent.Width == 0 || extent.Height == 0 {
		// Minimized; try again on the next present.
		vs.Extent = extent
		return nil
	}

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      vs.ImageFormat.Format,
		ImageColorSpace:  vs.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vs.choosePresentMode(support),
		Clipped:          vk.True,
		OldSwapchain:     vs.Handle,
	}
	// Setup the queue family indices
	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.GraphicsQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	}

	var handle vk.Swapchain
	err := context.locks.SafeCall(SwapchainManagement, func() error {
		return resultError("vkCreateSwapchain", vk.CreateSwapchain(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle))
	})
	if err != nil {
		return err
	}
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
	}
	vs.Handle = handle
	vs.Extent = extent

	// Images
	var count uint32
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(context.Device.LogicalDevice, vs.Handle, &count, nil)); err != nil {
		return err
	}
	vs.Images = make([]vk.Image, count)
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(context.Device.LogicalDevice, vs.Handle, &count, vs.Images)); err != nil {
		return err
	}
	core.LogDebug("surface swapchain %dx%d with %d images, present mode %d", extent.Width, extent.Height, count, createInfo.PresentMode)
	return nil
}

func (vs *VulkanSwapchain) recreate() error {
	if err := resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(vs.context.Device.LogicalDevice)); err != nil {
		return err
	}
	if len(vs.buffers) == 0 {
		return errors.New("swapchain has no buffers")
	}
	return vs.createSwapchain(vs.buffers[0].Width(), vs.buffers[0].Height())
}

func (vs *VulkanSwapchain) BufferCount() uint32 { return uint32(len(vs.buffers)) }

func (vs *VulkanSwapchain) CurrentBufferIndex() uint32 { return vs.current }

func (vs *VulkanSwapchain) Buffer(index uint32) renderer.Texture {
	if index >= uint32(len(vs.buffers)) {
		return nil
	}
	return vs.buffers[index]
}

func (vs *VulkanSwapchain) Format() metadata.Format { return vs.format }

func (vs *VulkanSwapchain) advance() {
	vs.current = (vs.current + 1) % uint32(len(vs.buffers))
}

// Present shows the current buffer. A surface that went out of date is
// recreated and the frame is dropped.
func (vs *VulkanSwapchain) Present(syncInterval uint32) error {
	defer vs.advance()

	device := vs.context.Device.LogicalDevice
	if (syncInterval > 0) != vs.vsync {
		vs.vsync = syncInterval > 0
		if err := vs.recreate(); err != nil {
			return err
		}
	}
	if vs.Handle == vk.NullSwapchain || vs.Extent.Width == 0 || vs.Extent.Height == 0 {
		return vs.recreate()
	}

	slot := vs.current
	if err := resultError("vkWaitForFences", vk.WaitForFences(device, 1, []vk.Fence{vs.blitFences[slot]}, vk.True, math.MaxUint64)); err != nil {
		return err
	}

	var index uint32
	res := vk.AcquireNextImage(device, vs.Handle, math.MaxUint64, vs.imageAvailable[slot], nullFence, &index)
	switch res {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		core.LogDebug("%s", core.ErrSwapchainBooting)
		return vs.recreate()
	default:
		return resultError("vkAcquireNextImage", res)
	}

	if err := resultError("vkResetFences", vk.ResetFences(device, 1, []vk.Fence{vs.blitFences[slot]})); err != nil {
		return err
	}
	if err := vs.recordBlit(slot, index); err != nil {
		return err
	}

	err := vs.context.locks.SafeQueueCall(vs.queue.family, func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(vs.queue.Handle, 1, []vk.SubmitInfo{{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   1,
			PWaitSemaphores:      []vk.Semaphore{vs.imageAvailable[slot]},
			PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageTransferBit)},
			CommandBufferCount:   1,
			PCommandBuffers:      []vk.CommandBuffer{vs.blits[slot]},
			SignalSemaphoreCount: 1,
			PSignalSemaphores:    []vk.Semaphore{vs.renderComplete[slot]},
		}}, vs.blitFences[slot]))
	})
	if err != nil {
		return err
	}

	presentFamily := uint32(vs.context.Device.PresentQueueIndex)
	err = vs.context.locks.SafeQueueCall(presentFamily, func() error {
		res = vk.QueuePresent(vs.context.Device.PresentQueue, &vk.PresentInfo{
			SType:              vk.StructureTypePresentInfo,
			WaitSemaphoreCount: 1,
			PWaitSemaphores:    []vk.Semaphore{vs.renderComplete[slot]},
			SwapchainCount:     1,
			PSwapchains:        []vk.Swapchain{vs.Handle},
			PImageIndices:      []uint32{index},
		})
		return nil
	})
	if err != nil {
		return err
	}
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		// Swapchain is out of date, suboptimal or a framebuffer resize has occurred.
		return vs.recreate()
	}
	return resultError("vkQueuePresent", res)
}

// recordBlit copies buffer slot into swapchain image index.
func (vs *VulkanSwapchain) recordBlit(slot, index uint32) error {
	cmd := vs.blits[slot]
	if err := resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})); err != nil {
		return err
	}

	src := vs.buffers[slot]
	// Rendering into src was submitted earlier on the same queue.
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit|vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		0, 1, []vk.MemoryBarrier{{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessTransferWriteBit),
			DstAccessMask: vk.AccessFlags(vk.AccessTransferReadBit),
		}}, 0, nil, 0, nil)
	src.Transition(cmd, vk.ImageLayoutTransferSrcOptimal)

	dst := &VulkanImage{
		Handle: vs.Images[index],
		Aspect: vk.ImageAspectColorBit,
		Layout: vk.ImageLayoutUndefined,
	}
	dst.Transition(cmd, vk.ImageLayoutTransferDstOptimal)

	subresource := vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LayerCount: 1,
	}
	vk.CmdBlitImage(cmd,
		src.Handle, vk.ImageLayoutTransferSrcOptimal,
		dst.Handle, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{{
			SrcSubresource: subresource,
			SrcOffsets:     [2]vk.Offset3D{{}, {X: int32(src.Width()), Y: int32(src.Height()), Z: 1}},
			DstSubresource: subresource,
			DstOffsets:     [2]vk.Offset3D{{}, {X: int32(vs.Extent.Width), Y: int32(vs.Extent.Height), Z: 1}},
		}}, vk.FilterLinear)

	dst.Transition(cmd, vk.ImageLayoutPresentSrc)
	return resultError("vkEndCommandBuffer", vk.EndCommandBuffer(cmd))
}

// Resize recreates the ring at the new size along with the surface swapchain.
func (vs *VulkanSwapchain) Resize(width, height uint32) error {
	if err := resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(vs.context.Device.LogicalDevice)); err != nil {
		return err
	}
	count := uint32(len(vs.buffers))
	for _, b := range vs.buffers {
		b.Destroy()
	}
	vs.buffers = nil
	if err := vs.createBuffers(width, height, count); err != nil {
		return err
	}
	return vs.createSwapchain(width, height)
}

func (vs *VulkanSwapchain) Destroy() {
	device := vs.context.Device.LogicalDevice
	if device == nil {
		return
	}
	vk.DeviceWaitIdle(device)
	for _, b := range vs.buffers {
		b.Destroy()
	}
	vs.buffers = nil
	for _, fence := range vs.blitFences {
		vk.DestroyFence(device, fence, vs.context.Allocator)
	}
	vs.blitFences = nil
	for _, semaphore := range append(vs.imageAvailable, vs.renderComplete...) {
		vk.DestroySemaphore(device, semaphore, vs.context.Allocator)
	}
	vs.imageAvailable, vs.renderComplete = nil, nil
	if vs.pool != vk.NullCommandPool {
		vk.DestroyCommandPool(device, vs.pool, vs.context.Allocator)
		vs.pool = vk.NullCommandPool
		vs.blits = nil
	}
	// Only the swapchain itself is destroyed; it owns its images.
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(device, vs.Handle, vs.context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
	vs.Images = nil
}
