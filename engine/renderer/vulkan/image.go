package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type VulkanImage struct {
	context *VulkanContext
	Handle  vk.Image
	Memory  vk.DeviceMemory
	View    vk.ImageView
	width   uint32
	height  uint32
	Aspect  vk.ImageAspectFlagBits

	format   metadata.Format
	vkFormat vk.Format
	// Layout is the layout the image is in once every recorded command ran.
	Layout vk.ImageLayout
}

var _ renderer.Texture = (*VulkanImage)(nil)

func toVulkanFormat(format metadata.Format) vk.Format {
	switch format {
	case metadata.FormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case metadata.FormatBGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case metadata.FormatD32Float:
		return vk.FormatD32Sfloat
	case metadata.FormatD24UnormS8Uint:
		return vk.FormatD24UnormS8Uint
	case metadata.FormatR32G32Float:
		return vk.FormatR32g32Sfloat
	case metadata.FormatR32G32B32Float:
		return vk.FormatR32g32b32Sfloat
	case metadata.FormatR32G32B32A32Float:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.FormatR32Uint:
		return vk.FormatR32Uint
	case metadata.FormatR16Uint:
		return vk.FormatR16Uint
	}
	return vk.FormatUndefined
}

func fromVulkanFormat(format vk.Format) metadata.Format {
	switch format {
	case vk.FormatR8g8b8a8Unorm, vk.FormatR8g8b8a8Srgb:
		return metadata.FormatRGBA8Unorm
	case vk.FormatB8g8r8a8Unorm, vk.FormatB8g8r8a8Srgb:
		return metadata.FormatBGRA8Unorm
	case vk.FormatD32Sfloat:
		return metadata.FormatD32Float
	case vk.FormatD24UnormS8Uint:
		return metadata.FormatD24UnormS8Uint
	}
	return metadata.FormatUnknown
}

func isDepthFormat(format metadata.Format) bool {
	return format == metadata.FormatD32Float || format == metadata.FormatD24UnormS8Uint
}

func toImageLayout(state metadata.ResourceState) vk.ImageLayout {
	switch state {
	case metadata.ResourceStatePresent:
		// Buffers are blitted into the swapchain image when presented.
		return vk.ImageLayoutTransferSrcOptimal
	case metadata.ResourceStateRenderTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case metadata.ResourceStateDepthWrite:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case metadata.ResourceStateShaderResource:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case metadata.ResourceStateCopyDest:
		return vk.ImageLayoutTransferDstOptimal
	}
	return vk.ImageLayoutGeneral
}

// layoutAccess returns the accesses and stages that touch an image in layout.
func layoutAccess(layout vk.ImageLayout) (vk.AccessFlagBits, vk.PipelineStageFlagBits) {
	switch layout {
	case vk.ImageLayoutUndefined:
		return 0, vk.PipelineStageTopOfPipeBit
	case vk.ImageLayoutTransferSrcOptimal:
		return vk.AccessTransferReadBit, vk.PipelineStageTransferBit
	case vk.ImageLayoutTransferDstOptimal:
		return vk.AccessTransferWriteBit, vk.PipelineStageTransferBit
	case vk.ImageLayoutColorAttachmentOptimal:
		return vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit, vk.PipelineStageColorAttachmentOutputBit
	case vk.ImageLayoutDepthStencilAttachmentOptimal:
		return vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit,
			vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit
	case vk.ImageLayoutShaderReadOnlyOptimal:
		return vk.AccessShaderReadBit, vk.PipelineStageFragmentShaderBit
	case vk.ImageLayoutPresentSrc:
		return 0, vk.PipelineStageBottomOfPipeBit
	}
	return vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit, vk.PipelineStageAllCommandsBit
}

func NewVulkanImage(context *VulkanContext, width, height uint32, format metadata.Format, usage vk.ImageUsageFlagBits) (*VulkanImage, error) {
	vkFormat := toVulkanFormat(format)
	if vkFormat == vk.FormatUndefined {
		return nil, errors.Newf("unsupported image format %s", format)
	}
	if width == 0 || height == 0 {
		return nil, errors.Newf("image size %dx%d is empty", width, height)
	}
	aspect := vk.ImageAspectColorBit
	if isDepthFormat(format) {
		aspect = vk.ImageAspectDepthBit
		if format == metadata.FormatD24UnormS8Uint {
			aspect |= vk.ImageAspectStencilBit
		}
	}

	device := context.Device.LogicalDevice
	img := &VulkanImage{
		context:  context,
		width:    width,
		height:   height,
		Aspect:   aspect,
		format:   format,
		vkFormat: vkFormat,
		Layout:   vk.ImageLayoutUndefined,
	}

	err := context.locks.SafeCall(ImageManagement, func() error {
		return resultError("vkCreateImage", vk.CreateImage(device, &vk.ImageCreateInfo{
			SType:     vk.StructureTypeImageCreateInfo,
			ImageType: vk.ImageType2d,
			Format:    vkFormat,
			Extent: vk.Extent3D{
				Width:  width,
				Height: height,
				Depth:  1,
			},
			MipLevels:     1,
			ArrayLayers:   1,
			Samples:       vk.SampleCount1Bit,
			Tiling:        vk.ImageTilingOptimal,
			Usage:         vk.ImageUsageFlags(usage),
			SharingMode:   vk.SharingModeExclusive,
			InitialLayout: vk.ImageLayoutUndefined,
		}, context.Allocator, &img.Handle))
	})
	if err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, img.Handle, &requirements)
	requirements.Deref()

	memoryType, err := context.FindMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		img.Destroy()
		return nil, err
	}
	if err := resultError("vkAllocateMemory", vk.AllocateMemory(device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	}, context.Allocator, &img.Memory)); err != nil {
		img.Destroy()
		return nil, err
	}
	if err := resultError("vkBindImageMemory", vk.BindImageMemory(device, img.Handle, img.Memory, 0)); err != nil {
		img.Destroy()
		return nil, err
	}

	if err := resultError("vkCreateImageView", vk.CreateImageView(device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: vk.ImageViewType2d,
		Format:   vkFormat,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}, context.Allocator, &img.View)); err != nil {
		img.Destroy()
		return nil, err
	}
	return img, nil
}

func (img *VulkanImage) Width() uint32 { return img.width }

func (img *VulkanImage) Height() uint32 { return img.height }

func (img *VulkanImage) Format() metadata.Format { return img.format }

// Transition records a layout change into cmd and remembers the new layout.
func (img *VulkanImage) Transition(cmd vk.CommandBuffer, newLayout vk.ImageLayout) {
	if img.Layout == newLayout {
		return
	}
	srcAccess, srcStage := layoutAccess(img.Layout)
	dstAccess, dstStage := layoutAccess(newLayout)
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(srcStage),
		vk.PipelineStageFlags(dstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(srcAccess),
			DstAccessMask:       vk.AccessFlags(dstAccess),
			OldLayout:           img.Layout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.Handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(img.Aspect),
				LevelCount: 1,
				LayerCount: 1,
			},
		}})
	img.Layout = newLayout
}

// Upload copies pixels into the image through a staging buffer and leaves
// it ready for sampling. It blocks until the copy is done.
func (img *VulkanImage) Upload(pixels []byte) error {
	expected := uint64(img.width) * uint64(img.height) * 4
	if uint64(len(pixels)) != expected {
		return errors.Newf("texture of %dx%d needs %d bytes, got %d", img.width, img.height, expected, len(pixels))
	}

	staging, err := NewVulkanBuffer(img.context, expected, vk.BufferUsageTransferSrcBit)
	if err != nil {
		return err
	}
	defer staging.Destroy()
	copy(staging.Mapped(), pixels)

	cmd, err := img.context.beginSingleUse()
	if err != nil {
		return err
	}
	img.Transition(cmd, vk.ImageLayoutTransferDstOptimal)
	vk.CmdCopyBufferToImage(cmd, staging.Handle, img.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{
			Width:  img.width,
			Height: img.height,
			Depth:  1,
		},
	}})
	img.Transition(cmd, vk.ImageLayoutShaderReadOnlyOptimal)
	return img.context.endSingleUse(cmd)
}

func (img *VulkanImage) Destroy() {
	if img.context == nil {
		return
	}
	device := img.context.Device.LogicalDevice
	if img.View != vk.NullImageView {
		img.context.releaseImage(img.View)
		vk.DestroyImageView(device, img.View, img.context.Allocator)
		img.View = vk.NullImageView
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, img.Memory, img.context.Allocator)
		img.Memory = vk.NullDeviceMemory
	}
	if img.Handle != vk.NullImage {
		vk.DestroyImage(device, img.Handle, img.context.Allocator)
		img.Handle = vk.NullImage
	}
}
