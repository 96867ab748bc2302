package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"
)

type renderpassKey struct {
	color vk.Format
	depth vk.Format
}

// VulkanRenderpass draws into one color target and an optional depth
// target. Attachments are loaded and stored; clears are recorded inside
// the pass so the targets stay in their attachment layouts throughout.
type VulkanRenderpass struct {
	Handle   vk.RenderPass
	HasDepth bool
}

func RenderpassCreate(context *VulkanContext, colorFormat, depthFormat vk.Format) (*VulkanRenderpass, error) {
	attachments := []vk.AttachmentDescription{{
		Format:         colorFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpLoad,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}}

	// Main subpass
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
	}

	// Depth attachment, if there is one
	hasDepth := depthFormat != vk.FormatUndefined
	if hasDepth {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpLoad,
			StencilStoreOp: vk.AttachmentStoreOpStore,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass: vk.SubpassExternal,
		DstSubpass: 0,
		SrcStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit |
			vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit),
		DstStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit |
			vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit),
		SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit |
			vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	var handle vk.RenderPass
	err := context.locks.SafeCall(RenderpassManagement, func() error {
		return resultError("vkCreateRenderPass", vk.CreateRenderPass(context.Device.LogicalDevice, &vk.RenderPassCreateInfo{
			SType:           vk.StructureTypeRenderPassCreateInfo,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
			SubpassCount:    1,
			PSubpasses:      []vk.SubpassDescription{subpass},
			DependencyCount: 1,
			PDependencies:   []vk.SubpassDependency{dependency},
		}, context.Allocator, &handle))
	})
	if err != nil {
		return nil, err
	}
	return &VulkanRenderpass{Handle: handle, HasDepth: hasDepth}, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(context *VulkanContext) {
	if vr.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = vk.NullRenderPass
	}
}

func (vr *VulkanRenderpass) RenderpassBegin(cmd vk.CommandBuffer, framebuffer *VulkanFramebuffer) {
	vk.CmdBeginRenderPass(cmd, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: framebuffer.Handle,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{
				Width:  framebuffer.Width,
				Height: framebuffer.Height,
			},
		},
	}, vk.SubpassContentsInline)
}

func (vr *VulkanRenderpass) RenderpassEnd(cmd vk.CommandBuffer) {
	vk.CmdEndRenderPass(cmd)
}

// renderpassCache hands out one render pass per attachment format pair.
// Pipelines and framebuffers built for the same pair are compatible.
type renderpassCache struct {
	context *VulkanContext
	mu      sync.Mutex
	passes  map[renderpassKey]*VulkanRenderpass
}

func newRenderpassCache(context *VulkanContext) *renderpassCache {
	return &renderpassCache{context: context, passes: make(map[renderpassKey]*VulkanRenderpass)}
}

func (c *renderpassCache) get(color, depth vk.Format) (*VulkanRenderpass, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := renderpassKey{color: color, depth: depth}
	if pass, ok := c.passes[key]; ok {
		return pass, nil
	}
	pass, err := RenderpassCreate(c.context, color, depth)
	if err != nil {
		return nil, err
	}
	c.passes[key] = pass
	return pass, nil
}

func (c *renderpassCache) destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, pass := range c.passes {
		pass.RenderpassDestroy(c.context)
		delete(c.passes, key)
	}
}
