package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Width       uint32
	Height      uint32
	Renderpass  *VulkanRenderpass
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, width, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	outFramebuffer := &VulkanFramebuffer{
		Attachments: append([]vk.ImageView(nil), attachments...),
		Width:       width,
		Height:      height,
		Renderpass:  renderpass,
	}

	err := context.locks.SafeCall(RenderpassManagement, func() error {
		return resultError("vkCreateFramebuffer", vk.CreateFramebuffer(context.Device.LogicalDevice, &vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      renderpass.Handle,
			AttachmentCount: uint32(len(outFramebuffer.Attachments)),
			PAttachments:    outFramebuffer.Attachments,
			Width:           width,
			Height:          height,
			Layers:          1,
		}, context.Allocator, &outFramebuffer.Handle))
	})
	if err != nil {
		return nil, err
	}
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	if vfb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
		vfb.Handle = vk.NullFramebuffer
	}
	vfb.Attachments = nil
	vfb.Renderpass = nil
}

type framebufferKey struct {
	color vk.ImageView
	depth vk.ImageView
}

// framebufferCache keeps a framebuffer per bound target pair until either
// view is destroyed.
type framebufferCache struct {
	context *VulkanContext
	mu      sync.Mutex
	entries map[framebufferKey]*VulkanFramebuffer
}

func newFramebufferCache(context *VulkanContext) *framebufferCache {
	c := &framebufferCache{context: context, entries: make(map[framebufferKey]*VulkanFramebuffer)}
	context.onImageRelease(c.forget)
	return c
}

func (c *framebufferCache) get(pass *VulkanRenderpass, color, depth *VulkanImage) (*VulkanFramebuffer, error) {
	key := framebufferKey{color: color.View}
	attachments := []vk.ImageView{color.View}
	if depth != nil {
		key.depth = depth.View
		attachments = append(attachments, depth.View)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if fb, ok := c.entries[key]; ok {
		return fb, nil
	}
	fb, err := FramebufferCreate(c.context, pass, color.Width(), color.Height(), attachments)
	if err != nil {
		return nil, err
	}
	c.entries[key] = fb
	return fb, nil
}

func (c *framebufferCache) forget(view vk.ImageView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, fb := range c.entries {
		if key.color == view || key.depth == view {
			fb.Destroy(c.context)
			delete(c.entries, key)
		}
	}
}

func (c *framebufferCache) destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, fb := range c.entries {
		fb.Destroy(c.context)
		delete(c.entries, key)
	}
}
