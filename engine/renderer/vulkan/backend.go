package vulkan

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Window is the surface provider, satisfied by *glfw.Window.
type Window interface {
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
	GetRequiredInstanceExtensions() []string
}

type Options struct {
	AppName    string
	Validation bool
	VSync      bool
}

// VulkanBackend implements renderer.Device on top of Vulkan 1.2.
type VulkanBackend struct {
	context      *VulkanContext
	descriptors  *VulkanDescriptors
	passes       *renderpassCache
	framebuffers *framebufferCache
	options      Options

	mu sync.Mutex
	// Render target and depth handles name a slot, not a heap. They resolve
	// against the most recent heap of their type.
	heaps [3]*VulkanDescriptorHeap
}

var _ renderer.Device = (*VulkanBackend)(nil)

func NewDevice(window Window, options Options) (*VulkanBackend, error) {
	if window == nil {
		return nil, core.NilDependency("window")
	}
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, core.CreationFailed(errors.New("GetInstanceProcAddress is nil"), "vulkan loader")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, core.CreationFailed(err, "vulkan loader")
	}

	vb := &VulkanBackend{context: newVulkanContext(), options: options}
	if err := vb.createInstance(window); err != nil {
		vb.Destroy()
		return nil, core.CreationFailed(err, "vulkan instance")
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateWindowSurface(vb.context.Instance, nil)
	if err != nil {
		vb.Destroy()
		return nil, core.CreationFailed(err, "vulkan surface")
	}
	vb.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(vb.context); err != nil {
		vb.Destroy()
		return nil, core.CreationFailed(err, "vulkan device")
	}
	if vb.descriptors, err = NewVulkanDescriptors(vb.context); err != nil {
		vb.Destroy()
		return nil, core.CreationFailed(err, "vulkan descriptors")
	}
	vb.passes = newRenderpassCache(vb.context)
	vb.framebuffers = newFramebufferCache(vb.context)

	core.LogInfo("Vulkan renderer initialized successfully.")
	return vb, nil
}

func (vb *VulkanBackend) createInstance(window Window) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(vb.options.AppName),
		PEngineName:        VulkanSafeString("Prism Engine"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, window.GetRequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if vb.options.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	core.LogDebug("Required extensions: %v", requiredExtensions)
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers should only be enabled on non-release builds.
	var layers []string
	if vb.options.Validation {
		layers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkLayers(layers); err != nil {
			return err
		}
		core.LogInfo("All required validation layers are present.")
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := resultError("vkCreateInstance", vk.CreateInstance(&createInfo, vb.context.Allocator, &vb.context.Instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(vb.context.Instance); err != nil {
		return errors.Wrap(err, "load instance functions")
	}
	core.LogInfo("Vulkan Instance created.")

	if vb.options.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		var dbg vk.DebugReportCallback
		if err := resultError("vkCreateDebugReportCallback", vk.CreateDebugReportCallback(vb.context.Instance, &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}, nil, &dbg)); err != nil {
			return err
		}
		vb.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func checkLayers(required []string) error {
	var count uint32
	if err := resultError("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := resultError("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return err
	}
	for _, name := range required {
		found := false
		for i := range available {
			available[i].Deref()
			if cString(available[i].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			return errors.Newf("required validation layer is missing: %s", name)
		}
	}
	return nil
}

func (vb *VulkanBackend) viewAt(handle metadata.DescriptorHandle) (*VulkanImage, bool) {
	if int(handle.Heap) >= len(vb.heaps) {
		return nil, false
	}
	vb.mu.Lock()
	heap := vb.heaps[handle.Heap]
	vb.mu.Unlock()
	if heap == nil {
		return nil, false
	}
	return heap.view(handle.Index)
}

func (vb *VulkanBackend) CreateCommandQueue() (renderer.CommandQueue, error) {
	return &VulkanCommandQueue{
		context: vb.context,
		Handle:  vb.context.Device.GraphicsQueue,
		family:  uint32(vb.context.Device.GraphicsQueueIndex),
	}, nil
}

func (vb *VulkanBackend) CreateCommandAllocator() (renderer.CommandAllocator, error) {
	return NewCommandAllocator(vb.context)
}

func (vb *VulkanBackend) CreateCommandList(allocator renderer.CommandAllocator) (renderer.CommandList, error) {
	a, ok := allocator.(*VulkanCommandAllocator)
	if !ok || a == nil {
		return nil, core.NilDependency("vulkan command allocator")
	}
	return NewCommandList(vb, a)
}

func (vb *VulkanBackend) CreateSwapChain(queue renderer.CommandQueue, width, height, bufferCount uint32, format metadata.Format) (renderer.SwapChain, error) {
	q, ok := queue.(*VulkanCommandQueue)
	if !ok || q == nil {
		return nil, core.NilDependency("vulkan command queue")
	}
	return SwapchainCreate(vb.context, q, width, height, bufferCount, format, vb.options.VSync)
}

func (vb *VulkanBackend) CreateFence(initialValue uint64) (renderer.Fence, error) {
	return NewFence(vb.context, initialValue), nil
}

func (vb *VulkanBackend) CreateDescriptorHeap(heapType metadata.HeapType, capacity uint32) (renderer.DescriptorHeap, error) {
	if int(heapType) >= len(vb.heaps) {
		return nil, errors.Newf("unknown heap type %s", heapType)
	}
	h, err := NewVulkanDescriptorHeap(vb.descriptors, heapType, capacity)
	if err != nil {
		return nil, err
	}
	vb.mu.Lock()
	vb.heaps[heapType] = h
	vb.mu.Unlock()
	return h, nil
}

func (vb *VulkanBackend) CreateUploadBuffer(size uint64) (renderer.Buffer, error) {
	return NewVulkanBuffer(vb.context, size, bufferUsage)
}

func (vb *VulkanBackend) CreateDepthTexture(width, height uint32, format metadata.Format) (renderer.Texture, error) {
	if !isDepthFormat(format) {
		return nil, errors.Newf("%s is not a depth format", format)
	}
	img, err := NewVulkanImage(vb.context, width, height, format, vk.ImageUsageDepthStencilAttachmentBit)
	if err != nil {
		return nil, err
	}
	cmd, err := vb.context.beginSingleUse()
	if err != nil {
		img.Destroy()
		return nil, err
	}
	img.Transition(cmd, toImageLayout(metadata.ResourceStateDepthWrite))
	if err := vb.context.endSingleUse(cmd); err != nil {
		img.Destroy()
		return nil, err
	}
	return img, nil
}

func (vb *VulkanBackend) CreateTexture(width, height uint32, format metadata.Format, pixels []byte) (renderer.Texture, error) {
	img, err := NewVulkanImage(vb.context, width, height, format, vk.ImageUsageSampledBit|vk.ImageUsageTransferDstBit)
	if err != nil {
		return nil, err
	}
	if err := img.Upload(pixels); err != nil {
		img.Destroy()
		return nil, err
	}
	return img, nil
}

func (vb *VulkanBackend) WriteTexture(texture renderer.Texture, pixels []byte) error {
	img, ok := texture.(*VulkanImage)
	if !ok || img == nil {
		return core.NilDependency("vulkan texture")
	}
	return img.Upload(pixels)
}

func (vb *VulkanBackend) createView(texture renderer.Texture, heap renderer.DescriptorHeap, index uint32, heapType metadata.HeapType) error {
	img, ok := texture.(*VulkanImage)
	if !ok || img == nil {
		return core.NilDependency("vulkan texture")
	}
	h, ok := heap.(*VulkanDescriptorHeap)
	if !ok || h == nil {
		return core.NilDependency("vulkan descriptor heap")
	}
	if h.heapType != heapType {
		return errors.Newf("%s view placed in a %s heap", heapType, h.heapType)
	}
	return h.setView(index, img)
}

func (vb *VulkanBackend) CreateRenderTargetView(texture renderer.Texture, heap renderer.DescriptorHeap, index uint32) error {
	return vb.createView(texture, heap, index, metadata.HeapTypeRenderTarget)
}

func (vb *VulkanBackend) CreateDepthStencilView(texture renderer.Texture, heap renderer.DescriptorHeap, index uint32) error {
	return vb.createView(texture, heap, index, metadata.HeapTypeDepthStencil)
}

func (vb *VulkanBackend) CreateShaderResourceView(texture renderer.Texture, heap renderer.DescriptorHeap, index uint32) error {
	return vb.createView(texture, heap, index, metadata.HeapTypeShaderResource)
}

func (vb *VulkanBackend) CreateBindingLayout(desc metadata.BindingLayoutDesc) (renderer.BindingLayout, error) {
	return NewBindingLayout(vb.context, vb.descriptors, desc)
}

func (vb *VulkanBackend) CreatePipelineState(layout renderer.BindingLayout, desc metadata.PipelineStateDesc) (renderer.PipelineState, error) {
	l, ok := layout.(*VulkanBindingLayout)
	if !ok || l == nil {
		return nil, core.NilDependency("vulkan binding layout")
	}
	return NewGraphicsPipeline(vb.context, vb.passes, l, desc)
}

func (vb *VulkanBackend) WaitIdle() error {
	if vb.context.Device.LogicalDevice == nil {
		return nil
	}
	return resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(vb.context.Device.LogicalDevice))
}

// Destroy releases the backend objects in the opposite order of creation.
// Objects handed out to callers must be destroyed before.
func (vb *VulkanBackend) Destroy() {
	context := vb.context
	if context.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(context.Device.LogicalDevice)
	}
	if vb.framebuffers != nil {
		vb.framebuffers.destroy()
		vb.framebuffers = nil
	}
	if vb.passes != nil {
		vb.passes.destroy()
		vb.passes = nil
	}
	if vb.descriptors != nil {
		vb.descriptors.Destroy()
		vb.descriptors = nil
	}
	if context.Device.LogicalDevice != nil {
		DeviceDestroy(context)
	}
	if context.Surface != vk.NullSurface {
		vk.DestroySurface(context.Instance, context.Surface, context.Allocator)
		context.Surface = vk.NullSurface
	}
	if context.debugMessenger != nil {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(context.Instance, context.debugMessenger, context.Allocator)
		context.debugMessenger = nil
	}
	if context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(context.Instance, context.Allocator)
		context.Instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
