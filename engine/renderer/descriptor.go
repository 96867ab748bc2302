package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Slot is one reserved entry of a resource-view table.
type Slot struct {
	Index  uint32
	Handle metadata.DescriptorHandle
}

// ResourceViewAllocator hands out slots of a fixed-capacity table.
// Slots are never returned: the table is an arena for the life of the process.
type ResourceViewAllocator struct {
	name     string
	heap     DescriptorHeap
	capacity uint32
	nextFree uint32
}

// NewResourceViewAllocator creates the backing table on device.
func NewResourceViewAllocator(device Device, name string, heapType metadata.HeapType, capacity uint32) (*ResourceViewAllocator, error) {
	if device == nil {
		return nil, core.NilDependency("device")
	}
	heap, err := device.CreateDescriptorHeap(heapType, capacity)
	if err != nil {
		return nil, core.CreationFailed(err, "create %s view table %q capacity %d", heapType, name, capacity)
	}
	core.LogDebug("created %s view table %q with %d slots", heapType, name, capacity)
	return &ResourceViewAllocator{
		name:     name,
		heap:     heap,
		capacity: capacity,
	}, nil
}

// Allocate reserves the next free slot.
func (a *ResourceViewAllocator) Allocate() (Slot, error) {
	if a.nextFree >= a.capacity {
		return Slot{}, a.overflow(a.nextFree)
	}
	s := a.slot(a.nextFree)
	a.nextFree++
	return s, nil
}

// AllocateAt reserves a hard-coded index. Slots below the next free index
// stay reachable this way, which is how fixed layouts such as the two
// presentation buffers are rewritten on resize.
func (a *ResourceViewAllocator) AllocateAt(index uint32) (Slot, error) {
	if index >= a.capacity {
		return Slot{}, a.overflow(index)
	}
	if index >= a.nextFree {
		a.nextFree = index + 1
	}
	return a.slot(index), nil
}

func (a *ResourceViewAllocator) slot(index uint32) Slot {
	return Slot{
		Index:  index,
		Handle: metadata.DescriptorHandle{Heap: a.heap.Type(), Index: index},
	}
}

func (a *ResourceViewAllocator) overflow(requested uint32) error {
	return errors.Wrapf(core.ErrSlotOverflow, "%s table %q: capacity %d, requested index %d",
		a.heap.Type(), a.name, a.capacity, requested)
}

func (a *ResourceViewAllocator) Heap() DescriptorHeap {
	return a.heap
}

func (a *ResourceViewAllocator) Capacity() uint32 {
	return a.capacity
}

// Used is the number of slots handed out so far.
func (a *ResourceViewAllocator) Used() uint32 {
	return a.nextFree
}

func (a *ResourceViewAllocator) Destroy() {
	if a.heap != nil {
		a.heap.Destroy()
		a.heap = nil
	}
}
