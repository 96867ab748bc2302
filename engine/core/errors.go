package core

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrSwapchainBooting is returned while the swap chain is being recreated.
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	// ErrDeviceCreation covers every device or GPU resource creation failure.
	ErrDeviceCreation = errors.New("device resource creation failed")
	// ErrSlotOverflow is returned when a resource-view table has no free slot left.
	ErrSlotOverflow = errors.New("resource view table exhausted")
	// ErrNilDependency is returned by constructors given a missing collaborator.
	ErrNilDependency = errors.New("required dependency is nil")
	// ErrFrameBracket is returned when PreDraw/PostDraw are not strictly alternated.
	ErrFrameBracket = errors.New("frame bracket violated")
	// ErrFenceWait is returned when waiting on the frame fence fails.
	ErrFenceWait = errors.New("frame fence wait failed")
)

// NilDependency builds an ErrNilDependency naming the missing collaborator.
func NilDependency(name string) error {
	return errors.Wrapf(ErrNilDependency, "%s", name)
}

// CreationFailed marks cause as an ErrDeviceCreation, prefixed with the
// failing operation and its parameters.
func CreationFailed(cause error, format string, args ...interface{}) error {
	if cause == nil {
		return errors.Wrapf(ErrDeviceCreation, format, args...)
	}
	return errors.Mark(errors.Wrapf(cause, format, args...), ErrDeviceCreation)
}
