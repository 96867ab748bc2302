package core

import (
	"time"

	"github.com/spaghettifunk/prism/engine/containers"
)

const AVG_COUNT uint8 = 30

// FrameMetrics keeps a rolling frame-time average and the frames counted in
// the last full second. It is owned by the engine context.
type FrameMetrics struct {
	msTimes            *containers.RingQueue[float64]
	msSum              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
	total              uint64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{msTimes: containers.NewRingQueue[float64](int(AVG_COUNT))}
}

// Update records one frame of the given duration.
func (m *FrameMetrics) Update(frameTime time.Duration) {
	frameMS := float64(frameTime) / float64(time.Millisecond)
	if m.msTimes.IsFull() {
		oldest, _ := m.msTimes.Dequeue()
		m.msSum -= oldest
	}
	_ = m.msTimes.Enqueue(frameMS)
	m.msSum += frameMS

	// Calculate frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	m.frames++
	m.total++
}

func (m *FrameMetrics) FPS() float64 {
	return m.fps
}

// FrameTime is the average frame time in milliseconds over the last AVG_COUNT frames.
func (m *FrameMetrics) FrameTime() float64 {
	if m.msTimes.IsEmpty() {
		return 0
	}
	return m.msSum / float64(m.msTimes.Len())
}

// Frames is the total number of frames recorded.
func (m *FrameMetrics) Frames() uint64 {
	return m.total
}
