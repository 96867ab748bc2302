package drawer

import (
	"time"

	"github.com/spaghettifunk/prism/engine/core"
)

// Pacer caps the frame rate by sleeping away what is left of the frame budget.
type Pacer struct {
	target time.Duration
	now    func() time.Duration
	sleep  func(time.Duration)

	// end of the previous frame, after its sleep
	lastFrameEnd time.Duration
	started      bool
}

// NewPacer targets rate frames per second. A rate of zero disables pacing.
func NewPacer(rate float64) *Pacer {
	p := &Pacer{
		now:   core.Now,
		sleep: time.Sleep,
	}
	p.SetRate(rate)
	return p
}

// SetRate changes the target frame rate.
func (p *Pacer) SetRate(rate float64) {
	if rate <= 0 {
		p.target = 0
		return
	}
	p.target = time.Duration(float64(time.Second) / rate)
}

// Target is the frame budget.
func (p *Pacer) Target() time.Duration {
	return p.target
}

// Start marks the beginning of the first frame. Later frames are measured
// from the end of the previous Wait, so work done between frames counts
// against the budget.
func (p *Pacer) Start() {
	if !p.started {
		p.lastFrameEnd = p.now()
		p.started = true
	}
}

// Wait sleeps for target minus the time elapsed since the previous frame
// ended, if any remains, and returns the full frame duration.
func (p *Pacer) Wait() time.Duration {
	p.Start()
	elapsed := p.now() - p.lastFrameEnd
	var remaining time.Duration
	if p.target > 0 {
		remaining = core.Clamp(p.target-elapsed, 0, p.target)
		if remaining > 0 {
			p.sleep(remaining)
		}
	}
	p.lastFrameEnd = p.now()
	return elapsed + remaining
}
