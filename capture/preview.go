package capture

import (
	"sync"
	"time"
)

// DefaultPreviewTTL is how long a capture preview stays displayable
// before self-expiring.
const DefaultPreviewTTL = 3 * time.Second

// Preview holds the displayable handle of the last capture for a bounded
// window. The handle and its expiry timer form one owned resource with a
// single release path, taken both on natural expiry and on early
// replacement or teardown.
type Preview struct {
	mu       sync.Mutex
	still    *Still
	timer    *time.Timer
	released bool
	onExpire func()
}

// NewPreview publishes a still for ttl. onExpire runs once after release,
// whether release came from the timer or an explicit call; it may be nil.
func NewPreview(still *Still, ttl time.Duration, onExpire func()) *Preview {
	if ttl <= 0 {
		ttl = DefaultPreviewTTL
	}
	p := &Preview{
		still:    still,
		onExpire: onExpire,
	}
	p.timer = time.AfterFunc(ttl, p.Release)
	return p
}

// Still returns the held handle while the preview is live.
func (p *Preview) Still() (*Still, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil, false
	}
	return p.still, true
}

// Release stops the expiry timer and drops the handle. Safe to call any
// number of times from any path; only the first call has effect.
func (p *Preview) Release() {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return
	}
	p.released = true
	p.still = nil
	p.timer.Stop()
	notify := p.onExpire
	p.mu.Unlock()

	if notify != nil {
		notify()
	}
}
