package devicesync

import (
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
)

// StatusCache holds the last known status of each component of one device,
// plus the time of the last successful refresh.
//
// StatusCache is not safe for concurrent use; the Engine guards it.
type StatusCache struct {
	components  map[string]cloud.ComponentStatus
	refreshedAt time.Time
}

func newStatusCache() StatusCache {
	return StatusCache{components: make(map[string]cloud.ComponentStatus)}
}

// Fresh reports whether the last refresh happened less than window ago.
func (c *StatusCache) Fresh(now time.Time, window time.Duration) bool {
	if c.refreshedAt.IsZero() {
		return false
	}
	return now.Sub(c.refreshedAt) < window
}

// Invalidate forces the next freshness check to fail.
func (c *StatusCache) Invalidate() {
	c.refreshedAt = time.Time{}
}

// Stamp records a successful refresh.
func (c *StatusCache) Stamp(now time.Time) {
	c.refreshedAt = now
}

// Put replaces a component's status wholesale.
func (c *StatusCache) Put(componentID string, status cloud.ComponentStatus) {
	c.components[componentID] = status
}

// Component returns the cached status of a component.
func (c *StatusCache) Component(componentID string) (cloud.ComponentStatus, bool) {
	s, ok := c.components[componentID]
	return s, ok
}

