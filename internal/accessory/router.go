package accessory

import "sync"

// Router dispatches push events to the service bound to the event's
// component whose capability subset contains the event's capability.
type Router struct {
	mu       sync.RWMutex
	services []Service
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Register adds a service. Services are matched in registration order.
func (r *Router) Register(s Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = append(r.services, s)
}

// Lookup returns the first service matching the component and capability.
func (r *Router) Lookup(componentID, capability string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.services {
		if s.ComponentID() == componentID && s.HandlesCapability(capability) {
			return s, true
		}
	}
	return nil, false
}

// Dispatch forwards ev to the matching service and reports whether one was
// found. Unmatched events are dropped.
func (r *Router) Dispatch(ev Event) bool {
	s, ok := r.Lookup(ev.ComponentID, ev.Capability)
	if !ok {
		return false
	}
	s.ProcessEvent(ev)
	return true
}
