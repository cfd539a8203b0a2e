package api

import (
	"context"
	"net/http"
)

// ChannelDiscovery is the WebSocket channel announcing rediscovery results.
const ChannelDiscovery = "discovery.completed"

// discoveryResponse is broadcast when a rediscovery run ends.
type discoveryResponse struct {
	Registered   int    `json:"registered"`
	Restored     int    `json:"restored"`
	Unregistered int    `json:"unregistered"`
	Skipped      int    `json:"skipped"`
	Error        string `json:"error,omitempty"`
}

// handleDiscovery starts a rediscovery run in the background. The inventory
// fetch retries with backoff, so the result is delivered on the
// "discovery.completed" WebSocket channel rather than in the response.
func (s *Server) handleDiscovery(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	s.discoveryMu.Lock()
	if s.discovering {
		s.discoveryMu.Unlock()
		writeError(w, http.StatusConflict, ErrCodeConflict, "discovery already running")
		return
	}
	s.discovering = true
	s.discoveryMu.Unlock()

	ctx = withRequestActor(ctx, r)

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		defer func() {
			s.discoveryMu.Lock()
			s.discovering = false
			s.discoveryMu.Unlock()
		}()

		res, err := s.platform.Discover(ctx)
		msg := discoveryResponse{
			Registered:   res.Registered,
			Restored:     res.Restored,
			Unregistered: res.Unregistered,
			Skipped:      res.Skipped,
		}
		if err != nil {
			s.logger.Error("rediscovery failed", "error", err)
			msg.Error = err.Error()
		}
		s.hub.Broadcast(ChannelDiscovery, msg)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
