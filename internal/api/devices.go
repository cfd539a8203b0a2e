package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-cloud/internal/accessory"
	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/devicesync"
	"github.com/nerrad567/gray-logic-cloud/internal/platform"
)

// deviceResponse describes one managed device.
type deviceResponse struct {
	DeviceID   string              `json:"device_id"`
	Name       string              `json:"name"`
	Online     bool                `json:"online"`
	Services   []serviceResponse   `json:"services"`
	Components []componentResponse `json:"components"`
}

type serviceResponse struct {
	Kind         string   `json:"kind"`
	ComponentID  string   `json:"component_id"`
	Capabilities []string `json:"capabilities"`
}

type componentResponse struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities"`
}

// stateResponse is the cached cloud status of a device after a refresh.
type stateResponse struct {
	DeviceID   string                           `json:"device_id"`
	Online     bool                             `json:"online"`
	Components map[string]cloud.ComponentStatus `json:"components"`
}

func newDeviceResponse(acc *accessory.Accessory) deviceResponse {
	resp := deviceResponse{
		DeviceID:   acc.DeviceID(),
		Name:       acc.Name(),
		Online:     acc.IsOnline(),
		Services:   []serviceResponse{},
		Components: []componentResponse{},
	}
	for _, svc := range acc.Services() {
		resp.Services = append(resp.Services, serviceResponse{
			Kind:         string(svc.Kind()),
			ComponentID:  svc.ComponentID(),
			Capabilities: svc.Capabilities(),
		})
	}
	for _, c := range acc.Components() {
		resp.Components = append(resp.Components, componentResponse{ID: c.ID, Capabilities: c.Capabilities})
	}
	return resp
}

// handleListDevices returns all managed devices.
//
// Query parameters:
//   - online: "true" or "false" to filter by reachability
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var onlineFilter *bool
	if v := r.URL.Query().Get("online"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "online must be true or false")
			return
		}
		onlineFilter = &b
	}

	devices := []deviceResponse{}
	for _, acc := range s.platform.Accessories() {
		if onlineFilter != nil && acc.IsOnline() != *onlineFilter {
			continue
		}
		devices = append(devices, newDeviceResponse(acc))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns one managed device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.platform.Accessory(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, newDeviceResponse(acc))
}

// handleGetDeviceState refreshes the device status (within the freshness
// window this reuses the cache) and returns every tracked component.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.platform.Accessory(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	engine := acc.Engine()
	if !engine.RefreshStatus(r.Context()) {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "device status unavailable")
		return
	}

	resp := stateResponse{
		DeviceID:   acc.DeviceID(),
		Online:     engine.IsOnline(),
		Components: make(map[string]cloud.ComponentStatus),
	}
	for _, c := range acc.Components() {
		if status, found := engine.ComponentStatus(c.ID); found {
			resp.Components[c.ID] = status
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeviceCommand forwards a command to the device.
//
// Body: {"componentId": "main", "capability": "switch", "command": "on", "arguments": []}
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var cmd accessory.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if cmd.Capability == "" || cmd.Command == "" {
		writeBadRequest(w, "capability and command are required")
		return
	}

	err := s.platform.HandleCommand(withRequestActor(r.Context(), r), deviceID, cmd)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	case errors.Is(err, platform.ErrUnknownDevice):
		writeNotFound(w, "device not found")
	case errors.Is(err, accessory.ErrNoService):
		writeBadRequest(w, "device has no service for this capability")
	case errors.Is(err, devicesync.ErrDeviceOffline):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "device is offline")
	case errors.Is(err, devicesync.ErrCommandFailed):
		s.logger.Warn("command failed", "device_id", deviceID, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "cloud rejected the command")
	default:
		s.logger.Error("command error", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to send command")
	}
}
