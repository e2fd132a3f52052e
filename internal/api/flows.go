package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/luxbind/wiz-core/internal/flow"
	"github.com/luxbind/wiz-core/internal/identity"
	"github.com/luxbind/wiz-core/internal/wizlan"
)

// submitUserRequest is the request body for POST /flows/{id}/user.
type submitUserRequest struct {
	Host     string `json:"host"`
	HomeLink string `json:"home_link"`
}

// pickDeviceRequest is the request body for POST /flows/{id}/pick.
type pickDeviceRequest struct {
	MAC string `json:"mac"`
}

// hintRequest is the request body for POST /flows/hint.
type hintRequest struct {
	IPAddress  string `json:"ip_address"`
	MACAddress string `json:"mac_address"`
}

// handleStartFlow opens a new user-initiated binding flow.
func (s *Server) handleStartFlow(w http.ResponseWriter, r *http.Request) {
	result, err := s.flows.StartUser(r.Context())
	if err != nil {
		s.logger.Error("failed to start binding flow", "error", err)
		writeInternalError(w, "failed to start flow")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleSubmitUser submits the host form for a flow.
func (s *Server) handleSubmitUser(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "id")

	var req submitUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.flows.SubmitUser(r.Context(), flowID, req.Host, req.HomeLink)
	if err != nil {
		s.writeFlowError(w, flowID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePickDevice selects one of the discovered devices for a flow.
func (s *Server) handlePickDevice(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "id")

	var req pickDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.flows.PickDevice(r.Context(), flowID, req.MAC)
	if err != nil {
		s.writeFlowError(w, flowID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleConfirm confirms a passively discovered device for a flow.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "id")

	result, err := s.flows.Confirm(r.Context(), flowID)
	if err != nil {
		s.writeFlowError(w, flowID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleHint feeds an externally observed device into the binding flow,
// mirroring what the MQTT hint subscription does for bus-delivered hints.
func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	var req hintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.IPAddress == "" || req.MACAddress == "" {
		writeBadRequest(w, "ip_address and mac_address are required")
		return
	}

	result, err := s.flows.StartHint(r.Context(), wizlan.DiscoveredBulb{
		IPAddress:  req.IPAddress,
		MACAddress: req.MACAddress,
	})
	if err != nil {
		if errors.Is(err, identity.ErrInvalidMAC) {
			writeBadRequest(w, "invalid MAC address")
			return
		}
		s.logger.Error("failed to process discovery hint", "mac", req.MACAddress, "error", err)
		writeInternalError(w, "failed to process hint")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeFlowError maps flow manager errors to HTTP responses.
func (s *Server) writeFlowError(w http.ResponseWriter, flowID string, err error) {
	switch {
	case errors.Is(err, flow.ErrSessionNotFound):
		writeNotFound(w, "flow not found")
	case errors.Is(err, flow.ErrInvalidStep):
		writeError(w, http.StatusConflict, ErrCodeConflict, "step not valid for flow state")
	default:
		s.logger.Error("binding flow failed", "flow_id", flowID, "error", err)
		writeInternalError(w, "flow operation failed")
	}
}

