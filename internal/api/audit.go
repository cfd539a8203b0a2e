package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-cloud/internal/audit"
)

// withRequestActor attributes audited work done on behalf of r to the
// token's subject.
func withRequestActor(ctx context.Context, r *http.Request) context.Context {
	subject := ""
	if claims, ok := claimsFromContext(r.Context()); ok {
		subject = claims.Subject
	}
	return audit.WithActor(ctx, audit.SourceAPI, subject)
}

// handleListAudit returns the activity trail, newest first.
//
// Query: action, device_id, source, limit (max 200), offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		DeviceID: q.Get("device_id"),
		Source:   q.Get("source"),
	}

	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// intParam parses an optional non-negative integer query parameter,
// writing a 400 on failure.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeBadRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
