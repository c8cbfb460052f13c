package api

import (
	"errors"
	"net/http"

	"github.com/raushankrgupta/virtual-tryon/stream"
	"github.com/raushankrgupta/virtual-tryon/utils"
	"go.uber.org/zap"
)

// StreamSnapshotHandler describes the page the stream viewer shows.
func (s *Server) StreamSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if s.Stream == nil {
		utils.RespondError(w, nil, "Stream viewer is not enabled", http.StatusServiceUnavailable)
		return
	}
	snap, err := s.Stream.Snapshot(r.Context())
	if errors.Is(err, stream.ErrNotRunning) {
		utils.RespondError(w, nil, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		s.Logger.Error("Stream snapshot failed", zap.Error(err))
		utils.RespondError(w, nil, "Failed to read stream page", http.StatusBadGateway)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}
