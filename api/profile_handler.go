package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/raushankrgupta/virtual-tryon/history"
	"github.com/raushankrgupta/virtual-tryon/utils"
)

// ProfileHandler returns the signed-in account.
func (s *Server) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer utils.FlushLogMessage(s.Logger, &logMessageBuilder)
	utils.AddToLogMessage(&logMessageBuilder, "[Profile API]")

	if s.Users == nil {
		utils.RespondError(w, &logMessageBuilder, "Accounts are not configured", http.StatusServiceUnavailable)
		return
	}
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, "Unauthorized", http.StatusUnauthorized)
		return
	}
	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("User=%s", userID))

	user, err := s.Users.Get(r.Context(), userID)
	if errors.Is(err, history.ErrUserNotFound) {
		utils.RespondError(w, &logMessageBuilder, "Profile not found", http.StatusNotFound)
		return
	}
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, fmt.Sprintf("Failed to load profile: %v", err), http.StatusInternalServerError)
		return
	}
	utils.RespondJSON(w, http.StatusOK, user)
}
