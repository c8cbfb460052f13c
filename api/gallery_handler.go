package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/raushankrgupta/virtual-tryon/storage"
	"github.com/raushankrgupta/virtual-tryon/utils"
)

// GalleryHandler lists the user's finished runs with fetchable image URLs.
func (s *Server) GalleryHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer utils.FlushLogMessage(s.Logger, &logMessageBuilder)
	utils.AddToLogMessage(&logMessageBuilder, "[Gallery API]")

	if s.Gallery == nil {
		utils.RespondError(w, &logMessageBuilder, "History is not configured", http.StatusServiceUnavailable)
		return
	}
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, "Unauthorized", http.StatusUnauthorized)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := s.Gallery.List(r.Context(), userID, page, limit)
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, fmt.Sprintf("Failed to fetch data: %v", err), http.StatusInternalServerError)
		return
	}

	for i := range result.Items {
		item := &result.Items[i]
		if item.ResultKey != "" && s.Store != nil {
			if url, err := s.Store.PresignGet(r.Context(), item.ResultKey, storage.DefaultPresignExpiry); err == nil {
				item.ResultURL = url
			}
		}
		item.SubjectReference = utils.PresignReference(r.Context(), item.SubjectReference, s.Store)
		item.GarmentReference = utils.PresignReference(r.Context(), item.GarmentReference, s.Store)
	}

	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("User=%s Page=%d Items=%d", userID, result.CurrentPage, len(result.Items)))
	utils.RespondJSON(w, http.StatusOK, result)
}
