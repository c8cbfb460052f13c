package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/raushankrgupta/virtual-tryon/models"
	"github.com/raushankrgupta/virtual-tryon/utils"
)

const (
	maxFeedbackFiles   = 5
	maxFeedbackUpload  = 10 << 20
	maxFeedbackMessage = 2000
)

// FeedbackHandler records a rating of one of the user's runs, with
// optional screenshots.
func (s *Server) FeedbackHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer utils.FlushLogMessage(s.Logger, &logMessageBuilder)
	utils.AddToLogMessage(&logMessageBuilder, "[Feedback API]")

	if s.Feedback == nil {
		utils.RespondError(w, &logMessageBuilder, "Feedback is not configured", http.StatusServiceUnavailable)
		return
	}
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxFeedbackUpload); err != nil {
		utils.RespondError(w, &logMessageBuilder, "Error parsing form data", http.StatusBadRequest)
		return
	}

	runID := r.FormValue("run_id")
	message := strings.TrimSpace(r.FormValue("message"))
	rating, err := strconv.Atoi(r.FormValue("rating"))
	if runID == "" || err != nil || rating < 1 || rating > 5 {
		utils.RespondError(w, &logMessageBuilder, "run_id and a rating between 1 and 5 are required", http.StatusBadRequest)
		return
	}
	if len(message) > maxFeedbackMessage {
		utils.RespondError(w, &logMessageBuilder, "Message is too long", http.StatusBadRequest)
		return
	}
	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("User=%s Run=%s Rating=%d", userID, runID, rating))

	files := r.MultipartForm.File["files"]
	if len(files) > maxFeedbackFiles {
		utils.RespondError(w, &logMessageBuilder, fmt.Sprintf("At most %d files are allowed", maxFeedbackFiles), http.StatusBadRequest)
		return
	}
	var filePaths []string
	for _, file := range files {
		if s.Store == nil {
			utils.RespondError(w, &logMessageBuilder, "Attachments are not supported", http.StatusServiceUnavailable)
			return
		}
		f, err := file.Open()
		if err != nil {
			utils.RespondError(w, &logMessageBuilder, fmt.Sprintf("Error opening file %s", file.Filename), http.StatusInternalServerError)
			return
		}
		key := fmt.Sprintf("feedback/%s/%s%s", userID, uuid.NewString(), filepath.Ext(file.Filename))
		ref, err := s.Store.Put(r.Context(), key, f, file.Size, file.Header.Get("Content-Type"))
		f.Close()
		if err != nil {
			utils.RespondError(w, &logMessageBuilder, fmt.Sprintf("Error uploading file %s", file.Filename), http.StatusInternalServerError)
			return
		}
		filePaths = append(filePaths, ref)
	}

	feedback := models.Feedback{
		UserID:      userID,
		RunID:       runID,
		Rating:      rating,
		Message:     message,
		Email:       r.FormValue("email"),
		ContactBack: r.FormValue("contact_back") == "true",
		FilePaths:   filePaths,
	}
	if err := s.Feedback.Save(r.Context(), &feedback); err != nil {
		utils.RespondError(w, &logMessageBuilder, "Error saving feedback", http.StatusInternalServerError)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]string{"message": "Feedback submitted successfully"})
}
