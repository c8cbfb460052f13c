package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/raushankrgupta/virtual-tryon/models"
	"github.com/raushankrgupta/virtual-tryon/picker"
	"github.com/raushankrgupta/virtual-tryon/utils"
	"github.com/raushankrgupta/virtual-tryon/workflow"
)

// SelectionRequest picks an image from a product page instead of an
// upload.
type SelectionRequest struct {
	ProductURL string `json:"product_url"`
}

// SelectionResponse reports whether an image was picked and the screen
// that results.
type SelectionResponse struct {
	Picked bool          `json:"picked"`
	View   workflow.View `json:"view"`
}

// TryOnResponse is returned when a run starts.
type TryOnResponse struct {
	RunID string        `json:"run_id"`
	View  workflow.View `json:"view"`
}

// SelectionHandler stores the subject or garment image of the session.
// The image comes from a multipart "image" field or, for JSON bodies,
// from the product page at product_url.
func (s *Server) SelectionHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer utils.FlushLogMessage(s.Logger, &logMessageBuilder)
	utils.AddToLogMessage(&logMessageBuilder, "[Selection API]")

	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role, err := models.ParseRole(r.PathValue("role"))
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, err.Error(), http.StatusBadRequest)
		return
	}
	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("User=%s Role=%s", userID, role))

	var p picker.Picker
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req SelectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, &logMessageBuilder, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		if req.ProductURL == "" {
			utils.RespondError(w, &logMessageBuilder, "product_url is required", http.StatusBadRequest)
			return
		}
		productURL := req.ProductURL
		if s.ShortLinks != nil {
			if resolved, err := s.ShortLinks(r.Context(), productURL); err == nil && resolved != productURL {
				utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Resolved %s to %s", productURL, resolved))
				productURL = resolved
			}
		}
		p = picker.NewProductPagePicker(productURL, s.Store)
	} else {
		p = picker.NewUploadPicker(r, s.Store)
	}

	screen := s.Sessions.Get(userID)
	picked, err := screen.Pick(r.Context(), p, role)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, picker.ErrImageTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		utils.RespondError(w, &logMessageBuilder, fmt.Sprintf("Failed to pick image: %v", err), status)
		return
	}
	if !picked {
		utils.AddToLogMessage(&logMessageBuilder, "Pick cancelled")
	}
	utils.RespondJSON(w, http.StatusOK, SelectionResponse{Picked: picked, View: screen.View()})
}

// TryOnHandler starts a run for the session. The run continues after the
// response; clients follow it on /status.
func (s *Server) TryOnHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer utils.FlushLogMessage(s.Logger, &logMessageBuilder)
	utils.AddToLogMessage(&logMessageBuilder, "[Virtual Try-On API]")

	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, "Unauthorized", http.StatusUnauthorized)
		return
	}

	screen := s.Sessions.Get(userID)
	s.runs.Add(1)
	runID, done, err := screen.Launch(s.background)
	if err != nil {
		s.runs.Done()
		utils.RespondError(w, &logMessageBuilder, workflow.Message(err), statusFor(err))
		return
	}
	go func() {
		defer s.runs.Done()
		<-done
	}()

	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Run %s started for user %s", runID, userID))
	utils.RespondJSON(w, http.StatusAccepted, TryOnResponse{RunID: runID, View: screen.View()})
}

// StatusHandler returns what the session's screen shows.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		utils.RespondError(w, nil, "Unauthorized", http.StatusUnauthorized)
		return
	}
	utils.RespondJSON(w, http.StatusOK, s.Sessions.Get(userID).View())
}

// DismissAlertHandler acknowledges the pending alert.
func (s *Server) DismissAlertHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		utils.RespondError(w, nil, "Unauthorized", http.StatusUnauthorized)
		return
	}
	screen := s.Sessions.Get(userID)
	screen.DismissAlert()
	utils.RespondJSON(w, http.StatusOK, screen.View())
}
