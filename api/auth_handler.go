package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/raushankrgupta/virtual-tryon/models"
	"github.com/raushankrgupta/virtual-tryon/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const stateCookie = "oauth_state"

// Auth issues session tokens after Google sign-in.
type Auth struct {
	Enabled bool
	Secret  []byte
	OAuth   *oauth2.Config

	// Identify exchanges an authorization code for the Google profile.
	Identify func(ctx context.Context, code string) (models.User, error)
}

// NewAuth configures Google sign-in. Requests are only authenticated
// when enabled is set.
func NewAuth(enabled bool, secret, clientID, clientSecret, redirectURL string) *Auth {
	a := &Auth{
		Enabled: enabled,
		Secret:  []byte(secret),
		OAuth: &oauth2.Config{
			RedirectURL:  redirectURL,
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
			Endpoint:     google.Endpoint,
		},
	}
	a.Identify = a.googleProfile
	return a
}

func (a *Auth) googleProfile(ctx context.Context, code string) (models.User, error) {
	token, err := a.OAuth.Exchange(ctx, code)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to exchange token: %w", err)
	}
	svc, err := googleoauth.NewService(ctx, option.WithTokenSource(a.OAuth.TokenSource(ctx, token)))
	if err != nil {
		return models.User{}, fmt.Errorf("failed to create userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user info: %w", err)
	}
	return models.User{GoogleID: info.Id, Name: info.Name, Email: info.Email, Picture: info.Picture}, nil
}

// LoginResponse carries the session token after sign-in.
type LoginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// GoogleLoginHandler handles the login request by redirecting to Google
func (s *Server) GoogleLoginHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer utils.FlushLogMessage(s.Logger, &logMessageBuilder)
	utils.AddToLogMessage(&logMessageBuilder, "[Google Login API]")

	if s.Auth == nil || s.Auth.OAuth.ClientID == "" {
		utils.RespondError(w, &logMessageBuilder, "Google sign-in is not configured", http.StatusServiceUnavailable)
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	utils.AddToLogMessage(&logMessageBuilder, "Redirecting to Google Auth")
	http.Redirect(w, r, s.Auth.OAuth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// GoogleCallbackHandler handles the callback from Google
func (s *Server) GoogleCallbackHandler(w http.ResponseWriter, r *http.Request) {
	var logMessageBuilder strings.Builder
	defer utils.FlushLogMessage(s.Logger, &logMessageBuilder)
	utils.AddToLogMessage(&logMessageBuilder, "[Google Callback API]")

	if s.Auth == nil {
		utils.RespondError(w, &logMessageBuilder, "Google sign-in is not configured", http.StatusServiceUnavailable)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.FormValue("state") != cookie.Value {
		utils.RespondError(w, &logMessageBuilder, "State invalid", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth/google", MaxAge: -1})

	code := r.FormValue("code")
	if code == "" {
		utils.RespondError(w, &logMessageBuilder, "Code not found", http.StatusBadRequest)
		return
	}

	user, err := s.Auth.Identify(r.Context(), code)
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, err.Error(), http.StatusBadGateway)
		return
	}
	utils.AddToLogMessage(&logMessageBuilder, "Successfully retrieved user info from Google")

	userID := "google:" + user.GoogleID
	if s.Users != nil {
		saved, err := s.Users.Upsert(r.Context(), user)
		if err != nil {
			utils.RespondError(w, &logMessageBuilder, fmt.Sprintf("Failed to save user: %v", err), http.StatusInternalServerError)
			return
		}
		user = saved
		userID = saved.ID.Hex()
	}

	token, err := utils.GenerateToken(s.Auth.Secret, userID)
	if err != nil {
		utils.RespondError(w, &logMessageBuilder, fmt.Sprintf("Failed to issue token: %v", err), http.StatusInternalServerError)
		return
	}

	utils.AddToLogMessage(&logMessageBuilder, fmt.Sprintf("Signed in user %s", userID))
	utils.RespondJSON(w, http.StatusOK, LoginResponse{Token: token, User: user})
}
