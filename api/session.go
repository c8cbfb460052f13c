package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/raushankrgupta/virtual-tryon/utils"
	"github.com/raushankrgupta/virtual-tryon/workflow"
)

// LocalUser owns the single session used when authentication is off.
const LocalUser = "local"

// ScreenFactory builds the screen of a new session.
type ScreenFactory func(userID string) *workflow.Screen

// DefaultSessionIdleTTL is how long an unused screen is kept.
const DefaultSessionIdleTTL = 30 * time.Minute

// Sessions keeps one screen per user. Screens that are not running a job
// and have not been used for IdleTTL are dropped.
type Sessions struct {
	IdleTTL time.Duration

	factory ScreenFactory
	now     func() time.Time

	mu        sync.Mutex
	screens   map[string]*session
	lastSweep time.Time
}

type session struct {
	screen   *workflow.Screen
	lastUsed time.Time
}

func NewSessions(factory ScreenFactory) *Sessions {
	return &Sessions{
		IdleTTL: DefaultSessionIdleTTL,
		factory: factory,
		now:     time.Now,
		screens: make(map[string]*session),
	}
}

// Get returns the screen of userID, creating it on first use.
func (s *Sessions) Get(userID string) *workflow.Screen {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	sess, ok := s.screens[userID]
	if !ok {
		sess = &session{screen: s.factory(userID)}
		s.screens[userID] = sess
	}
	sess.lastUsed = now
	return sess.screen
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.screens)
}

// sweepLocked drops idle screens, at most once per minute. Requires s.mu.
func (s *Sessions) sweepLocked(now time.Time) {
	if s.IdleTTL <= 0 || now.Sub(s.lastSweep) < time.Minute {
		return
	}
	s.lastSweep = now
	for id, sess := range s.screens {
		if now.Sub(sess.lastUsed) >= s.IdleTTL && !sess.screen.State().Loading {
			delete(s.screens, id)
		}
	}
}

type contextKey string

const userIDKey contextKey = "user_id"

// WithUserID stores the session user in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserIDFromContext returns the user set by the auth middleware.
func GetUserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return "", errors.New("user id not found in context")
	}
	return userID, nil
}

// Middleware requires a valid bearer token when auth is enabled. With
// auth disabled every request belongs to LocalUser.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil || !a.Enabled {
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), LocalUser)))
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			utils.RespondError(w, nil, "Unauthorized", http.StatusUnauthorized)
			return
		}
		userID, err := utils.ValidateToken(a.Secret, token)
		if err != nil {
			utils.RespondError(w, nil, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}
