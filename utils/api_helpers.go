package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/raushankrgupta/virtual-tryon/storage"
	"go.uber.org/zap"
)

// RespondJSON sends a JSON response with the given status code and payload.
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already sent.
		zap.L().Warn("Error encoding JSON response", zap.Error(err))
	}
}

// RespondError sends a JSON error response and adds message to the
// request log.
func RespondError(w http.ResponseWriter, logger *strings.Builder, message string, status int) {
	AddToLogMessage(logger, "[Error] "+message)
	RespondJSON(w, status, map[string]string{"error": message})
}

// PresignReference turns a stored object reference into a URL a client
// can fetch. Plain http(s) URLs and references no store owns are
// returned unchanged.
func PresignReference(ctx context.Context, ref string, stores ...storage.ObjectStore) string {
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	for _, store := range stores {
		if store == nil {
			continue
		}
		key, ok := store.Owns(ref)
		if !ok {
			continue
		}
		if url, err := store.PresignGet(ctx, key, storage.DefaultPresignExpiry); err == nil {
			return url
		}
	}
	return ref
}

// LatencyMiddleware logs the duration of each request
func LatencyMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("Request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

// CORSMiddleware allows browser clients from any origin.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
