package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/2bv/prime-anonymizer/internal/audit"
	"github.com/2bv/prime-anonymizer/internal/websocket"
)

type contextKey string

const requestStateKey contextKey = "request_state"

// requestState travels with the request so handlers can report detection
// counts back to the logging middleware for auditing and broadcasting.
type requestState struct {
	RequestID string
	PIITotal  int
	ByType    map[string]int
	ErrorMsg  string
}

// loggingMiddleware logs HTTP requests, records audit entries and broadcasts
// request events to WebSocket clients
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		state := &requestState{RequestID: uuid.NewString()}
		ctx := context.WithValue(r.Context(), requestStateKey, state)
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		s.logger.WithRequestID(state.RequestID).Info("HTTP request started",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()),
		)

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		s.logger.WithRequestID(state.RequestID).Info("HTTP request completed",
			zap.Int("status_code", rw.statusCode),
			zap.Duration("duration", duration),
			zap.Int("response_size", rw.size),
			zap.Int("pii_findings", state.PIITotal),
		)

		if s.wsHub != nil {
			s.wsHub.BroadcastEvent(websocket.Event{
				Type:      websocket.EventTypeRequestLog,
				Timestamp: time.Now(),
				RequestID: state.RequestID,
				Data: websocket.RequestLogEvent{
					RequestID:   state.RequestID,
					Method:      r.Method,
					Path:        r.URL.Path,
					StatusCode:  rw.statusCode,
					ClientIP:    clientIP(r),
					DurationMS:  float64(duration.Nanoseconds()) / 1e6,
					RequestSize: r.ContentLength,
				},
			})

			if state.PIITotal > 0 {
				s.wsHub.BroadcastEvent(websocket.Event{
					Type:      websocket.EventTypePIIDetection,
					Timestamp: time.Now(),
					RequestID: state.RequestID,
					Data: websocket.PIIDetectionEvent{
						RequestID:     state.RequestID,
						Endpoint:      r.URL.Path,
						ClientIP:      clientIP(r),
						TotalFindings: state.PIITotal,
						ByType:        state.ByType,
						ProcessingMS:  float64(duration.Nanoseconds()) / 1e6,
					},
				})
			}
		}

		if s.auditStore != nil {
			entry := &audit.Entry{
				RequestID:    state.RequestID,
				ClientIP:     clientIP(r),
				Endpoint:     r.URL.Path,
				StatusCode:   rw.statusCode,
				ElapsedMS:    float64(duration.Nanoseconds()) / 1e6,
				PayloadBytes: int(r.ContentLength),
				PIITotal:     state.PIITotal,
				PIIByType:    state.ByType,
				ErrorMsg:     state.ErrorMsg,
			}

			// Audit writes never block or fail the response
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.auditStore.Record(ctx, entry); err != nil {
					s.logger.Error("Failed to record audit entry",
						zap.String("request_id", entry.RequestID),
						zap.Error(err),
					)
				}
			}()
		}
	})
}

// rateLimitMiddleware applies per-client token bucket rate limiting
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.RateLimit.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if !s.limiterFor(clientIP(r)).Allow() {
			s.logger.Warn("Rate limit exceeded",
				zap.String("client_ip", clientIP(r)),
				zap.String("path", r.URL.Path),
			)
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// payloadLimitMiddleware bounds request body size before handlers read it
func (s *Server) payloadLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		max := s.config.Server.MaxPayloadBytes
		if max > 0 {
			if r.ContentLength > max {
				writeError(w, http.StatusRequestEntityTooLarge, "Request payload too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	})
}

// stateFrom extracts the request state placed by loggingMiddleware
func stateFrom(ctx context.Context) *requestState {
	if state, ok := ctx.Value(requestStateKey).(*requestState); ok {
		return state
	}
	return &requestState{RequestID: "unknown"}
}

// isPayloadTooLarge reports whether a body read failed due to MaxBytesReader
func isPayloadTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// clientIP extracts the client IP from the request
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// responseWriter wraps http.ResponseWriter to capture response data
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}
