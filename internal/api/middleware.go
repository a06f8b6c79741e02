package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RequestLoggingMiddleware logs one line per request, keyed by the chi
// route pattern so /api/v1/sessions/{id} aggregates across ids. Failed
// requests also carry the error type the handler set. Bodies are never
// logged: reaction times are the player's private witness.
func (s *Server) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		line := fmt.Sprintf("request method=%s route=%s status=%d duration=%v bytes=%d request_id=%s",
			r.Method, route, ww.Status(), time.Since(start), ww.BytesWritten(), middleware.GetReqID(r.Context()))
		if errType := ww.Header().Get("X-Error-Type"); errType != "" {
			line += " error_type=" + errType
		}
		s.logger.Print(line)
	})
}

// CORSMiddleware lets the browser game call the API from another origin.
func (s *Server) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
