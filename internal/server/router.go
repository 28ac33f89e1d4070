package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// acquireTimeout bounds API requests, which may run a whole acquisition.
const acquireTimeout = 2 * time.Minute

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", s.handleLogin)
		r.Get("/callback", s.handleCallback)
		r.Post("/logout", s.handleLogout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.sessions.Middleware)
		r.Use(middleware.Timeout(acquireTimeout))

		r.Get("/token", s.handleToken)
		r.Post("/acquire", s.handleAcquire)
		r.Get("/library", s.handleLibrary)
		r.Get("/tracks/{id}", s.handleTrack)
	})

	r.Get("/media/*", s.handleMedia)
	return r
}

// Mount registers h on every route it declares.
func Mount(r chi.Router, h Handler, middlewares ...Middleware) {
	var wrapped http.Handler = h
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}

	for _, route := range h.Routes() {
		r.Handle(route, wrapped)
	}
}

// RequestLogger logs one line per request with method, path, status, duration and request id.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			}
			switch {
			case status >= 500:
				logger.Error("request", fields...)
			case status >= 400:
				logger.Warn("request", fields...)
			default:
				logger.Info("request", fields...)
			}
		})
	}
}
