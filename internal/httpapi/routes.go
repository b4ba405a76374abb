package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/island-duel-backend/internal/arena"
	"github.com/DoyleJ11/island-duel-backend/internal/ws"
)

func SetupRoutes(a *arena.Service, wsOpts ws.Options, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handlers{arena: a, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.EstablishUser)
		r.Get("/", h.AllUsers)
		r.Post("/{user}/heartbeat", h.Heartbeat)
	})
	r.Get("/online", h.Online)

	r.Route("/challenges", func(r chi.Router) {
		r.Post("/", h.SendChallenge)
		r.Post("/accept", h.AcceptChallenge)
		r.Get("/{user}", h.PendingChallenges)
	})

	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.SessionState)
		r.Post("/join", h.Join)
		r.Post("/choice", h.Choose)
		r.Post("/action", h.Act)
	})

	r.Get("/ws", ws.Handler(a, wsOpts))
	return r
}
