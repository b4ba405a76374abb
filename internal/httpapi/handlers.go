package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/island-duel-backend/internal/apperr"
	"github.com/DoyleJ11/island-duel-backend/internal/arena"
	"github.com/DoyleJ11/island-duel-backend/internal/types"
	pubtypes "github.com/DoyleJ11/island-duel-backend/pkg/types"
)

type Handlers struct {
	arena *arena.Service
	log   *zap.Logger
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, err)
}

func (h *Handlers) EstablishUser(w http.ResponseWriter, r *http.Request) {
	var req types.UserRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	reconnected, err := h.arena.EstablishUser(req.Username)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK          bool `json:"ok"`
		Reconnected bool `json:"reconnected"`
	}{true, reconnected})
}

func (h *Handlers) AllUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": h.arena.Users()})
}

func (h *Handlers) Online(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"online": h.arena.Online()})
}

func (h *Handlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if err := h.arena.Heartbeat(chi.URLParam(r, "user")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handlers) SendChallenge(w http.ResponseWriter, r *http.Request) {
	var req types.ChallengeRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.arena.SendChallenge(req.From, req.To); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handlers) PendingChallenges(w http.ResponseWriter, r *http.Request) {
	pending, err := h.arena.Pending(chi.URLParam(r, "user"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (h *Handlers) AcceptChallenge(w http.ResponseWriter, r *http.Request) {
	var req types.ChallengeRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	id, opponent, err := h.arena.AcceptChallenge(r.Context(), req.From, req.To)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id, "opponent": opponent})
}

func (h *Handlers) SessionState(w http.ResponseWriter, r *http.Request) {
	st, err := h.arena.State(r.Context(), chi.URLParam(r, "id"))
	h.writeState(w, r, st, err)
}

func (h *Handlers) Join(w http.ResponseWriter, r *http.Request) {
	var req types.MoveRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	st, err := h.arena.Join(r.Context(), chi.URLParam(r, "id"), req.Username)
	h.writeState(w, r, st, err)
}

func (h *Handlers) Choose(w http.ResponseWriter, r *http.Request) {
	var req types.MoveRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	st, err := h.arena.Choose(r.Context(), chi.URLParam(r, "id"), req.Username, req.Choice)
	h.writeState(w, r, st, err)
}

func (h *Handlers) Act(w http.ResponseWriter, r *http.Request) {
	var req types.MoveRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	st, err := h.arena.Act(r.Context(), chi.URLParam(r, "id"), req.Username, req.Action)
	h.writeState(w, r, st, err)
}

func (h *Handlers) writeState(w http.ResponseWriter, r *http.Request, st pubtypes.SessionState, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]pubtypes.SessionState{"state": st})
}
