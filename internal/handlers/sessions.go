package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mudgate/mudgate/internal/session"
)

// Registry is the shared session registry, set from main before the
// server starts.
var Registry *session.Registry

type sessionInfo struct {
	ID           string    `json:"id"`
	Identity     string    `json:"identity"`
	Account      string    `json:"account"`
	State        string    `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	IdleSeconds  int64     `json:"idle_seconds"`
}

func toSessionInfo(s *session.Session) sessionInfo {
	last := s.LastActivity()
	return sessionInfo{
		ID:           s.ID,
		Identity:     s.Identity,
		Account:      s.Account,
		State:        s.State().String(),
		CreatedAt:    s.CreatedAt,
		LastActivity: last,
		IdleSeconds:  int64(time.Since(last).Seconds()),
	}
}

func ListSessions(w http.ResponseWriter, r *http.Request) {
	infos := []sessionInfo{}
	for _, s := range Registry.List() {
		infos = append(infos, toSessionInfo(s))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Identity < infos[j].Identity })
	writeJSON(w, http.StatusOK, infos)
}

func GetSession(w http.ResponseWriter, r *http.Request) {
	ident := chi.URLParam(r, "identity")
	s, ok := Registry.Get(ident)
	if !ok {
		writeError(w, http.StatusNotFound, "No session for identity")
		return
	}
	writeJSON(w, http.StatusOK, toSessionInfo(s))
}

// DeleteSession force-closes an identity's session. The user's next
// message simply opens a fresh one.
func DeleteSession(w http.ResponseWriter, r *http.Request) {
	ident := chi.URLParam(r, "identity")
	s, ok := Registry.Get(ident)
	if !ok {
		writeError(w, http.StatusNotFound, "No session for identity")
		return
	}
	s.Close()
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed", "id": s.ID})
}
