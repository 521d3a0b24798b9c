package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mudgate/mudgate/internal/database"
	"github.com/mudgate/mudgate/internal/logging"
)

type userInfo struct {
	Identity        string `json:"identity"`
	AccountName     string `json:"account_name"`
	LastDisplayName string `json:"last_display_name"`
	CreatedAccount  bool   `json:"created_account"`
	LastSeenAt      string `json:"last_seen_at"`
}

// ListUsers returns the persistent identity→account mapping. Passwords
// are never included, not even masked.
func ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := database.ListUsers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}
	infos := []userInfo{}
	for _, u := range users {
		infos = append(infos, userInfo{
			Identity:        u.Identity,
			AccountName:     u.AccountName,
			LastDisplayName: u.LastDisplayName,
			CreatedAccount:  u.CreatedAccount,
			LastSeenAt:      u.LastSeenAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

func ServerLogs(w http.ResponseWriter, r *http.Request) {
	n := 200
	if v := r.URL.Query().Get("lines"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 10000 {
			n = parsed
		}
	}
	tail, err := logging.ReadTail(n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": tail})
}
