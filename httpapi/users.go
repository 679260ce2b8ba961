package httpapi

import (
	"net/http"

	"github.com/MrEthical07/authsession"
)

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	res, _ := authsession.AuthResultFromContext(r.Context())
	account, err := s.engine.Account(r.Context(), res.AccountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profileOf(account))
}

// listSessions marks the caller's session as current when the client sends
// its refresh token in X-Refresh-Token.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	res, _ := authsession.AuthResultFromContext(r.Context())
	sessions, err := s.engine.ListSessions(r.Context(), res.AccountID, r.Header.Get("X-Refresh-Token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) revokeSession(w http.ResponseWriter, r *http.Request) {
	res, _ := authsession.AuthResultFromContext(r.Context())
	if err := s.engine.RevokeSession(r.Context(), res.AccountID, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) adminPing(w http.ResponseWriter, r *http.Request) {
	res, _ := authsession.AuthResultFromContext(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "account_id": res.AccountID})
}
