package intake

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-credential-pool/credentials"
	errs "github.com/jrsteele09/go-credential-pool/internal/errors"
)

func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "%s online.", s.config.GetAppName())
	}
}

// AuthorizeHandler sends the browser to the provider consent page
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := s.state.Issue()
		if err != nil {
			s.logger.Err(err).Msg("Failed to issue state")
			http.Error(w, "failed to start authorization", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, s.provider.AuthCodeURL(state), http.StatusFound)
	}
}

// DoneHandler is the provider redirect target. It exchanges the code,
// resolves the subject and stores the new credential.
func (s *Server) DoneHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if errorParam := r.FormValue("error"); errorParam != "" {
			http.Error(w, fmt.Sprintf("Authorization failed: %s - %s", errorParam, r.FormValue("error_description")), http.StatusBadRequest)
			return
		}

		code := r.FormValue("code")
		if code == "" {
			http.Error(w, "No code provided", http.StatusBadRequest)
			return
		}

		state := r.FormValue("state")
		if state != "" || s.config.GetRequireState() {
			if err := s.state.Verify(state); err != nil {
				s.logger.Warn().Err(err).Msg("Rejected authorization callback")
				http.Error(w, "Invalid state parameter", http.StatusBadRequest)
				return
			}
		}

		ctx := r.Context()
		pair, err := s.provider.ExchangeCode(ctx, code)
		if err != nil {
			s.logger.Err(err).Msg("Code exchange failed")
			http.Error(w, "Authentication Failed: code exchange rejected", http.StatusBadGateway)
			return
		}

		identity, err := s.provider.LookupIdentity(ctx, pair.AccessToken)
		if err != nil {
			s.logger.Err(err).Msg("Identity lookup failed")
			http.Error(w, "Authentication Failed: could not resolve user", http.StatusBadGateway)
			return
		}

		record := credentials.Record{
			SubjectID:    identity.ID,
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		}
		if err := s.store.Upsert(ctx, record); err != nil {
			status := http.StatusInternalServerError
			if errs.Is(err, errs.ErrUnparseableRecord) {
				status = http.StatusBadGateway
			}
			s.logger.Err(err).Str("subject_id", identity.ID).Msg("Failed to store credential")
			http.Error(w, "Authentication Failed: could not store credential", status)
			return
		}

		name := identity.DisplayName
		if name == "" {
			name = "Unknown"
		}
		s.logger.Info().Str("subject_id", identity.ID).Str("name", name).Msg("New authorization stored")
		s.notifier.Notify(ctx, fmt.Sprintf("New Auth - User: %s (ID: %s)", name, identity.ID))

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, "Authentication Successful.")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
