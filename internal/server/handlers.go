package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"emojilens/internal/annotate"
	"emojilens/internal/lexicon"
	"emojilens/internal/prefs"
	"emojilens/internal/session"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errNoSessions  = errors.New("sessions are not enabled")
	errNoStore     = errors.New("preferences store is not configured")
)

const (
	previewEmoji = "\U0001F44B\U0001F3FD"
	previewName  = "waving hand: medium skin tone"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, prefs.ErrUnknownKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

type annotateRequest struct {
	HTML        string           `json:"html"`
	Preferences *json.RawMessage `json:"preferences,omitempty"`
}

type annotateResponse struct {
	HTML        string            `json:"html"`
	Result      annotate.Result   `json:"result"`
	Preferences prefs.Preferences `json:"preferences"`
}

// currentPreferences reads the store, falling back to defaults.
func (s *Server) currentPreferences(r *http.Request) prefs.Preferences {
	if s.store == nil {
		return prefs.Defaults()
	}
	p, err := s.store.Load(r.Context())
	if err != nil {
		s.logger.Warn("preferences unavailable, using defaults", "error", err)
		return prefs.Defaults()
	}
	return p
}

// mergePreferences overlays a partial key map onto base.
func mergePreferences(base prefs.Preferences, raw []byte) (prefs.Preferences, error) {
	var m map[string]bool
	if err := json.Unmarshal(raw, &m); err != nil {
		return base, fmt.Errorf("decode preferences: %w", err)
	}
	for k, v := range m {
		key, err := prefs.ParseKey(k)
		if err != nil {
			return base, err
		}
		base = base.With(key, v)
	}
	return base.Normalize(), nil
}

func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	p := s.currentPreferences(r)
	var body io.Reader = r.Body

	if isJSON(r) {
		var req annotateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			status := statusOf(err)
			if status == http.StatusInternalServerError {
				status = http.StatusBadRequest
			}
			writeError(w, status, err)
			return
		}
		if req.Preferences != nil {
			merged, err := mergePreferences(p, *req.Preferences)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			p = merged
		}
		body = strings.NewReader(req.HTML)
	}

	doc, res, err := annotate.Run(body, s.lexicon, p)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	s.metrics.MarkersCreated.Add(uint64(res.Markers))

	if isJSON(r) {
		writeJSON(w, http.StatusOK, annotateResponse{HTML: doc.HTML(), Result: res, Preferences: p})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Emojilens-Markers", fmt.Sprint(res.Markers))
	io.WriteString(w, doc.HTML())
}

type sessionCreated struct {
	ID     string          `json:"id"`
	Result annotate.Result `json:"result"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.manager == nil {
		writeError(w, http.StatusNotImplemented, errNoSessions)
		return
	}
	sess, res, err := s.manager.Create(r.Context(), r.Body)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+sess.ID())
	writeJSON(w, http.StatusCreated, sessionCreated{ID: sess.ID(), Result: res})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.manager == nil {
		writeError(w, http.StatusNotImplemented, errNoSessions)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.manager.IDs()})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	if s.manager == nil {
		writeError(w, http.StatusNotImplemented, errNoSessions)
		return nil, false
	}
	sess, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	info, err := sess.Info(r.Context(), r.URL.Query().Get("html") != "false")
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.manager == nil {
		writeError(w, http.StatusNotImplemented, errNoSessions)
		return
	}
	if err := s.manager.Close(r.PathValue("id")); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMutations(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ops, err := session.DecodeOps(r.Body)
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	settle := r.URL.Query().Get("settle") == "true"
	if settle {
		err = sess.Replay(r.Context(), ops)
	} else {
		err = sess.Apply(r.Context(), ops)
	}
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}

	info, err := sess.Info(r.Context(), settle)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentPreferences(r))
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, errNoStore)
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}

	var mergeErr error
	p, err := prefs.Update(r.Context(), s.store, func(cur prefs.Preferences) prefs.Preferences {
		next, err := mergePreferences(cur, raw)
		if err != nil {
			mergeErr = err
			return cur
		}
		return next
	})
	if mergeErr != nil {
		writeError(w, http.StatusBadRequest, mergeErr)
		return
	}
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type previewResponse struct {
	Emoji       string            `json:"emoji"`
	Name        string            `json:"name"`
	CodePoints  string            `json:"codePoints"`
	Tooltip     string            `json:"tooltip"`
	Preferences prefs.Preferences `json:"preferences"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	emoji := q.Get("emoji")
	name := q.Get("name")
	if emoji == "" {
		emoji = previewEmoji
	}
	if name == "" {
		if resolved, ok := s.lexicon.Resolve(emoji); ok {
			name = resolved
		} else if emoji == previewEmoji {
			name = previewName
		} else {
			writeError(w, http.StatusNotFound, fmt.Errorf("no name for %s", lexicon.CodePoints(emoji)))
			return
		}
	}

	p := s.currentPreferences(r)
	writeJSON(w, http.StatusOK, previewResponse{
		Emoji:       emoji,
		Name:        name,
		CodePoints:  lexicon.CodePoints(emoji),
		Tooltip:     annotate.Format(emoji, name, p),
		Preferences: p,
	})
}
