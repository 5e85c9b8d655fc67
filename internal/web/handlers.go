package web

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/moodlog/internal/ai"
	"github.com/hpungsan/moodlog/internal/auth"
	"github.com/hpungsan/moodlog/internal/config"
	"github.com/hpungsan/moodlog/internal/errors"
	"github.com/hpungsan/moodlog/internal/live"
	"github.com/hpungsan/moodlog/internal/mood"
	"github.com/hpungsan/moodlog/internal/ops"
)

// SessionCookie carries the bearer token for browser clients.
const SessionCookie = "moodlog_session"

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Handlers contains HTTP route handlers for the dashboard and API.
type Handlers struct {
	db        *sql.DB
	cfg       *config.Config
	hub       *live.Hub
	auth      auth.TokenAuthenticator
	analyzer  ops.Analyzer
	responder ops.Responder
	renderer  *Renderer
	streams   *streamRegistry

	// sessionCheck is how often open streams re-validate their token
	sessionCheck time.Duration
	now          func() time.Time
}

func newHandlers(deps Deps, renderer *Renderer) *Handlers {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Handlers{
		db:           deps.DB,
		cfg:          cfg,
		hub:          deps.Hub,
		auth:         deps.Auth,
		analyzer:     deps.Analyzer,
		responder:    deps.Responder,
		renderer:     renderer,
		streams:      newStreamRegistry(),
		sessionCheck: 30 * time.Second,
		now:          time.Now,
	}
}

// requestToken returns the bearer token from the Authorization header or
// the session cookie.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// session resolves the request's token. A missing, unknown or expired
// token yields a nil session and no error.
func (h *Handlers) session(r *http.Request) (*mood.Session, error) {
	token := requestToken(r)
	if token == "" {
		return nil, nil
	}
	id, err := h.auth.Resolve(r.Context(), token)
	if err != nil {
		return nil, err
	}
	return auth.ToSession(id, h.now()), nil
}

// requireSession is session with a nil result turned into UNAUTHENTICATED.
func (h *Handlers) requireSession(r *http.Request) (*mood.Session, error) {
	sess, err := h.session(r)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.NewUnauthenticated()
	}
	return sess, nil
}

// HandleDashboard handles GET / - the signed-in user's journal, or the
// sign-in form.
func (h *Handlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	data := DashboardPageData{
		PageData: PageData{
			Title:   "Mood Journal",
			Version: h.renderer.version,
		},
		Moods:     mood.Moods,
		Sources:   mood.Sources,
		Methods:   auth.Methods,
		Questions: ops.SuggestedQuestions(),
	}

	sess, err := h.session(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if sess == nil {
		h.renderer.renderPage(w, r, "dashboard", data)
		return
	}
	data.Session = sess

	list, err := ops.List(h.db, sess, ops.ListInput{Limit: ops.DefaultListLimit})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	timeline, err := ops.Timeline(h.db, sess)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	stats, err := ops.Stats(h.db, sess)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	data.Entries = list.Items
	data.Total = list.Pagination.Total
	data.Timeline = timeline
	data.Stats = stats
	if needed := ai.MinEntries - stats.Total; needed > 0 {
		data.GateMessage = ops.GateMessage(needed)
	}

	h.renderer.renderPage(w, r, "dashboard", data)
}

// signInRequest is the body of POST /api/auth/signin.
type signInRequest struct {
	Provider    string  `json:"provider"`
	Email       string  `json:"email"`
	DisplayName *string `json:"display_name,omitempty"`
	PhotoURL    *string `json:"photo_url,omitempty"`
}

// HandleSignIn handles POST /api/auth/signin - issue a session token.
func (h *Handlers) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if isJSONBody(r) {
		if err := decodeJSON(r, &req); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
			return
		}
		req.Provider = r.FormValue("provider")
		req.Email = r.FormValue("email")
		req.DisplayName = ptrString(r.FormValue("display_name"))
		req.PhotoURL = ptrString(r.FormValue("photo_url"))
	}

	method, ok := auth.ParseMethod(req.Provider)
	if !ok {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("provider must be google or apple"))
		return
	}

	id, err := h.auth.Issue(r.Context(), method, auth.Claims{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(h.cfg.SessionTTL().Seconds()),
	})

	if !wantsJSON(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"token":   id.Token,
		"session": auth.ToSession(id, h.now()),
	})
}

// HandleSignOut handles POST /api/auth/signout - revoke the session token
// and end every stream opened with it.
func (h *Handlers) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	if token := requestToken(r); token != "" {
		if err := h.auth.Revoke(r.Context(), token); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		if n := h.streams.endToken(token); n > 0 {
			log.Printf("[web] sign-out ended %d stream(s)", n)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	if !wantsJSON(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"signed_out": true})
}

// HandleSession handles GET /api/session.
func (h *Handlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.requireSession(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, sess)
}

// HandleListEntries handles GET /api/entries - newest first, paginated.
func (h *Handlers) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	sess, err := h.requireSession(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	out, err := ops.List(h.db, sess, ops.ListInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// appendRequest is the body of POST /api/entries. Any id, user_id or
// timestamp sent by the client is ignored.
type appendRequest struct {
	Mood      string         `json:"mood"`
	Intensity int            `json:"intensity"`
	Source    string         `json:"source,omitempty"`
	Metadata  *mood.Metadata `json:"metadata,omitempty"`
}

// HandleAppend handles POST /api/entries - record a new entry.
func (h *Handlers) HandleAppend(w http.ResponseWriter, r *http.Request) {
	sess, err := h.requireSession(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	var req appendRequest
	if isJSONBody(r) {
		if err := decodeJSON(r, &req); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
			return
		}
		req.Mood = r.FormValue("mood")
		req.Source = r.FormValue("source")
		n, err := strconv.Atoi(r.FormValue("intensity"))
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("intensity must be an integer"))
			return
		}
		req.Intensity = n
	}

	out, err := ops.Append(r.Context(), h.db, h.hub, sess, ops.AppendInput{
		Mood:      req.Mood,
		Intensity: req.Intensity,
		Source:    req.Source,
		Metadata:  req.Metadata,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if !wantsJSON(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	renderJSON(w, http.StatusCreated, out.Entry)
}

// HandleTimeline handles GET /api/timeline.
func (h *Handlers) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	sess, err := h.requireSession(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	out, err := ops.Timeline(h.db, sess)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleStats handles GET /api/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	sess, err := h.requireSession(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	out, err := ops.Stats(h.db, sess)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleInsights handles GET /api/insights. htmx requests get the
// dashboard's insights fragment.
func (h *Handlers) HandleInsights(w http.ResponseWriter, r *http.Request) {
	sess, err := h.requireSession(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	out, err := ops.Insights(r.Context(), h.db, h.analyzer, sess)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if r.Header.Get("HX-Request") == "true" {
		data := InsightsFragmentData{Insights: out}
		if out.Analysis != nil {
			data.SummaryHTML = renderMarkdown(out.Analysis.Summary)
		}
		h.renderer.renderBlock(w, http.StatusOK, "dashboard", "insights", data)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleTips handles GET /api/tips.
func (h *Handlers) HandleTips(w http.ResponseWriter, r *http.Request) {
	sess, err := h.requireSession(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	out, err := ops.Tips(r.Context(), h.db, h.analyzer, sess)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// askRequest is the body of POST /api/ask.
type askRequest struct {
	Question string `json:"question"`
}

// HandleAsk handles POST /api/ask. htmx requests get the answer rendered
// as HTML.
func (h *Handlers) HandleAsk(w http.ResponseWriter, r *http.Request) {
	sess, err := h.requireSession(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	var req askRequest
	if isJSONBody(r) {
		if err := decodeJSON(r, &req); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
			return
		}
		req.Question = r.FormValue("question")
	}

	out, err := ops.Ask(r.Context(), h.db, h.responder, sess, req.Question)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if r.Header.Get("HX-Request") == "true" {
		h.renderer.renderBlock(w, http.StatusOK, "dashboard", "answer", AnswerFragmentData{
			Question:   out.Question,
			AnswerHTML: renderMarkdown(out.Answer),
		})
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleQuestions handles GET /api/questions - suggested starter questions.
func (h *Handlers) HandleQuestions(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{"questions": ops.SuggestedQuestions()})
}

// isJSONBody reports whether the request body is JSON.
func isJSONBody(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// wantsJSON reports whether the client expects a JSON response. API
// routes answer JSON unless a browser form posted to them.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") || isJSONBody(r) {
		return true
	}
	ct := r.Header.Get("Content-Type")
	isForm := strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
	return strings.HasPrefix(r.URL.Path, "/api/") && !isForm && r.Header.Get("HX-Request") != "true"
}

// decodeJSON decodes a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// ptrString returns a pointer to s if non-empty, nil otherwise.
func ptrString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
