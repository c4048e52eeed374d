package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/danudenny/geoapi-saas/internal/analysis"
	"github.com/danudenny/geoapi-saas/internal/basemap"
	"github.com/danudenny/geoapi-saas/internal/core/model"
	"github.com/danudenny/geoapi-saas/internal/logger"
	"github.com/danudenny/geoapi-saas/internal/results"
	"github.com/danudenny/geoapi-saas/internal/session"
	"github.com/danudenny/geoapi-saas/internal/templates"
)

// CookieName holds the browser's session id.
const CookieName = "overlap_session"

const defaultMaxUpload = 32 << 20

type Handler struct {
	svc       *Service
	renderer  *templates.Renderer
	logger    *slog.Logger
	maxUpload int64
}

func NewHandler(svc *Service, renderer *templates.Renderer, logger *slog.Logger, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUpload
	}
	return &Handler{svc: svc, renderer: renderer, logger: logger, maxUpload: maxUploadBytes}
}

// Routes mounts the page and its Datastar actions.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Index)
	r.Route("/ui", func(r chi.Router) {
		r.Post("/upload", h.Upload)
		r.Post("/filter", h.Filter)
		r.Post("/scroll", h.Scroll)
		r.Post("/load-more", h.LoadMore)
		r.Post("/select/{id}", h.Toggle)
		r.Post("/select-all", h.SelectAll)
		r.Post("/map/close", h.CloseMap)
		r.Post("/map/legend", h.ToggleLegend)
		r.Post("/map/selector", h.ToggleSelector)
		r.Post("/map/basemap/{key}", h.SwitchBasemap)
		r.Post("/map/row/{id}", h.ViewRow)
		r.Post("/map/{mode}", h.ViewCollection)
		r.Post("/reset", h.Reset)
	})
}

// session returns the caller's session id, issuing a cookie on first visit,
// and the request carrying it in its context.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*http.Request, string) {
	sid := sessionFromCookie(r)
	if sid == "" {
		sid = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    sid,
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return r.WithContext(logger.WithSession(r.Context(), sid)), sid
}

func sessionFromCookie(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request) *stream {
	return newStream(w, r, h.renderer, h.logger)
}

// fail reports an action error. Geometry errors were already logged and
// abort silently.
func (h *Handler) fail(ctx context.Context, sse *stream, action string, err error) {
	switch {
	case IsGeometryError(err):
	case errors.Is(err, ErrRowNotFound), errors.Is(err, ErrNoResults), errors.Is(err, ErrMapClosed):
		h.logger.DebugContext(ctx, "action ignored", "action", action, "err", err)
	default:
		h.logger.ErrorContext(ctx, "action failed", "action", action, "err", err)
		sse.Error("Something went wrong. Please try again.")
	}
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	r, sid := h.session(w, r)
	ctx := r.Context()
	st, err := h.svc.State(ctx, sid)
	if err != nil {
		h.logger.ErrorContext(ctx, "load session", "err", err)
		http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
		return
	}
	html, err := h.renderer.Render("page", newPage(st))
	if err != nil {
		h.logger.ErrorContext(ctx, "render page", "err", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r, sid := h.session(w, r)
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	filename, content, readErr := readUpload(r)

	sse := h.stream(w, r)
	if readErr != nil {
		h.logger.InfoContext(ctx, "upload rejected", "err", readErr)
		var mbe *http.MaxBytesError
		if errors.As(readErr, &mbe) {
			sse.Error(fmt.Sprintf("File is larger than %d MB.", h.maxUpload>>20))
			return
		}
		sse.Error("Please choose a GeoJSON file to upload.")
		return
	}

	st, err := h.svc.Upload(ctx, sid, filename, content, func(st session.State) {
		p := newPage(st)
		sse.Signals(map[string]any{sigError: ""})
		sse.Morph("upload", p.Upload)
		sse.Morph("results", p)
		sse.Morph("map_overlay", p.Map)
		sse.Dispatch(eventMapClose, nil)
	})
	if err != nil {
		h.fail(ctx, sse, "upload", err)
		return
	}
	p := newPage(st)
	sse.Signals(p.Signals)
	sse.Morph("upload", p.Upload)
	sse.Morph("results", p)
}

func readUpload(r *http.Request) (string, []byte, error) {
	file, hdr, err := r.FormFile(analysis.FormField)
	if err != nil {
		return "", nil, err
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return "", nil, err
	}
	return hdr.Filename, content, nil
}

func (h *Handler) Filter(w http.ResponseWriter, r *http.Request) {
	r, sid := h.session(w, r)
	ctx := r.Context()
	sig, err := readSignals(r)
	if err != nil {
		http.Error(w, "invalid signals", http.StatusBadRequest)
		return
	}
	f := model.FilterCriteria{
		ErrorType: sig.String(sigErrorType),
		FeatureID: strings.TrimSpace(sig.String(sigFeatureID)),
	}
	st, err := h.svc.Filter(ctx, sid, f)
	sse := h.stream(w, r)
	if err != nil {
		h.fail(ctx, sse, "filter", err)
		return
	}
	e := st.Engine()
	t := newTable(e, e.Visible())
	sse.Patch("rows", t.Rows, "#result-rows")
	sse.tableChrome(t)
}

func (h *Handler) Scroll(w http.ResponseWriter, r *http.Request) {
	r, sid := h.session(w, r)
	ctx := r.Context()
	sig, err := readSignals(r)
	if err != nil {
		http.Error(w, "invalid signals", http.StatusBadRequest)
		return
	}
	distance := float64(results.ScrollThreshold)
	if sig.Has(sigDistance) {
		distance = sig.Float(sigDistance)
	}
	st, page, err := h.svc.Scroll(ctx, sid, distance)
	h.appendPage(w, r, st, page, err)
}

func (h *Handler) LoadMore(w http.ResponseWriter, r *http.Request) {
	r, sid := h.session(w, r)
	ctx := r.Context()
	st, page, err := h.svc.LoadMore(ctx, sid)
	h.appendPage(w, r, st, page, err)
}

func (h *Handler) appendPage(w http.ResponseWriter, r *http.Request, st session.State, page []model.OverlapResult, err error) {
	ctx := r.Context()
	sse := h.stream(w, r)
	if err != nil {
		h.fail(ctx, sse, "load_more", err)
		return
	}
	if len(page) == 0 {
		return
	}
	t := newTable(st.Engine(), page)
	sse.Append("rows", t.Rows, "#result-rows")
	sse.tableChrome(t)
}

// tableChrome refreshes everything around the rows that depends on the
// window, filter or selection.
func (s *stream) tableChrome(t Table) {
	s.Morph("results_count", t)
	s.Morph("select_all", t)
	s.Morph("load_more", t)
	s.Morph("map_actions", t)
}

func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	r, sid := h.session(w, r)
	ctx := r.Context()
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid feature id", http.StatusBadRequest)
		return
	}
	st, err := h.svc.Toggle(ctx, sid, id)
	sse := h.stream(w, r)
	if err != nil {
		h.fail(ctx, sse, "toggle", err)
		return
	}
	e := st.Engine()
	row, _ := e.Find(id)
	sse.Morph("row", newRow(row, e.IsSelected(id)))
	t := newTable(e, nil)
	sse.Morph("select_all", t)
	sse.Morph("map_actions", t)
}

func (h *Handler) SelectAll(w http.ResponseWriter, r *http.Request) {
	r, sid := h.session(w, r)
	ctx := r.Context()
	checked, _ := strconv.ParseBool(r.URL.Query().Get("checked"))
	st, err := h.svc.SelectAll(ctx, sid, checked)
	sse := h.stream(w, r)
	if err != nil {
		h.fail(ctx, sse, "select_all", err)
		return
	}
	e := st.Engine()
	t := newTable(e, e.Visible())
	sse.Patch("rows", t.Rows, "#result-rows")
	sse.Morph("select_all", t)
	sse.Morph("map_actions", t)
}

func (h *Handler) ViewRow(w http.ResponseWriter, r *http.Request) {
	r, sid := h.session(w, r)
	ctx := r.Context()
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid feature id", http.StatusBadRequest)
		return
	}
	st, p, err := h.svc.ViewRow(ctx, sid, id)
	sse := h.stream(w, r)
	if err != nil {
		h.fail(ctx, sse, "view_row", err)
		return
	}
	sse.Morph("map_overlay", newMapControls(st.Map))
	sse.Dispatch(eventMapOpen, p)
}

func (h *Handler) ViewCollection(w http.ResponseWriter, r *http.Request) {
	r, sid := h.session(w, r)
	ctx := r.Context()
	mode, err := model.ParseViewMode(chi.URLParam(r, "mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	st, p, err := h.svc.ViewCollection(ctx, sid, mode)
	sse := h.stream(w, r)
	if err != nil {
		h.fail(ctx, sse, "view_collection", err)
		return
	}
	sse.Morph("map_overlay", newMapControls(st.Map))
	sse.Dispatch(eventMapOpen, p)
}

func (h *Handler) CloseMap(w http.ResponseWriter, r *http.Request) {
	r, sid := h.session(w, r)
	ctx := r.Context()
	st, err := h.svc.CloseMap(ctx, sid)
	sse := h.stream(w, r)
	if err != nil {
		h.fail(ctx, sse, "close_map", err)
		return
	}
	sse.Dispatch(eventMapClose, nil)
	sse.Morph("map_overlay", newMapControls(st.Map))
}

func (h *Handler) SwitchBasemap(w http.ResponseWriter, r *http.Request) {
	r, sid := h.session(w, r)
	ctx := r.Context()
	key := chi.URLParam(r, "key")
	if _, ok := basemap.Lookup(key); !ok {
		http.Error(w, "unknown basemap", http.StatusNotFound)
		return
	}
	st, p, err := h.svc.SwitchBasemap(ctx, sid, key)
	sse := h.stream(w, r)
	if err != nil {
		h.fail(ctx, sse, "switch_basemap", err)
		return
	}
	sse.Morph("map_overlay", newMapControls(st.Map))
	if p != nil {
		sse.Dispatch(eventMapOpen, p)
	}
}

func (h *Handler) ToggleLegend(w http.ResponseWriter, r *http.Request) {
	r, sid := h.session(w, r)
	ctx := r.Context()
	st, err := h.svc.ToggleLegend(ctx, sid)
	h.patchControls(w, r, st, "toggle_legend", err)
}

func (h *Handler) ToggleSelector(w http.ResponseWriter, r *http.Request) {
	r, sid := h.session(w, r)
	ctx := r.Context()
	st, err := h.svc.ToggleSelector(ctx, sid)
	h.patchControls(w, r, st, "toggle_selector", err)
}

func (h *Handler) patchControls(w http.ResponseWriter, r *http.Request, st session.State, action string, err error) {
	ctx := r.Context()
	sse := h.stream(w, r)
	if err != nil {
		h.fail(ctx, sse, action, err)
		return
	}
	if st.Map.Open {
		sse.Morph("map_controls", newMapControls(st.Map))
	}
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	r, sid := h.session(w, r)
	ctx := r.Context()
	st, err := h.svc.Reset(ctx, sid)
	sse := h.stream(w, r)
	if err != nil {
		h.fail(ctx, sse, "reset", err)
		return
	}
	p := newPage(st)
	sse.Dispatch(eventMapClose, nil)
	sse.Signals(p.Signals)
	sse.Morph("upload", p.Upload)
	sse.Morph("results", p)
	sse.Morph("map_overlay", p.Map)
}
