package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/danudenny/geoapi-saas/internal/templates"
)

// Signal names shared with the page.
const (
	sigErrorType = "errortype"
	sigFeatureID = "featureid"
	sigDistance  = "distance"
	sigError     = "error"
)

// Browser events consumed by the map binding script.
const (
	eventMapOpen  = "map-open"
	eventMapClose = "map-close"
)

// stream wraps a Datastar SSE generator with template rendering. Render
// failures are logged and the fragment skipped; the stream stays usable.
type stream struct {
	*datastar.ServerSentEventGenerator
	ctx      context.Context
	renderer *templates.Renderer
	logger   *slog.Logger
}

func newStream(w http.ResponseWriter, r *http.Request, renderer *templates.Renderer, logger *slog.Logger) *stream {
	return &stream{
		ServerSentEventGenerator: datastar.NewSSE(w, r),
		ctx:                      r.Context(),
		renderer:                 renderer,
		logger:                   logger,
	}
}

func (s *stream) render(name string, data any) (string, bool) {
	html, err := s.renderer.Render(name, data)
	if err != nil {
		s.logger.ErrorContext(s.ctx, "render fragment", "template", name, "err", err)
		return "", false
	}
	return html, true
}

// Morph patches a fragment whose root element carries its own id.
func (s *stream) Morph(name string, data any) {
	if html, ok := s.render(name, data); ok {
		s.send(s.PatchElements(html))
	}
}

// Patch replaces the inner content at selector.
func (s *stream) Patch(name string, data any, selector string) {
	if html, ok := s.render(name, data); ok {
		s.send(s.PatchElements(html,
			datastar.WithSelector(selector),
			datastar.WithModeInner(),
		))
	}
}

// Append adds a fragment at the end of selector.
func (s *stream) Append(name string, data any, selector string) {
	if html, ok := s.render(name, data); ok {
		s.send(s.PatchElements(html,
			datastar.WithSelector(selector),
			datastar.WithModeAppend(),
		))
	}
}

// Error sends an error signal to the UI.
func (s *stream) Error(msg string) {
	s.Signals(map[string]any{sigError: msg})
}

// Signals sends arbitrary signals to the UI.
func (s *stream) Signals(signals map[string]any) {
	s.send(s.MarshalAndPatchSignals(signals))
}

func (s *stream) Dispatch(event string, detail any) {
	s.send(s.DispatchCustomEvent(event, detail))
}

func (s *stream) send(err error) {
	if err != nil && s.ctx.Err() == nil {
		s.logger.WarnContext(s.ctx, "sse send", "err", err)
	}
}

// Signals provides type-safe access to Datastar signal values.
type Signals map[string]any

func readSignals(r *http.Request) (Signals, error) {
	sig := Signals{}
	if err := datastar.ReadSignals(r, &sig); err != nil {
		return nil, err
	}
	return sig, nil
}

// String returns a string signal value, or empty string if not found.
func (s Signals) String(key string) string {
	if v, ok := s[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// Float returns a float64 signal value, or 0 if not found.
func (s Signals) Float(key string) float64 {
	if v, ok := s[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}

// Has returns true if the signal key exists (even if zero-valued).
func (s Signals) Has(key string) bool {
	_, ok := s[key]
	return ok
}
