package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/danudenny/geoapi-saas/internal/basemap"
	"github.com/danudenny/geoapi-saas/internal/core/model"
	"github.com/danudenny/geoapi-saas/internal/logger"
	h3mapper "github.com/danudenny/geoapi-saas/internal/mapper/h3"
	"github.com/danudenny/geoapi-saas/internal/mapview"
	"github.com/danudenny/geoapi-saas/internal/stats"
)

// APIHandler exposes read-only views of a session as JSON. The session is
// taken from the same cookie the page uses.
type APIHandler struct {
	svc *Service
}

func NewAPIHandler(svc *Service) *APIHandler {
	return &APIHandler{svc: svc}
}

func (h *APIHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/basemaps", h.ListBasemaps, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/session", h.GetSession, huma.OperationTags("session"))
	huma.Get(api, "/api/v1/session/results", h.ListResults, huma.OperationTags("session"))
	huma.Get(api, "/api/v1/session/stats", h.GetStats, huma.OperationTags("session"))
	huma.Get(api, "/api/v1/session/map", h.GetMap, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/session/hotspots", h.GetHotspots, huma.OperationTags("map"))
}

type EmptyInput struct{}

type BasemapsOutput struct {
	Body struct {
		Default  string            `json:"default"`
		Basemaps []basemap.Basemap `json:"basemaps"`
	}
}

func (h *APIHandler) ListBasemaps(ctx context.Context, _ *EmptyInput) (*BasemapsOutput, error) {
	out := &BasemapsOutput{}
	out.Body.Default = basemap.Default
	out.Body.Basemaps = basemap.All()
	return out, nil
}

type SessionInput struct {
	Session string `cookie:"overlap_session" doc:"Dashboard session id"`
}

type SessionBody struct {
	ID          string               `json:"id"`
	Loading     bool                 `json:"loading"`
	Error       string               `json:"error,omitempty"`
	HasResults  bool                 `json:"has_results"`
	Filename    string               `json:"filename,omitempty"`
	Fingerprint string               `json:"fingerprint,omitempty"`
	Total       int                  `json:"total"`
	Filtered    int                  `json:"filtered"`
	Visible     int                  `json:"visible"`
	Selected    int                  `json:"selected"`
	Filter      model.FilterCriteria `json:"filter"`
	Map         mapview.View         `json:"map"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

type SessionOutput struct {
	Body SessionBody
}

func (h *APIHandler) GetSession(ctx context.Context, in *SessionInput) (*SessionOutput, error) {
	ctx = logger.WithSession(ctx, in.Session)
	st, err := h.svc.State(ctx, in.Session)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("session store unavailable", err)
	}
	e := st.Engine()
	return &SessionOutput{Body: SessionBody{
		ID:          st.ID,
		Loading:     st.Upload.Loading,
		Error:       st.Upload.Error,
		HasResults:  st.Upload.HasResults,
		Filename:    st.Upload.Filename,
		Fingerprint: st.Upload.Fingerprint,
		Total:       len(e.All()),
		Filtered:    len(e.Filtered()),
		Visible:     len(e.Visible()),
		Selected:    e.SelectedCount(),
		Filter:      e.Filter(),
		Map:         st.Map,
		UpdatedAt:   st.UpdatedAt,
	}}, nil
}

type ResultsInput struct {
	Session string `cookie:"overlap_session" doc:"Dashboard session id"`
	Scope   string `query:"scope" enum:"all,filtered" default:"filtered" doc:"Rows to page over"`
	Offset  int    `query:"offset" minimum:"0" default:"0"`
	Limit   int    `query:"limit" minimum:"1" maximum:"500" default:"50"`
}

type ResultsOutput struct {
	Body struct {
		Total   int                   `json:"total"`
		Offset  int                   `json:"offset"`
		Results []model.OverlapResult `json:"results"`
	}
}

func (h *APIHandler) ListResults(ctx context.Context, in *ResultsInput) (*ResultsOutput, error) {
	ctx = logger.WithSession(ctx, in.Session)
	st, err := h.svc.State(ctx, in.Session)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("session store unavailable", err)
	}
	e := st.Engine()
	rows := e.Filtered()
	if in.Scope == "all" {
		rows = e.All()
	}
	out := &ResultsOutput{}
	out.Body.Total = len(rows)
	out.Body.Offset = in.Offset
	start := min(in.Offset, len(rows))
	end := min(start+in.Limit, len(rows))
	out.Body.Results = rows[start:end]
	return out, nil
}

type StatsOutput struct {
	Body struct {
		Summary stats.Summary `json:"summary"`
		Cards   []stats.Card  `json:"cards"`
	}
}

func (h *APIHandler) GetStats(ctx context.Context, in *SessionInput) (*StatsOutput, error) {
	ctx = logger.WithSession(ctx, in.Session)
	st, err := h.svc.State(ctx, in.Session)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("session store unavailable", err)
	}
	out := &StatsOutput{}
	out.Body.Summary = stats.Compute(st.Upload.Results)
	out.Body.Cards = stats.Cards(out.Body.Summary)
	return out, nil
}

type MapInput struct {
	Session string `cookie:"overlap_session" doc:"Dashboard session id"`
	Mode    string `query:"mode" enum:"all,filtered,selected" default:"all"`
}

type MapOutput struct {
	Body mapview.Payload
}

func (h *APIHandler) GetMap(ctx context.Context, in *MapInput) (*MapOutput, error) {
	ctx = logger.WithSession(ctx, in.Session)
	p, err := h.svc.MapPayload(ctx, in.Session, model.ViewMode(in.Mode))
	if err != nil {
		return nil, apiError(err)
	}
	return &MapOutput{Body: p}, nil
}

type HotspotsInput struct {
	Session string `cookie:"overlap_session" doc:"Dashboard session id"`
	Mode    string `query:"mode" enum:"all,filtered,selected" default:"all"`
	Res     int    `query:"res" minimum:"-1" maximum:"15" default:"-1" doc:"H3 resolution, -1 for the server default"`
}

type HotspotsOutput struct {
	Body struct {
		Hotspots []h3mapper.Hotspot        `json:"hotspots"`
		GeoJSON  *geojson.FeatureCollection `json:"geojson"`
	}
}

func (h *APIHandler) GetHotspots(ctx context.Context, in *HotspotsInput) (*HotspotsOutput, error) {
	ctx = logger.WithSession(ctx, in.Session)
	hs, err := h.svc.Hotspots(ctx, in.Session, model.ViewMode(in.Mode), in.Res)
	if err != nil {
		return nil, apiError(err)
	}
	fc, err := h3mapper.HotspotCollection(hs)
	if err != nil {
		return nil, huma.Error500InternalServerError("render hotspots", err)
	}
	out := &HotspotsOutput{}
	out.Body.Hotspots = hs
	out.Body.GeoJSON = fc
	return out, nil
}

func apiError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidMode):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, ErrNoResults):
		return huma.Error409Conflict("no analysis results in this session")
	case IsGeometryError(err):
		return huma.Error422UnprocessableEntity(err.Error())
	default:
		return huma.Error500InternalServerError("request failed", err)
	}
}
