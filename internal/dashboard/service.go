// Package dashboard wires the overlap dashboard actions to session state and
// serves them as Datastar SSE endpoints and a JSON API.
package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/danudenny/geoapi-saas/internal/analysis"
	"github.com/danudenny/geoapi-saas/internal/core/model"
	"github.com/danudenny/geoapi-saas/internal/core/observability"
	"github.com/danudenny/geoapi-saas/internal/events"
	h3mapper "github.com/danudenny/geoapi-saas/internal/mapper/h3"
	"github.com/danudenny/geoapi-saas/internal/mapview"
	"github.com/danudenny/geoapi-saas/internal/projection"
	"github.com/danudenny/geoapi-saas/internal/results"
	"github.com/danudenny/geoapi-saas/internal/session"
)

var (
	ErrRowNotFound = errors.New("row not found")
	ErrNoResults   = errors.New("no results loaded")
	ErrMapClosed   = errors.New("map is not open")
	ErrInvalidMode = errors.New("invalid view mode")
)

type Options struct {
	HotspotRes int
	Now        func() time.Time
}

// Service runs every dashboard action against one session. The session
// manager serializes actions per session.
type Service struct {
	sessions *session.Manager
	checker  analysis.Checker
	events   events.Publisher
	mapper   *h3mapper.Mapper
	logger   *slog.Logger

	hotspotRes int
	now        func() time.Time
}

func NewService(sessions *session.Manager, checker analysis.Checker, pub events.Publisher, logger *slog.Logger, opts Options) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		sessions:   sessions,
		checker:    checker,
		events:     pub,
		mapper:     h3mapper.New(),
		logger:     logger,
		hotspotRes: opts.HotspotRes,
		now:        opts.Now,
	}
}

func (s *Service) State(ctx context.Context, sid string) (session.State, error) {
	return s.sessions.Get(ctx, sid)
}

// Upload runs one analysis attempt. started is called with the loading state
// before the upstream call. A response that arrives after a newer upload or a
// reset is dropped.
func (s *Service) Upload(ctx context.Context, sid, filename string, content []byte, started func(session.State)) (session.State, error) {
	fp := analysis.Fingerprint(content)
	var gen uint64
	st, err := s.sessions.Update(ctx, sid, func(st *session.State) error {
		gen = st.Upload.Begin(filename, fp)
		st.Table = results.Snapshot{}
		st.Map.Close()
		return nil
	})
	if err != nil {
		return st, err
	}
	if started != nil {
		started(st)
	}

	log := s.logger.With("file", filename, "fingerprint", fp)
	start := s.now()
	rows, callErr := s.checker.CheckOverlap(ctx, filename, bytes.NewReader(content))

	// The browser may be gone; the loading flag must still be cleared.
	var applied bool
	st, err = s.sessions.Update(context.WithoutCancel(ctx), sid, func(st *session.State) error {
		applied = st.Upload.Finish(gen, rows, callErr, s.now())
		if applied && callErr == nil {
			st.Save(results.New(st.Upload.Results))
		}
		return nil
	})
	if err != nil {
		return st, err
	}

	outcome := analysis.Outcome(callErr)
	if !applied {
		outcome = "stale"
		log.InfoContext(ctx, "analysis response superseded", "generation", gen)
	}
	observability.IncUpload(outcome)
	if callErr != nil {
		log.WarnContext(ctx, "analysis failed", "outcome", outcome, "err", callErr)
	} else {
		observability.ObserveUploadFeatures(len(rows))
		log.InfoContext(ctx, "analysis completed", "rows", len(rows), "applied", applied)
	}
	s.events.Publish(completedEvent(sid, filename, fp, outcome, rows, s.now().Sub(start), s.now()))
	return st, nil
}

func completedEvent(sid, filename, fp, outcome string, rows []model.OverlapResult, took time.Duration, now time.Time) events.Event {
	ev := events.Event{
		Type:        events.TypeAnalysisCompleted,
		SessionID:   sid,
		Fingerprint: fp,
		Filename:    filename,
		Outcome:     outcome,
		Features:    len(rows),
		DurationMS:  took.Milliseconds(),
		TS:          now.UTC(),
	}
	for _, r := range rows {
		switch r.ErrorType {
		case model.MajorOverlap:
			ev.Major++
		case model.MinorOverlap:
			ev.Minor++
		}
	}
	return ev
}

// withEngine runs fn on the session's result engine and saves the table.
func (s *Service) withEngine(ctx context.Context, sid string, fn func(*session.State, *results.Engine) error) (session.State, error) {
	return s.sessions.Update(ctx, sid, func(st *session.State) error {
		e := st.Engine()
		if err := fn(st, e); err != nil {
			return err
		}
		st.Save(e)
		return nil
	})
}

// Filter replaces the criteria and resets the window to the first page.
func (s *Service) Filter(ctx context.Context, sid string, f model.FilterCriteria) (session.State, error) {
	return s.withEngine(ctx, sid, func(_ *session.State, e *results.Engine) error {
		e.SetFilter(f)
		return nil
	})
}

// Scroll loads the next page when the list bottom is near and returns the
// appended rows.
func (s *Service) Scroll(ctx context.Context, sid string, distance float64) (session.State, []model.OverlapResult, error) {
	var page []model.OverlapResult
	st, err := s.withEngine(ctx, sid, func(_ *session.State, e *results.Engine) error {
		page = e.OnScroll(distance)
		return nil
	})
	return st, page, err
}

func (s *Service) LoadMore(ctx context.Context, sid string) (session.State, []model.OverlapResult, error) {
	var page []model.OverlapResult
	st, err := s.withEngine(ctx, sid, func(_ *session.State, e *results.Engine) error {
		page = e.LoadMore()
		return nil
	})
	return st, page, err
}

func (s *Service) Toggle(ctx context.Context, sid string, id int) (session.State, error) {
	return s.withEngine(ctx, sid, func(_ *session.State, e *results.Engine) error {
		if _, ok := e.Find(id); !ok {
			return fmt.Errorf("toggle %d: %w", id, ErrRowNotFound)
		}
		e.Toggle(id)
		return nil
	})
}

func (s *Service) SelectAll(ctx context.Context, sid string, checked bool) (session.State, error) {
	return s.withEngine(ctx, sid, func(_ *session.State, e *results.Engine) error {
		e.SelectAll(checked)
		return nil
	})
}

// ViewRow opens the map on one row. A geometry that cannot be parsed aborts
// the action and leaves the session untouched.
func (s *Service) ViewRow(ctx context.Context, sid string, id int) (session.State, mapview.Payload, error) {
	var p mapview.Payload
	st, err := s.sessions.Update(ctx, sid, func(st *session.State) error {
		r, ok := st.Engine().Find(id)
		if !ok {
			return fmt.Errorf("view %d: %w", id, ErrRowNotFound)
		}
		fc, err := projection.Row(r)
		if err != nil {
			return s.geometryFailed(ctx, "row", err)
		}
		st.Map.OpenRow(id)
		p, err = mapview.Build(st.Map, fc)
		return err
	})
	return st, p, err
}

// ViewCollection opens the map on all, filtered or selected rows.
func (s *Service) ViewCollection(ctx context.Context, sid string, mode model.ViewMode) (session.State, mapview.Payload, error) {
	var p mapview.Payload
	st, err := s.sessions.Update(ctx, sid, func(st *session.State) error {
		if !st.Upload.HasResults {
			return ErrNoResults
		}
		fc, err := projection.Collection(st.Engine().Rows(mode))
		if err != nil {
			return s.geometryFailed(ctx, "collection", err)
		}
		st.Map.OpenCollection(mode)
		p, err = mapview.Build(st.Map, fc)
		return err
	})
	return st, p, err
}

func (s *Service) geometryFailed(ctx context.Context, path string, err error) error {
	var gpe *projection.GeometryParseError
	if errors.As(err, &gpe) {
		observability.IncGeometryParseError(path)
		s.logger.WarnContext(ctx, "geometry parse failed, map action aborted",
			"feature_id", gpe.FeatureID, "err", gpe.Err)
	}
	return err
}

// IsGeometryError reports whether err aborted a map action because of a bad
// geometry.
func IsGeometryError(err error) bool {
	var gpe *projection.GeometryParseError
	return errors.As(err, &gpe)
}

func (s *Service) CloseMap(ctx context.Context, sid string) (session.State, error) {
	return s.sessions.Update(ctx, sid, func(st *session.State) error {
		st.Map.Close()
		return nil
	})
}

// SwitchBasemap changes the basemap. When the map is open the view is rebuilt
// on the new style and its payload returned.
func (s *Service) SwitchBasemap(ctx context.Context, sid, key string) (session.State, *mapview.Payload, error) {
	var p *mapview.Payload
	st, err := s.sessions.Update(ctx, sid, func(st *session.State) error {
		if err := st.Map.SwitchBasemap(key); err != nil {
			return err
		}
		if !st.Map.Open {
			return nil
		}
		fc, err := s.currentCollection(ctx, st)
		if err != nil {
			return err
		}
		built, err := mapview.Build(st.Map, fc)
		if err != nil {
			return err
		}
		p = &built
		return nil
	})
	return st, p, err
}

// currentCollection reprojects whatever the open map shows.
func (s *Service) currentCollection(ctx context.Context, st *session.State) (*geojson.FeatureCollection, error) {
	e := st.Engine()
	if st.Map.Mode == mapview.ModeRow {
		r, ok := e.Find(st.Map.FeatureID)
		if !ok {
			return nil, fmt.Errorf("view %d: %w", st.Map.FeatureID, ErrRowNotFound)
		}
		fc, err := projection.Row(r)
		if err != nil {
			return nil, s.geometryFailed(ctx, "row", err)
		}
		return fc, nil
	}
	mode, err := model.ParseViewMode(st.Map.Mode)
	if err != nil {
		return nil, err
	}
	fc, err := projection.Collection(e.Rows(mode))
	if err != nil {
		return nil, s.geometryFailed(ctx, "collection", err)
	}
	return fc, nil
}

func (s *Service) ToggleLegend(ctx context.Context, sid string) (session.State, error) {
	return s.sessions.Update(ctx, sid, func(st *session.State) error {
		st.Map.ToggleLegend()
		return nil
	})
}

func (s *Service) ToggleSelector(ctx context.Context, sid string) (session.State, error) {
	return s.sessions.Update(ctx, sid, func(st *session.State) error {
		if !st.Map.Open {
			return ErrMapClosed
		}
		st.Map.ToggleSelector()
		return nil
	})
}

// Reset clears results, table and map and abandons any in-flight upload.
func (s *Service) Reset(ctx context.Context, sid string) (session.State, error) {
	return s.sessions.Update(ctx, sid, func(st *session.State) error {
		st.Reset()
		return nil
	})
}

// MapPayload builds the payload for mode without touching the session's map
// view.
func (s *Service) MapPayload(ctx context.Context, sid string, mode model.ViewMode) (mapview.Payload, error) {
	if err := checkMode(mode); err != nil {
		return mapview.Payload{}, err
	}
	st, err := s.sessions.Get(ctx, sid)
	if err != nil {
		return mapview.Payload{}, err
	}
	if !st.Upload.HasResults {
		return mapview.Payload{}, ErrNoResults
	}
	fc, err := projection.Collection(st.Engine().Rows(mode))
	if err != nil {
		return mapview.Payload{}, s.geometryFailed(ctx, "collection", err)
	}
	return mapview.Build(st.Map, fc)
}

// Hotspots counts how many of the mode's rows touch each H3 cell. res < 0
// uses the configured resolution.
func (s *Service) Hotspots(ctx context.Context, sid string, mode model.ViewMode, res int) ([]h3mapper.Hotspot, error) {
	if err := checkMode(mode); err != nil {
		return nil, err
	}
	if res < 0 {
		res = s.hotspotRes
	}
	st, err := s.sessions.Get(ctx, sid)
	if err != nil {
		return nil, err
	}
	if !st.Upload.HasResults {
		return nil, ErrNoResults
	}
	fc, err := projection.Collection(st.Engine().Rows(mode))
	if err != nil {
		return nil, s.geometryFailed(ctx, "collection", err)
	}
	return s.mapper.Hotspots(fc, res)
}

func checkMode(mode model.ViewMode) error {
	if _, err := model.ParseViewMode(string(mode)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMode, err)
	}
	return nil
}
