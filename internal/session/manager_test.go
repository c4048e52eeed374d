package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/danudenny/geoapi-saas/internal/cache"
	"github.com/danudenny/geoapi-saas/internal/cache/memstore"
	"github.com/danudenny/geoapi-saas/internal/cache/redisstore"
	"github.com/danudenny/geoapi-saas/internal/core/model"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newMemManager() *Manager {
	return NewManager(memstore.New(64, time.Minute), time.Minute, time.Second, quietLogger())
}

func newRedisManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return NewManager(rc, 10*time.Minute, time.Second, quietLogger()), mr
}

func TestManager_UnknownIDYieldsFreshState(t *testing.T) {
	m := newMemManager()
	s, err := m.Get(context.Background(), "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.ID != "abc" || s.Upload.HasResults || s.Map.Basemap != "osm" || !s.Map.Legend {
		t.Fatalf("fresh state=%+v", s)
	}
}

func TestManager_UpdatePersistsAcrossStores(t *testing.T) {
	redisMgr, mr := newRedisManager(t)
	for name, m := range map[string]*Manager{"memory": newMemManager(), "redis": redisMgr} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := m.Update(ctx, "s1", func(s *State) error {
				gen := s.Upload.Begin("a.geojson", "fp")
				s.Upload.Finish(gen, []model.OverlapResult{
					{FeatureID: 1, ErrorType: model.MajorOverlap, Geometry: `{"type":"Point","coordinates":[1,2]}`},
					{FeatureID: 2, ErrorType: model.MinorOverlap},
				}, nil, time.Now())
				e := s.Engine()
				e.Toggle(2)
				e.SetFilter(model.FilterCriteria{ErrorType: "minor_overlap"})
				s.Save(e)
				return nil
			})
			if err != nil {
				t.Fatalf("update: %v", err)
			}

			got, err := m.Get(ctx, "s1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if len(got.Upload.Results) != 2 || got.Upload.Results[0].Geometry != `{"type":"Point","coordinates":[1,2]}` {
				t.Fatalf("results not persisted: %+v", got.Upload.Results)
			}
			e := got.Engine()
			if !e.IsSelected(2) || len(e.Filtered()) != 1 {
				t.Fatalf("table not persisted: %+v", got.Table)
			}
		})
	}
	if mr.TTL("overlap-dashboard:session:s1") <= 0 {
		t.Fatalf("redis session key has no ttl")
	}
}

func TestManager_FailedUpdateSavesNothing(t *testing.T) {
	m := newMemManager()
	ctx := context.Background()
	boom := errors.New("boom")
	_, err := m.Update(ctx, "s1", func(s *State) error {
		s.Map.ToggleLegend()
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	s, _ := m.Get(ctx, "s1")
	if !s.Map.Legend {
		t.Fatalf("failed update was saved")
	}
}

func TestManager_UpdatesAreSerializedPerSession(t *testing.T) {
	m := newMemManager()
	ctx := context.Background()
	// An unsaved session gets a fresh clock-seeded generation on every load.
	base, err := m.Update(ctx, "s1", func(*State) error { return nil })
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Update(ctx, "s1", func(s *State) error {
				s.Upload.Begin("f", "fp")
				return nil
			})
		}()
	}
	wg.Wait()

	s, _ := m.Get(ctx, "s1")
	if s.Upload.Generation != base.Upload.Generation+40 {
		t.Fatalf("generation=%d want %d (lost updates)", s.Upload.Generation, base.Upload.Generation+40)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.locks) != 0 {
		t.Fatalf("lock table leaked %d entries", len(m.locks))
	}
}

func TestManager_DeleteDropsLateUpload(t *testing.T) {
	m := newMemManager()
	ctx := context.Background()
	var gen uint64
	_, _ = m.Update(ctx, "s1", func(s *State) error {
		gen = s.Upload.Begin("a.geojson", "fp")
		return nil
	})
	if err := m.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	time.Sleep(time.Millisecond)
	s, _ := m.Update(ctx, "s1", func(s *State) error {
		if s.Upload.Finish(gen, []model.OverlapResult{{FeatureID: 1}}, nil, time.Now()) {
			t.Errorf("late response accepted after delete")
		}
		return nil
	})
	if s.Upload.HasResults {
		t.Fatalf("results appeared after delete")
	}
}

func TestState_ResetKeepsPreferencesAndAbandons(t *testing.T) {
	s := NewState("x", time.Now())
	gen := s.Upload.Begin("a", "fp")
	_ = s.Map.SwitchBasemap("cartodb_dark")
	s.Map.OpenRow(3)
	s.Table.Selected = map[int]bool{3: true}

	s.Reset()
	if s.Upload.Loading || s.Upload.Finish(gen, nil, nil, time.Now()) {
		t.Fatalf("in-flight upload not abandoned")
	}
	if s.Map.Open || s.Map.Basemap != "cartodb_dark" || len(s.Table.Selected) != 0 {
		t.Fatalf("reset state=%+v", s)
	}
}

type failingStore struct{ cache.Interface }

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
func (failingStore) Ping(context.Context) error                  { return errors.New("down") }

func TestManager_StoreErrorsPropagate(t *testing.T) {
	m := NewManager(failingStore{}, time.Minute, time.Second, quietLogger())
	if _, err := m.Get(context.Background(), "s"); err == nil {
		t.Fatalf("expected load error")
	}
	if err := m.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error")
	}
}
