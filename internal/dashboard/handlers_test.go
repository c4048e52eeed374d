package dashboard

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/danudenny/geoapi-saas/internal/analysis"
	"github.com/danudenny/geoapi-saas/internal/templates"
)

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func newTestServer(t *testing.T, chk analysis.Checker) *client {
	t.Helper()
	svc := newTestService(chk, nil)
	rnd, err := templates.New()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	r := chi.NewRouter()
	NewHandler(svc, rnd, quietLogger(), 1<<20).Routes(r)
	NewAPIHandler(svc).RegisterRoutes(humachi.New(r, huma.DefaultConfig("test", "1.0.0")))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("jar: %v", err)
	}
	return &client{t: t, base: srv.URL, http: &http.Client{Jar: jar}}
}

func (c *client) do(method, path, contentType string, body io.Reader) (int, string) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		c.t.Fatalf("request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func (c *client) post(path, signals string) string {
	c.t.Helper()
	code, body := c.do(http.MethodPost, path, "application/json", strings.NewReader(signals))
	if code != http.StatusOK {
		c.t.Fatalf("POST %s status=%d body=%s", path, code, body)
	}
	return body
}

func (c *client) upload(filename string, content []byte) string {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(analysis.FormField, filename)
	if err != nil {
		c.t.Fatalf("form: %v", err)
	}
	_, _ = fw.Write(content)
	_ = mw.Close()
	code, body := c.do(http.MethodPost, "/ui/upload", mw.FormDataContentType(), &buf)
	if code != http.StatusOK {
		c.t.Fatalf("upload status=%d body=%s", code, body)
	}
	return body
}

func (c *client) getJSON(path string, out any) int {
	c.t.Helper()
	code, body := c.do(http.MethodGet, path, "", nil)
	if code == http.StatusOK && out != nil {
		if err := json.Unmarshal([]byte(body), out); err != nil {
			c.t.Fatalf("decode %s: %v\n%s", path, err, body)
		}
	}
	return code
}

func mustContain(t *testing.T, body string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(body, w) {
			t.Fatalf("response missing %q:\n%s", w, body)
		}
	}
}

func TestIndex_IssuesSessionCookie(t *testing.T) {
	c := newTestServer(t, &fakeChecker{})
	code, body := c.do(http.MethodGet, "/", "", nil)
	if code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	mustContain(t, body, "GeoJSON Overlap Analysis", `accept=".geojson"`, `id="map-overlay"`, "map-open")

	cookies := c.http.Jar.Cookies(mustURL(t, c.base))
	if len(cookies) != 1 || cookies[0].Name != CookieName || cookies[0].Value == "" {
		t.Fatalf("cookies=%v", cookies)
	}
}

func TestUploadFlow_OverSSE(t *testing.T) {
	c := newTestServer(t, &fakeChecker{rows: fixture(12)})

	body := c.upload("parcels.geojson", []byte(`{"type":"FeatureCollection","features":[]}`))
	mustContain(t, body,
		"datastar-patch-elements",
		"Analyzing...",
		"map-close",
		`id="stats-cards"`,
		"Total Features",
		"Showing 10 of 12 results",
		`id="row-10"`,
	)
	if strings.Contains(body, `id="row-11"`) {
		t.Fatalf("first page rendered more than 10 rows")
	}

	body = c.post("/ui/filter", `{"errortype":"major_overlap","featureid":""}`)
	mustContain(t, body, "Showing 6 of 6 results", `id="row-11"`)

	body = c.post("/ui/filter", `{"errortype":"","featureid":"1"}`)
	mustContain(t, body, "Showing 4 of 4 results", `id="row-12"`)

	c.post("/ui/filter", `{"errortype":"","featureid":""}`)
	body = c.post("/ui/scroll", `{"distance":500}`)
	if strings.Contains(body, "row-11") {
		t.Fatalf("far scroll appended rows:\n%s", body)
	}
	body = c.post("/ui/scroll", `{"distance":12}`)
	mustContain(t, body, "mode append", `id="row-11"`, `id="row-12"`, "Showing 12 of 12 results")

	body = c.post("/ui/select/4", `{}`)
	mustContain(t, body, `id="row-4"`, "View Selected on Map (1)")

	body = c.post("/ui/select-all?checked=true", `{}`)
	mustContain(t, body, "View Selected on Map (12)")

	body = c.post("/ui/map/row/4", `{}`)
	mustContain(t, body, "Feature 4", "map-open", "overlap-data")

	body = c.post("/ui/map/legend", `{}`)
	mustContain(t, body, "Show Legend")

	body = c.post("/ui/map/basemap/cartodb_dark", `{}`)
	mustContain(t, body, "CartoDB Dark", "map-open")

	body = c.post("/ui/map/close", `{}`)
	mustContain(t, body, "map-close", "hidden")

	body = c.post("/ui/reset", `{}`)
	mustContain(t, body, "map-close", `id="upload-panel"`)
	if strings.Contains(body, "stats-cards") {
		t.Fatalf("reset still renders stats")
	}
}

func TestUpload_ErrorRendered(t *testing.T) {
	c := newTestServer(t, &fakeChecker{err: &analysis.ApplicationError{Message: "Invalid GeoJSON format"}})
	body := c.upload("bad.geojson", []byte("{}"))
	mustContain(t, body, "Error: Invalid GeoJSON format")
}

func TestUpload_MissingFile(t *testing.T) {
	c := newTestServer(t, &fakeChecker{})
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "x")
	_ = mw.Close()
	code, body := c.do(http.MethodPost, "/ui/upload", mw.FormDataContentType(), &buf)
	if code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	mustContain(t, body, "datastar-patch-signals", "Please choose a GeoJSON file")
}

func TestMapRoutes_RejectUnknownInputs(t *testing.T) {
	c := newTestServer(t, &fakeChecker{rows: fixture(2)})
	if code, _ := c.do(http.MethodPost, "/ui/map/everything", "", nil); code != http.StatusNotFound {
		t.Fatalf("unknown mode status=%d", code)
	}
	if code, _ := c.do(http.MethodPost, "/ui/map/basemap/mars", "", nil); code != http.StatusNotFound {
		t.Fatalf("unknown basemap status=%d", code)
	}
	if code, _ := c.do(http.MethodPost, "/ui/select/abc", "", nil); code != http.StatusBadRequest {
		t.Fatalf("bad id status=%d", code)
	}
}

func TestAPI_SessionViews(t *testing.T) {
	c := newTestServer(t, &fakeChecker{rows: fixture(12)})

	var bm struct {
		Default  string `json:"default"`
		Basemaps []struct {
			Key string `json:"key"`
		} `json:"basemaps"`
	}
	if code := c.getJSON("/api/v1/basemaps", &bm); code != http.StatusOK || bm.Default != "osm" || len(bm.Basemaps) != 5 {
		t.Fatalf("basemaps code=%d body=%+v", code, bm)
	}

	c.do(http.MethodGet, "/", "", nil)
	if code := c.getJSON("/api/v1/session/map", nil); code != http.StatusConflict {
		t.Fatalf("map before upload status=%d", code)
	}
	c.upload("parcels.geojson", []byte("{}"))

	var sess SessionBody
	if code := c.getJSON("/api/v1/session", &sess); code != http.StatusOK || sess.Total != 12 || sess.Visible != 10 || !sess.HasResults {
		t.Fatalf("session code=%d %+v", code, sess)
	}

	var res struct {
		Total   int `json:"total"`
		Results []struct {
			FeatureID int `json:"feature_id"`
		} `json:"results"`
	}
	if code := c.getJSON("/api/v1/session/results?offset=10&limit=5", &res); code != http.StatusOK || res.Total != 12 || len(res.Results) != 2 || res.Results[0].FeatureID != 11 {
		t.Fatalf("results code=%d %+v", code, res)
	}

	var st struct {
		Summary struct {
			Total int `json:"total"`
			Major int `json:"major"`
		} `json:"summary"`
		Cards []struct {
			Title string `json:"title"`
		} `json:"cards"`
	}
	if code := c.getJSON("/api/v1/session/stats", &st); code != http.StatusOK || st.Summary.Total != 12 || st.Summary.Major != 6 || len(st.Cards) != 6 {
		t.Fatalf("stats code=%d %+v", code, st)
	}

	var mp struct {
		SourceID string `json:"source_id"`
		GeoJSON  struct {
			Features []json.RawMessage `json:"features"`
		} `json:"geojson"`
	}
	if code := c.getJSON("/api/v1/session/map?mode=all", &mp); code != http.StatusOK || mp.SourceID != "overlap-data" || len(mp.GeoJSON.Features) != 12 {
		t.Fatalf("map code=%d source=%q n=%d", code, mp.SourceID, len(mp.GeoJSON.Features))
	}

	var hs struct {
		Hotspots []struct {
			Count int `json:"count"`
		} `json:"hotspots"`
		GeoJSON struct {
			Type string `json:"type"`
		} `json:"geojson"`
	}
	if code := c.getJSON("/api/v1/session/hotspots?res=6", &hs); code != http.StatusOK || len(hs.Hotspots) == 0 || hs.GeoJSON.Type != "FeatureCollection" {
		t.Fatalf("hotspots code=%d %+v", code, hs)
	}
	if code := c.getJSON("/api/v1/session/hotspots?res=20", nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("res=20 status=%d", code)
	}
	for _, path := range []string{"/api/v1/session/map?mode=everything", "/api/v1/session/hotspots?mode=everything"} {
		if code := c.getJSON(path, nil); code != http.StatusUnprocessableEntity {
			t.Fatalf("%s status=%d want 422", path, code)
		}
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	return u
}
