package analysis

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/danudenny/geoapi-saas/internal/core/model"
)

// Upload is the loading/error/result state of the current analysis. Each
// attempt gets a generation; only the newest one may write results.
type Upload struct {
	Generation  uint64                `json:"generation"`
	Loading     bool                  `json:"loading"`
	Error       string                `json:"error,omitempty"`
	Results     []model.OverlapResult `json:"results"`
	HasResults  bool                  `json:"has_results"`
	Filename    string                `json:"filename,omitempty"`
	Fingerprint string                `json:"fingerprint,omitempty"`
	FinishedAt  time.Time             `json:"finished_at,omitzero"`
}

// Begin starts a new attempt: loading on, error and results cleared.
func (u *Upload) Begin(filename, fingerprint string) uint64 {
	u.Generation++
	u.Loading = true
	u.Error = ""
	u.Results = nil
	u.HasResults = false
	u.Filename = filename
	u.Fingerprint = fingerprint
	u.FinishedAt = time.Time{}
	return u.Generation
}

// Finish records the outcome of attempt gen. It reports false and changes
// nothing when a newer attempt or a teardown has superseded gen.
func (u *Upload) Finish(gen uint64, results []model.OverlapResult, err error, now time.Time) bool {
	if gen != u.Generation {
		return false
	}
	u.Loading = false
	u.FinishedAt = now
	if err != nil {
		u.Error = err.Error()
		u.Results = nil
		u.HasResults = false
		return true
	}
	if results == nil {
		results = []model.OverlapResult{}
	}
	u.Results = results
	u.HasResults = true
	return true
}

// Abandon invalidates any in-flight attempt and clears the loading flag.
func (u *Upload) Abandon() {
	u.Generation++
	u.Loading = false
}

// Fingerprint identifies upload content in logs and events.
func Fingerprint(content []byte) string {
	return strconv.FormatUint(xxhash.Sum64(content), 16)
}
