package results

import (
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/danudenny/geoapi-saas/internal/core/model"
)

func makeRows(n int) []model.OverlapResult {
	out := make([]model.OverlapResult, n)
	for i := range out {
		et := model.MinorOverlap
		if i%3 == 0 {
			et = model.MajorOverlap
		}
		out[i] = model.OverlapResult{FeatureID: i + 1, ErrorType: et, OverlapPercentage: float64(i % 100)}
	}
	return out
}

func ids(rows []model.OverlapResult) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r.FeatureID
	}
	return out
}

func isPrefix(prefix, full []model.OverlapResult) bool {
	if len(prefix) > len(full) {
		return false
	}
	return slices.Equal(ids(prefix), ids(full[:len(prefix)]))
}

func TestSetFilter_ExactSubsetWithAND(t *testing.T) {
	all := makeRows(57)
	filters := []model.FilterCriteria{
		{},
		{ErrorType: "major_overlap"},
		{ErrorType: "minor_overlap"},
		{FeatureID: "1"},
		{FeatureID: "2", ErrorType: "major_overlap"},
		{FeatureID: "999"},
		{ErrorType: "nope"},
	}
	for _, f := range filters {
		e := New(all)
		e.SetFilter(f)

		var want []int
		for _, r := range all {
			okType := f.ErrorType == "" || string(r.ErrorType) == f.ErrorType
			okID := f.FeatureID == "" || strings.Contains(strconv.Itoa(r.FeatureID), f.FeatureID)
			if okType && okID {
				want = append(want, r.FeatureID)
			}
		}
		if got := ids(e.Filtered()); !slices.Equal(got, want) && !(len(got) == 0 && len(want) == 0) {
			t.Fatalf("filter %+v: got %v want %v", f, got, want)
		}
	}
}

func TestSetFilter_ResetsWindowToFirstPage(t *testing.T) {
	e := New(makeRows(57))
	e.LoadMore()
	e.LoadMore()
	if len(e.Visible()) != 30 {
		t.Fatalf("visible=%d want 30", len(e.Visible()))
	}

	e.SetFilter(model.FilterCriteria{ErrorType: "major_overlap"})
	if len(e.Visible()) != PageSize || !isPrefix(e.Visible(), e.Filtered()) {
		t.Fatalf("visible=%v not first page of %v", ids(e.Visible()), ids(e.Filtered()))
	}

	e.SetFilter(model.FilterCriteria{FeatureID: "5"})
	// 5, 15, 25, 35, 45, 50..57 -> more than 10 matches
	if len(e.Visible()) != PageSize {
		t.Fatalf("visible=%d want %d", len(e.Visible()), PageSize)
	}

	e.SetFilter(model.FilterCriteria{FeatureID: "57"})
	if got := ids(e.Visible()); !slices.Equal(got, []int{57}) {
		t.Fatalf("visible=%v want [57]", got)
	}
}

func TestLoadMore_WindowIsGrowingPrefix(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 50; trial++ {
		e := New(makeRows(r.IntN(80)))
		if r.IntN(2) == 0 {
			e.SetFilter(model.FilterCriteria{ErrorType: "minor_overlap"})
		}
		prev := len(e.Visible())
		for step := 0; step < 12; step++ {
			added := e.LoadMore()
			cur := len(e.Visible())
			if cur < prev || cur > len(e.Filtered()) || !isPrefix(e.Visible(), e.Filtered()) {
				t.Fatalf("trial %d step %d: bad window len=%d prev=%d filtered=%d", trial, step, cur, prev, len(e.Filtered()))
			}
			if cur-prev != len(added) || len(added) > PageSize {
				t.Fatalf("trial %d step %d: appended %d, window grew %d", trial, step, len(added), cur-prev)
			}
			prev = cur
		}
	}
}

func TestLoadMore_IdempotentAtEnd(t *testing.T) {
	e := New(makeRows(12))
	if got := e.LoadMore(); len(got) != 2 {
		t.Fatalf("appended=%d want 2", len(got))
	}
	if got := e.LoadMore(); got != nil {
		t.Fatalf("appended at end=%v", ids(got))
	}
	if len(e.Visible()) != 12 || e.HasMore() {
		t.Fatalf("visible=%d hasMore=%v", len(e.Visible()), e.HasMore())
	}
}

func TestOnScroll_Threshold(t *testing.T) {
	e := New(makeRows(40))
	if got := e.OnScroll(50); got != nil {
		t.Fatalf("loaded at threshold distance")
	}
	if got := e.OnScroll(49.9); len(got) != PageSize {
		t.Fatalf("appended=%d want %d", len(got), PageSize)
	}
}

func TestSelection_SurvivesFilterChanges(t *testing.T) {
	e := New(makeRows(30))
	if !e.Toggle(4) {
		t.Fatalf("toggle on returned false")
	}
	e.SetFilter(model.FilterCriteria{ErrorType: "major_overlap"}) // 4 is id index 3 -> major
	e.SetFilter(model.FilterCriteria{ErrorType: "minor_overlap"}) // 4 filtered out
	if !e.IsSelected(4) {
		t.Fatalf("selection lost while filtered out")
	}
	e.SetFilter(model.FilterCriteria{})
	if !e.IsSelected(4) || e.SelectedCount() != 1 {
		t.Fatalf("selection lost after re-include")
	}
	if e.Toggle(4) || e.IsSelected(4) {
		t.Fatalf("toggle off failed")
	}
}

func TestSelectAll_OverwritesOnlyVisible(t *testing.T) {
	e := New(makeRows(25))
	e.Toggle(22) // outside first page
	e.Toggle(3)

	e.SelectAll(true)
	if !e.AllVisibleSelected() {
		t.Fatalf("header checkbox not checked")
	}
	if e.SelectedCount() != 11 {
		t.Fatalf("selected=%d want 11", e.SelectedCount())
	}

	e.SelectAll(false)
	if e.IsSelected(3) {
		t.Fatalf("visible id still selected")
	}
	if !e.IsSelected(22) {
		t.Fatalf("id outside window was overwritten")
	}
	if e.AllVisibleSelected() {
		t.Fatalf("header checkbox still checked")
	}
}

func TestAllVisibleSelected_EmptyWindow(t *testing.T) {
	e := New(nil)
	e.SelectAll(true)
	if e.AllVisibleSelected() || e.SelectedCount() != 0 {
		t.Fatalf("empty engine reports selection")
	}
}

func TestRows_ByMode(t *testing.T) {
	e := New(makeRows(20))
	e.Toggle(9)
	e.Toggle(2)
	e.SetFilter(model.FilterCriteria{ErrorType: "major_overlap"})

	if len(e.Rows(model.ViewAll)) != 20 {
		t.Fatalf("all=%d", len(e.Rows(model.ViewAll)))
	}
	if got := ids(e.Rows(model.ViewFiltered)); !slices.Equal(got, ids(e.Filtered())) {
		t.Fatalf("filtered=%v", got)
	}
	if got := ids(e.Rows(model.ViewSelected)); !slices.Equal(got, []int{2, 9}) {
		t.Fatalf("selected=%v want [2 9]", got)
	}
}

func TestSnapshotRestore_RoundTripsWindowAndSelection(t *testing.T) {
	all := makeRows(45)
	e := New(all)
	e.SetFilter(model.FilterCriteria{ErrorType: "minor_overlap"})
	e.LoadMore()
	e.Toggle(2)
	e.Toggle(44)

	r := Restore(all, e.Snapshot())
	if !slices.Equal(ids(r.Visible()), ids(e.Visible())) {
		t.Fatalf("visible %v want %v", ids(r.Visible()), ids(e.Visible()))
	}
	if !r.IsSelected(2) || !r.IsSelected(44) || r.SelectedCount() != 2 {
		t.Fatalf("selection not restored")
	}
	if r.Filter() != e.Filter() {
		t.Fatalf("filter=%+v", r.Filter())
	}
}

func TestFind(t *testing.T) {
	e := New(makeRows(5))
	if r, ok := e.Find(3); !ok || r.FeatureID != 3 {
		t.Fatalf("find 3: %+v %v", r, ok)
	}
	if _, ok := e.Find(99); ok {
		t.Fatalf("found missing id")
	}
}
