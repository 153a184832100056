package learn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordFetchEMA(t *testing.T) {
	s := Source{AccessibilityScore: 1.0}
	s.RecordFetch(false)
	require.InDelta(t, 0.7, s.AccessibilityScore, 1e-9)
	require.Equal(t, 1, s.FetchFailCount)

	s.RecordFetch(true)
	require.InDelta(t, 0.79, s.AccessibilityScore, 1e-9)
	require.Equal(t, 1, s.FetchSuccessCount)
}

func TestShouldPause(t *testing.T) {
	s := Source{AccessibilityScore: 0.1, FetchFailCount: 7}
	require.True(t, s.ShouldPause())

	s2 := Source{AccessibilityScore: 0.2, FetchFailCount: 7}
	require.False(t, s2.ShouldPause())
}

func TestShouldRetire(t *testing.T) {
	s := Source{Mutable: true, FetchFailCount: 30, FetchSuccessCount: 0}
	require.True(t, s.ShouldRetire())

	immutable := Source{Mutable: false, FetchFailCount: 30, FetchSuccessCount: 0}
	require.False(t, immutable.ShouldRetire())

	contributed := Source{Mutable: true, FetchFailCount: 25, FetchSuccessCount: 5}
	require.False(t, contributed.ShouldRetire())
}

func TestFetchTimeoutByRegion(t *testing.T) {
	cn := Source{Region: RegionCN}
	require.Equal(t, 5e9, float64(cn.FetchTimeout()))

	global := Source{Region: RegionGlobal}
	require.Equal(t, 15e9, float64(global.FetchTimeout()))
}

func TestPrioritizeSourcesIdempotent(t *testing.T) {
	sources := []Source{
		{URL: "a", Region: RegionGlobal, AccessibilityScore: 0.9, QualityScore: 0.9},
		{URL: "b", Region: RegionCN, AccessibilityScore: 0.5, QualityScore: 0.5},
		{URL: "c", Region: RegionGlobal, AccessibilityScore: 0.99, QualityScore: 0.99},
	}
	once := PrioritizeSources(sources)
	twice := PrioritizeSources(once)
	require.Equal(t, once, twice)
	// CN-first.
	require.Equal(t, "b", once[0].URL)
}

func TestNormalizeExtractedRule(t *testing.T) {
	r := ExtractedRule{ID: "foo", Priority: 10}
	normalizeExtractedRule(&r)
	require.Equal(t, "ext_foo", r.ID)
	require.Equal(t, 45, r.Priority)

	r2 := ExtractedRule{ID: "ext_bar", Priority: 90}
	normalizeExtractedRule(&r2)
	require.Equal(t, "ext_bar", r2.ID)
	require.Equal(t, 55, r2.Priority)
}
