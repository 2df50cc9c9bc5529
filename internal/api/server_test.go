package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scavenger/internal/httputil"
	"github.com/banshee-data/scavenger/internal/scavenger"
	"github.com/banshee-data/scavenger/internal/scavenger/l6identity"
	"github.com/banshee-data/scavenger/internal/scavenger/trajectory"
	"github.com/banshee-data/scavenger/internal/testutil"
)

func cellCentre(r scavenger.Region) scavenger.Position {
	var p scavenger.Position
	for _, c := range r {
		p.X += float64(c.X)
		p.Y += float64(c.Y)
	}
	n := float64(len(r))
	return scavenger.Position{X: p.X / n, Y: p.Y / n}
}

func setupTestServer(t *testing.T) (*Server, *l6identity.MemoryRegistry) {
	t.Helper()
	ctx := context.Background()
	reg := l6identity.NewMemoryRegistry()

	require.NoError(t, reg.AppendRegion(ctx, "ie1", "A", 10, scavenger.Region{{X: 1, Y: 1}}))
	require.NoError(t, reg.AddSingleton(ctx, "A"))
	require.NoError(t, reg.AppendRegion(ctx, "ie1", "B", 20, scavenger.Region{{X: 2, Y: 1}}))
	require.NoError(t, reg.AddAlias(ctx, "A", "B"))
	require.NoError(t, reg.AddSingleton(ctx, "C"))

	return NewServer(reg, cellCentre, "run-1"), reg
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, path))
	return w
}

func TestShowCounts(t *testing.T) {
	s, _ := setupTestServer(t)

	w := get(t, s, "/api/counts")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var resp countsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, l6identity.Counts{Total: 2, Singletons: 1, RepeatNonAliased: 0, Aliased: 1}, resp.Counts)
}

func TestShowSummary(t *testing.T) {
	s, _ := setupTestServer(t)

	w := get(t, s, "/api/summary")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []l6identity.SummaryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Equal(t, []l6identity.SummaryEntry{
		{ClaimedID: "A", Seen: 1, Aliases: []string{"B"}},
		{ClaimedID: "C", Seen: 1},
	}, entries)
}

func TestShowSummary_Empty(t *testing.T) {
	s := NewServer(l6identity.NewMemoryRegistry(), nil, "run-2")

	w := get(t, s, "/api/summary")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestShowDevice(t *testing.T) {
	s, _ := setupTestServer(t)

	w := get(t, s, "/api/devices/C")
	require.Equal(t, http.StatusOK, w.Code)
	var entry l6identity.SummaryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, l6identity.SummaryEntry{ClaimedID: "C", Seen: 1}, entry)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/devices/Z").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/devices/").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/devices/C/photos").Code)
}

func TestShowTrack(t *testing.T) {
	s, _ := setupTestServer(t)

	w := get(t, s, "/api/devices/A/track")
	require.Equal(t, http.StatusOK, w.Code)

	var track trajectory.Track
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &track))
	assert.Equal(t, "A", track.ClaimedID)
	assert.Equal(t, []string{"B"}, track.Aliases)
	require.Len(t, track.Raw, 2)
	assert.Equal(t, scavenger.Position{X: 1, Y: 1}, track.Raw[0].Position)
	assert.Equal(t, "B", track.Raw[1].ClaimedID)
	assert.Len(t, track.Smoothed, 2)
}

func TestShowTrack_NoSightings(t *testing.T) {
	s, _ := setupTestServer(t)

	w := get(t, s, "/api/devices/C/track")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body httputil.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "no sightings")
}

func TestShowTrack_NoLayout(t *testing.T) {
	reg := l6identity.NewMemoryRegistry()
	s := NewServer(reg, nil, "run-3")

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/devices/A/track").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := setupTestServer(t)

	for _, path := range []string{"/api/counts", "/api/summary", "/api/devices/A"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		w := httptest.NewRecorder()
		s.ServeMux().ServeHTTP(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, path)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestStatusCodeColor(t *testing.T) {
	assert.Contains(t, statusCodeColor(200), "200")
	assert.Contains(t, statusCodeColor(301), colorYellow)
	assert.Contains(t, statusCodeColor(404), colorBoldRed)
	assert.Equal(t, "100", statusCodeColor(100))
}
