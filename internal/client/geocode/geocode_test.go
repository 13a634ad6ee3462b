package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"

	"github.com/DALE-GH/location-tracker/pkg/e"
)

func newTestGoogle(t *testing.T, body string) *Google {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "38.84,-77.18", r.URL.Query().Get("latlng"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	g, err := NewGoogle("AIza-test", maps.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return g
}

func TestGoogle_ReverseGeocode(t *testing.T) {
	g := newTestGoogle(t, `{"status":"OK","results":[{"formatted_address":"Falls Church, VA, USA"}]}`)

	addr, err := g.ReverseGeocode(context.Background(), 38.84, -77.18)
	require.NoError(t, err)
	assert.Equal(t, "Falls Church, VA, USA", addr)
}

func TestGoogle_ReverseGeocode_NoResults(t *testing.T) {
	g := newTestGoogle(t, `{"status":"ZERO_RESULTS","results":[]}`)

	_, err := g.ReverseGeocode(context.Background(), 38.84, -77.18)
	assert.Error(t, err)
}

func TestNew_NopWithoutKey(t *testing.T) {
	g, err := New("")
	require.NoError(t, err)
	assert.IsType(t, Nop{}, g)

	_, err = g.ReverseGeocode(context.Background(), 1, 1)
	assert.ErrorIs(t, err, e.ErrNotFound)
}
