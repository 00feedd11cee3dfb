package geocoding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/backstage/services/partyup/config"

	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "Milano", r.URL.Query().Get("q"))
		require.Equal(t, "json", r.URL.Query().Get("format"))
		require.Equal(t, "1", r.URL.Query().Get("addressdetails"))
		require.Equal(t, "3", r.URL.Query().Get("limit"))
		require.Equal(t, "partyup-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`[
			{"display_name":"Milano, Lombardia, Italia","lat":"45.4641943","lon":"9.1896346","address":{"city":"Milano"}},
			{"display_name":"broken","lat":"n/a","lon":"9.1"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(config.GeocodingConfig{BaseURL: srv.URL + "/", UserAgent: "partyup-test", Timeout: time.Second})
	places, err := c.Search(context.Background(), "Milano", 3)

	require.NoError(t, err)
	require.Len(t, places, 1)
	require.Equal(t, "Milano", places[0].Address["city"])
	require.InDelta(t, 45.4641943, places[0].Lat, 1e-7)
	require.InDelta(t, 9.1896346, places[0].Lon, 1e-7)
}

func TestFirstWithoutMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(config.GeocodingConfig{BaseURL: srv.URL, UserAgent: "partyup-test", Timeout: time.Second})
	place, err := First(context.Background(), c, "nowhere")

	require.NoError(t, err)
	require.Nil(t, place)
}

func TestSearchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(config.GeocodingConfig{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Search(context.Background(), "Roma", 1)
	require.Error(t, err)
}
