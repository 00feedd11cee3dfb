package geocoding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"example.com/backstage/services/partyup/config"

	"github.com/pkg/errors"
)

// Place is one geocoding match
type Place struct {
	DisplayName string            `json:"display_name"`
	Lat         float64           `json:"lat"`
	Lon         float64           `json:"lon"`
	Address     map[string]string `json:"address,omitempty"`
}

// Geocoder resolves free text into places
type Geocoder interface {
	Search(ctx context.Context, text string, limit int) ([]Place, error)
}

// Client queries a Nominatim compatible search endpoint
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
}

// NewClient creates a Nominatim client
func NewClient(cfg config.GeocodingConfig) *Client {
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
	}
}

type nominatimPlace struct {
	DisplayName string            `json:"display_name"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	Address     map[string]string `json:"address"`
}

// Search returns at most limit places matching text, best match first
func (c *Client) Search(ctx context.Context, text string, limit int) ([]Place, error) {
	if limit <= 0 {
		limit = 1
	}

	q := url.Values{}
	q.Set("q", text)
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build geocoding request")
	}
	// Nominatim's usage policy requires an identifying agent
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "geocoding request failed")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("geocoding request failed with status %d", res.StatusCode)
	}

	var raw []nominatimPlace
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode geocoding response")
	}

	places := make([]Place, 0, len(raw))
	for _, p := range raw {
		lat, err := strconv.ParseFloat(p.Lat, 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(p.Lon, 64)
		if err != nil {
			continue
		}
		places = append(places, Place{DisplayName: p.DisplayName, Lat: lat, Lon: lon, Address: p.Address})
	}
	return places, nil
}

// First returns the best match for text or nil
func First(ctx context.Context, g Geocoder, text string) (*Place, error) {
	places, err := g.Search(ctx, text, 1)
	if err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, nil
	}
	return &places[0], nil
}
