package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"campus-alert/config"
	"campus-alert/core/utils"
)

// Geocoder resolves coordinates to a best-effort place name. Any failure
// degrades to an empty string; exports render coordinates instead.
type Geocoder struct {
	cfg    config.GeocodingConfig
	client *http.Client
	log    *utils.Logger
}

func NewGeocoder(cfg config.GeocodingConfig, log *utils.Logger) *Geocoder {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Geocoder{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
}

// ReverseLookup returns a place name for the coordinates, or "" when
// geocoding is disabled or fails.
func (g *Geocoder) ReverseLookup(ctx context.Context, lat, lng float64) string {
	if !g.cfg.Enabled {
		return ""
	}
	base := strings.TrimRight(g.cfg.BaseURL, "/")
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lng))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "campus-alert/1.0")
	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Errorf("reverse geocode (%f,%f): %v", lat, lng, err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		g.log.Errorf("reverse geocode (%f,%f): status %d", lat, lng, resp.StatusCode)
		return ""
	}
	var out reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ""
	}
	return out.DisplayName
}
