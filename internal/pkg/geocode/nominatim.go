package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cmlabs-hris/geo-attendance/internal/config"
	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
)

// Nominatim reverse geocodes through an OpenStreetMap Nominatim server.
type Nominatim struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

func NewNominatim(cfg config.GeocoderConfig, client *http.Client) *Nominatim {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Nominatim{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client:    client,
	}
}

// Placeholder is the address used when the coordinate cannot be resolved.
func Placeholder(coord attendance.Coordinate) string {
	return fmt.Sprintf("Location: %.6f, %.6f", coord.Latitude, coord.Longitude)
}

// ResolveAddress implements attendance.Geocoder. Lookup failures are logged
// and answered with Placeholder, so the error is always nil.
func (n *Nominatim) ResolveAddress(ctx context.Context, coord attendance.Coordinate) (string, error) {
	address, err := n.reverse(ctx, coord)
	if err != nil {
		slog.Warn("Reverse geocoding failed", "coordinate", coord.String(), "error", err)
		return Placeholder(coord), nil
	}
	return address, nil
}

func (n *Nominatim) reverse(ctx context.Context, coord attendance.Coordinate) (string, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error fetching address: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocoder returned status code %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("error decoding geocoder response: %w", err)
	}
	if body.DisplayName == "" {
		return "", fmt.Errorf("no address found: %s", body.Error)
	}
	return body.DisplayName, nil
}
