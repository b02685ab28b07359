package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultGeocodeURL    = "https://maps.googleapis.com/maps/api/geocode/json"
	defaultDirectionsURL = "https://maps.googleapis.com/maps/api/directions/json"
)

const (
	// InvalidMapLink is embedded into announcements when the store's map link
	// carries no extractable destination coordinate.
	InvalidMapLink = "Invalid Google Maps link"
	// TravelTimeUnavailable is embedded when the Directions API cannot answer.
	TravelTimeUnavailable = "Unable to calculate travel time"
)

// Client talks to the Google Geocoding and Directions APIs. Outbound calls
// are throttled so a burst of unseen events cannot hammer the API.
type Client struct {
	httpClient    *http.Client
	apiKey        string
	geocodeURL    string
	directionsURL string
	limiter       *rate.Limiter
	logger        *zap.Logger
}

func NewClient(apiKey string, httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{
		httpClient:    httpClient,
		apiKey:        apiKey,
		geocodeURL:    defaultGeocodeURL,
		directionsURL: defaultDirectionsURL,
		limiter:       rate.NewLimiter(rate.Limit(5), 5),
		logger:        logger,
	}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves a free-text address to coordinates. Callers at startup
// must treat an error as fatal: without a valid origin the bot cannot
// compute travel times.
func (c *Client) Geocode(ctx context.Context, address string) (float64, float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, 0, fmt.Errorf("error waiting for rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.geocodeURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("error building geocode request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("error calling geocoding API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geocoding API returned status %d", resp.StatusCode)
	}

	var payload geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, 0, fmt.Errorf("error decoding geocode response: %w", err)
	}

	if payload.Status != "OK" || len(payload.Results) == 0 {
		return 0, 0, fmt.Errorf("geocoding API error: %s", payload.Status)
	}

	loc := payload.Results[0].Geometry.Location
	return loc.Lat, loc.Lng, nil
}

type directionsResponse struct {
	Routes []struct {
		Legs []struct {
			Duration struct {
				Text string `json:"text"`
			} `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

// TravelTime returns a human-readable driving duration from origin to the
// destination embedded in a Google Maps link. It never fails past its
// boundary: every error path degrades to a descriptive string that is
// embedded directly into the announcement text.
func (c *Client) TravelTime(ctx context.Context, origin, mapLink string) string {
	destination, ok := destinationFromMapLink(mapLink)
	if !ok {
		return InvalidMapLink
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Warn("Rate limiter wait aborted", zap.Error(err))
		return TravelTimeUnavailable
	}

	q := url.Values{}
	q.Set("origin", origin)
	q.Set("destination", destination)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.directionsURL+"?"+q.Encode(), nil)
	if err != nil {
		c.logger.Warn("Failed to build directions request", zap.Error(err))
		return TravelTimeUnavailable
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Directions API call failed", zap.Error(err))
		return TravelTimeUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Directions API returned non-OK status", zap.Int("status", resp.StatusCode))
		return TravelTimeUnavailable
	}

	var payload directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Warn("Failed to decode directions response", zap.Error(err))
		return TravelTimeUnavailable
	}

	if len(payload.Routes) == 0 || len(payload.Routes[0].Legs) == 0 {
		return TravelTimeUnavailable
	}

	return payload.Routes[0].Legs[0].Duration.Text
}

// destinationFromMapLink extracts a "lat,lng" destination from a store's
// Google Maps link by reading the q query parameter. Query parsing replaced
// the old regex scan so a coordinate elsewhere in the URL cannot be picked
// up by accident.
func destinationFromMapLink(mapLink string) (string, bool) {
	u, err := url.Parse(mapLink)
	if err != nil {
		return "", false
	}

	coords := u.Query().Get("q")
	if coords == "" {
		return "", false
	}

	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return "", false
	}

	lat := strings.TrimSpace(parts[0])
	lng := strings.TrimSpace(parts[1])
	if _, err := strconv.ParseFloat(lat, 64); err != nil {
		return "", false
	}
	if _, err := strconv.ParseFloat(lng, 64); err != nil {
		return "", false
	}

	return lat + "," + lng, true
}
