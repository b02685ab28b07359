package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const defaultSearchURL = "https://op-core.pokemon.com/api/v2/event_locator/search/"

// productTCG is the product marker an activity must carry to be announced.
const productTCG = "tcg"

const (
	// PlaceholderBadTimestamp is shown when the upstream start timestamp does not parse.
	PlaceholderBadTimestamp = "C'est Buggué"
	// PlaceholderNoTimestamp is shown when the upstream record has no start timestamp.
	PlaceholderNoTimestamp = "Va savoir!"
)

const startTimeLayout = "02/01/2006 15:04"

// Address is the location block of an activity as returned by the event locator.
type Address struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	MapLink string `json:"location_map_link"`
}

// Activity is one event record from the locator API. It lives for a single
// poll cycle and is discarded after processing.
type Activity struct {
	Name          string   `json:"name"`
	Tags          []string `json:"tags"`
	Products      []string `json:"products"`
	StartDatetime string   `json:"start_datetime"`
	PokemonURL    string   `json:"pokemon_url"`
	Address       Address  `json:"address"`
}

// HasTag reports whether the activity carries the given tag.
func (a Activity) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (a Activity) hasProduct(product string) bool {
	for _, p := range a.Products {
		if p == product {
			return true
		}
	}
	return false
}

type searchResponse struct {
	Activities []Activity `json:"activities"`
}

// Client queries the event locator API.
type Client struct {
	httpClient *http.Client
	searchURL  string
}

func NewClient(httpClient *http.Client) *Client {
	return &Client{
		httpClient: httpClient,
		searchURL:  defaultSearchURL,
	}
}

// Search fetches activities near a coordinate within the given distance.
// A single page is assumed; the upstream API is not known to paginate.
func (c *Client) Search(ctx context.Context, lat, lng float64, distance int) ([]Activity, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("distance", strconv.Itoa(distance))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("error building event search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling event search API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("event search API returned status %d", resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("error decoding event search response: %w", err)
	}

	return payload.Activities, nil
}

// Filter keeps activities that carry the category tag and the tcg product.
func Filter(activities []Activity, categoryTag string) []Activity {
	var kept []Activity
	for _, a := range activities {
		if a.HasTag(categoryTag) && a.hasProduct(productTCG) {
			kept = append(kept, a)
		}
	}
	return kept
}

// SortByStart orders activities ascending by their raw ISO-8601 start string.
// Lexicographic order is date order for zero-padded same-zone timestamps.
func SortByStart(activities []Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].StartDatetime < activities[j].StartDatetime
	})
}

// isoLayouts are the start timestamp shapes seen from the locator API, tried
// in order after a trailing "Z" has been stripped.
var isoLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04",
}

// FormatStart renders an ISO start timestamp as "02/01/2006 15:04". Parse
// failures and missing timestamps degrade to fixed placeholder strings so the
// announcement is always produced.
func FormatStart(iso string) string {
	if iso == "" {
		return PlaceholderNoTimestamp
	}
	trimmed := strings.TrimSuffix(iso, "Z")
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(startTimeLayout)
		}
	}
	return PlaceholderBadTimestamp
}

// Identity derives the deterministic string used both as the discussion
// thread name and as the dedupe key. Re-fetching the same activity must
// always produce the same identity.
func Identity(a Activity) string {
	return fmt.Sprintf("%s - %s - %s - Discussion", FormatStart(a.StartDatetime), a.Address.City, a.Address.Name)
}
