package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func activity(tags, products []string, start string) Activity {
	return Activity{
		Tags:          tags,
		Products:      products,
		StartDatetime: start,
	}
}

func TestFilterRequiresCategoryTagAndProduct(t *testing.T) {
	activities := []Activity{
		activity([]string{"league_cup"}, []string{"tcg"}, "2024-01-01T09:00:00Z"),
		activity([]string{"league_challenge"}, []string{"tcg"}, "2024-01-01T09:00:00Z"),
		activity([]string{"league_cup"}, []string{"vgc"}, "2024-01-01T09:00:00Z"),
		activity(nil, []string{"tcg"}, "2024-01-01T09:00:00Z"),
	}

	kept := Filter(activities, "league_cup")
	if len(kept) != 1 {
		t.Fatalf("expected 1 activity kept, got %d", len(kept))
	}
	if !kept[0].HasTag("league_cup") {
		t.Fatalf("kept activity missing category tag: %+v", kept[0])
	}
}

func TestSortByStartAscending(t *testing.T) {
	activities := []Activity{
		activity([]string{"league_cup"}, []string{"tcg"}, "2024-01-03T10:00:00Z"),
		activity([]string{"league_cup"}, []string{"tcg"}, "2024-01-01T09:00:00Z"),
		activity([]string{"league_cup"}, []string{"tcg"}, "2024-01-02T08:00:00Z"),
	}

	SortByStart(activities)

	want := []string{"2024-01-01T09:00:00Z", "2024-01-02T08:00:00Z", "2024-01-03T10:00:00Z"}
	for i, w := range want {
		if activities[i].StartDatetime != w {
			t.Fatalf("position %d: expected %s, got %s", i, w, activities[i].StartDatetime)
		}
	}
}

func TestFormatStart(t *testing.T) {
	tests := []struct {
		name string
		iso  string
		want string
	}{
		{"zulu suffix stripped", "2024-01-02T18:30:00Z", "02/01/2024 18:30"},
		{"no suffix", "2024-03-15T09:05:00", "15/03/2024 09:05"},
		{"missing", "", PlaceholderNoTimestamp},
		{"garbage", "not-a-timestamp", PlaceholderBadTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatStart(tt.iso); got != tt.want {
				t.Fatalf("FormatStart(%q) = %q, want %q", tt.iso, got, tt.want)
			}
		})
	}
}

func TestIdentityDeterministic(t *testing.T) {
	a := Activity{
		StartDatetime: "2024-01-02T18:30:00Z",
		Address:       Address{Name: "Carta Magica", City: "Montpellier"},
	}
	b := Activity{
		StartDatetime: "2024-01-02T18:30:00Z",
		Address:       Address{Name: "Carta Magica", City: "Montpellier"},
		Name:          "different display name, same identity fields",
	}

	want := "02/01/2024 18:30 - Montpellier - Carta Magica - Discussion"
	if got := Identity(a); got != want {
		t.Fatalf("Identity = %q, want %q", got, want)
	}
	if Identity(a) != Identity(b) {
		t.Fatalf("identical datetime/city/store must yield equal identities")
	}
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("latitude") == "" || r.URL.Query().Get("longitude") == "" || r.URL.Query().Get("distance") == "" {
			t.Errorf("missing query parameter in %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"activities":[{"name":"Cup","tags":["league_cup"],"products":["tcg"],"start_datetime":"2024-01-01T09:00:00Z","pokemon_url":"https://pokemon.com/e/1","address":{"name":"Shop","address":"1 rue","city":"Montpellier","location_map_link":"https://maps.google.com/?q=43.6,3.8"}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.Client())
	client.searchURL = server.URL

	activities, err := client.Search(context.Background(), 43.61, 3.87, 50)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(activities) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(activities))
	}
	if activities[0].Address.City != "Montpellier" {
		t.Fatalf("unexpected address block: %+v", activities[0].Address)
	}
}

func TestSearchNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.Client())
	client.searchURL = server.URL

	if _, err := client.Search(context.Background(), 43.61, 3.87, 50); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
