package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tripwise/tripwise/internal/httpx"
	"github.com/tripwise/tripwise/internal/tool"
)

const (
	openTripMapAPIURL  = "https://api.opentripmap.com/0.1/en/places"
	attractionsTimeout = 8 * time.Second
	attractionsLimit   = 8
)

// AttractionsTool lists points of interest near a city via OpenTripMap.
// Requires OPENTRIPMAP_API_KEY; without it the tool fails gracefully so the
// actor can fall back to web search.
type AttractionsTool struct {
	http    *httpx.Client
	apiKey  string
	baseURL string // injectable for tests
}

// String keeps the API key out of log output.
func (t *AttractionsTool) String() string {
	return fmt.Sprintf("AttractionsTool{baseURL: %q}", t.baseURL)
}

func NewAttractionsTool(client *httpx.Client, apiKey string) *AttractionsTool {
	return &AttractionsTool{http: client, apiKey: apiKey, baseURL: openTripMapAPIURL}
}

func (t *AttractionsTool) Name() string { return "getAttractions" }
func (t *AttractionsTool) Description() string {
	return "Find top attractions and points of interest in a city. Use for \"what to see in X\" questions."
}
func (t *AttractionsTool) Timeout() time.Duration { return attractionsTimeout }

func (t *AttractionsTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "city", Type: "string", Description: "City name", Required: true},
	)
}

type otmGeoname struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

type otmPlace struct {
	Name  string `json:"name"`
	Kinds string `json:"kinds"`
	Rate  int    `json:"rate"`
}

func (t *AttractionsTool) Execute(ctx context.Context, args json.RawMessage) (tool.Result, error) {
	var a struct {
		City string `json:"city"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	city := strings.TrimSpace(a.City)
	if city == "" {
		return tool.Fail("city is required"), nil
	}
	if t.apiKey == "" {
		return tool.Fail("attractions provider is not configured"), nil
	}

	gq := url.Values{"name": {city}, "apikey": {t.apiKey}}
	var geo otmGeoname
	if err := t.http.GetJSON(ctx, "attractions", t.baseURL+"/geoname?"+gq.Encode(), nil, &geo); err != nil {
		return tool.Result{}, fmt.Errorf("attractions geoname %q: %w", city, err)
	}
	if geo.Name == "" {
		return tool.Fail(fmt.Sprintf("no location found for %q", city)), nil
	}

	pq := url.Values{
		"radius":   {"10000"},
		"lat":      {fmt.Sprintf("%.4f", geo.Lat)},
		"lon":      {fmt.Sprintf("%.4f", geo.Lon)},
		"kinds":    {"interesting_places"},
		"rate":     {"2"},
		"limit":    {fmt.Sprintf("%d", attractionsLimit)},
		"format":   {"json"},
		"apikey":   {t.apiKey},
	}
	var places []otmPlace
	if err := t.http.GetJSON(ctx, "attractions", t.baseURL+"/radius?"+pq.Encode(), nil, &places); err != nil {
		return tool.Result{}, fmt.Errorf("attractions radius %q: %w", city, err)
	}

	var names []string
	for _, p := range places {
		if p.Name == "" {
			continue
		}
		names = append(names, p.Name)
	}
	if len(names) == 0 {
		return tool.Fail(fmt.Sprintf("no attractions found near %q", city)), nil
	}

	summary := fmt.Sprintf("Top attractions in %s, %s: %s.", geo.Name, geo.Country, strings.Join(names, "; "))
	return tool.Result{
		OK:        true,
		Summary:   summary,
		Source:    "opentripmap.com",
		Citations: []string{"https://opentripmap.com/en/#9/" + fmt.Sprintf("%.4f/%.4f", geo.Lat, geo.Lon)},
		Payload: map[string]any{
			"city":        geo.Name,
			"attractions": names,
		},
	}, nil
}
