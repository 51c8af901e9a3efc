// Package builtin holds the fixed travel tool catalog.
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
	geocodeAPIURL  = "https://geocoding-api.open-meteo.com/v1/search"
	forecastAPIURL = "https://api.open-meteo.com/v1/forecast"
	weatherTimeout = 7 * time.Second
	weatherSource  = "open-meteo.com"
)

// WeatherTool reports current weather and a short forecast for a city via
// Open-Meteo (geocoding + forecast, no API key required).
type WeatherTool struct {
	http        *httpx.Client
	geocodeURL  string // injectable for tests
	forecastURL string
}

func NewWeatherTool(client *httpx.Client) *WeatherTool {
	return &WeatherTool{
		http:        client,
		geocodeURL:  geocodeAPIURL,
		forecastURL: forecastAPIURL,
	}
}

func (t *WeatherTool) Name() string { return "weather" }
func (t *WeatherTool) Description() string {
	return "Get current weather and a 3-day forecast for a city. Use for any question about weather, temperature or rain at a destination."
}
func (t *WeatherTool) Timeout() time.Duration { return weatherTimeout }

func (t *WeatherTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "city", Type: "string", Description: "City name, e.g. \"Paris\"", Required: true},
	)
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		Time       []string  `json:"time"`
		TempMax    []float64 `json:"temperature_2m_max"`
		TempMin    []float64 `json:"temperature_2m_min"`
		PrecipProb []float64 `json:"precipitation_probability_max"`
	} `json:"daily"`
}

func (t *WeatherTool) Execute(ctx context.Context, args json.RawMessage) (tool.Result, error) {
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

	// Geocode first; Open-Meteo's forecast endpoint only takes coordinates.
	q := url.Values{"name": {city}, "count": {"1"}, "format": {"json"}}
	var geo geocodeResponse
	if err := t.http.GetJSON(ctx, "weather", t.geocodeURL+"?"+q.Encode(), nil, &geo); err != nil {
		return tool.Result{}, fmt.Errorf("geocode %q: %w", city, err)
	}
	if len(geo.Results) == 0 {
		return tool.Fail(fmt.Sprintf("no location found for %q", city)), nil
	}
	loc := geo.Results[0]

	fq := url.Values{
		"latitude":      {fmt.Sprintf("%.4f", loc.Latitude)},
		"longitude":     {fmt.Sprintf("%.4f", loc.Longitude)},
		"current":       {"temperature_2m,weather_code"},
		"daily":         {"temperature_2m_max,temperature_2m_min,precipitation_probability_max"},
		"forecast_days": {"3"},
		"timezone":      {"auto"},
	}
	forecastURL := t.forecastURL + "?" + fq.Encode()
	var fc forecastResponse
	if err := t.http.GetJSON(ctx, "weather", forecastURL, nil, &fc); err != nil {
		return tool.Result{}, fmt.Errorf("forecast for %q: %w", city, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Current weather in %s, %s: %.1f°C, %s.",
		loc.Name, loc.Country, fc.Current.Temperature, describeWeatherCode(fc.Current.WeatherCode))
	for i := range fc.Daily.Time {
		if i >= len(fc.Daily.TempMax) || i >= len(fc.Daily.TempMin) {
			break
		}
		fmt.Fprintf(&sb, " %s: %.0f–%.0f°C", fc.Daily.Time[i], fc.Daily.TempMin[i], fc.Daily.TempMax[i])
		if i < len(fc.Daily.PrecipProb) {
			fmt.Fprintf(&sb, " (%.0f%% rain)", fc.Daily.PrecipProb[i])
		}
		sb.WriteString(".")
	}

	return tool.Result{
		OK:        true,
		Summary:   sb.String(),
		Source:    weatherSource,
		Citations: []string{forecastURL},
		Payload: map[string]any{
			"city":         loc.Name,
			"country":      loc.Country,
			"temperatureC": fc.Current.Temperature,
		},
	}, nil
}

// describeWeatherCode maps WMO weather interpretation codes to text.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}
