package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tripwise/tripwise/internal/httpx"
	"github.com/tripwise/tripwise/internal/tool"
)

const (
	amadeusAPIURL       = "https://test.api.amadeus.com"
	amadeusTokenPath    = "/v1/security/oauth2/token"
	amadeusCityPath     = "/v1/reference-data/locations/cities"
	amadeusAirportPath  = "/v1/reference-data/locations"
	amadeusFlightsPath  = "/v2/shopping/flight-offers"
	amadeusResolveTO    = 8 * time.Second
	amadeusFlightsTO    = 12 * time.Second
	amadeusTokenSlack   = 30 * time.Second
	amadeusMaxOffers    = 5
)

// AmadeusClient holds the OAuth2 client-credentials token shared by the
// three amadeus* tools. The token is refreshed lazily when within slack of
// expiry.
type AmadeusClient struct {
	http         *httpx.Client
	clientID     string
	clientSecret string
	baseURL      string // injectable for tests

	mu      sync.Mutex
	token   string
	expires time.Time
}

// String keeps credentials out of log output.
func (c *AmadeusClient) String() string {
	return fmt.Sprintf("AmadeusClient{baseURL: %q}", c.baseURL)
}

func NewAmadeusClient(client *httpx.Client, clientID, clientSecret string) *AmadeusClient {
	return &AmadeusClient{
		http:         client,
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      amadeusAPIURL,
	}
}

// Configured reports whether API credentials are present.
func (c *AmadeusClient) Configured() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// accessToken returns a valid bearer token, refreshing if needed.
func (c *AmadeusClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Until(c.expires) > amadeusTokenSlack {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := c.http.PostForm(ctx, "amadeus", c.baseURL+amadeusTokenPath, form, &resp); err != nil {
		return "", fmt.Errorf("amadeus token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("amadeus token: empty access_token in response")
	}
	c.token = resp.AccessToken
	c.expires = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	return c.token, nil
}

// getJSON performs an authenticated GET against the Amadeus API.
func (c *AmadeusClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	return c.http.GetJSON(ctx, "amadeus", c.baseURL+path+"?"+query.Encode(), headers, out)
}

// resolveDepartureDate turns relative date words into ISO dates at call time
// so the provider always sees a concrete date. Already-ISO input passes
// through; anything unrecognized falls back to a week out.
func resolveDepartureDate(raw string, now time.Time) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return now.AddDate(0, 0, 7).Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return s
	}
	switch s {
	case "today", "tonight":
		return now.Format("2006-01-02")
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format("2006-01-02")
	case "day after tomorrow":
		return now.AddDate(0, 0, 2).Format("2006-01-02")
	case "next week":
		return now.AddDate(0, 0, 7).Format("2006-01-02")
	case "next month":
		return now.AddDate(0, 1, 0).Format("2006-01-02")
	}
	if wd, ok := weekdayFromName(strings.TrimPrefix(s, "next ")); ok {
		days := (int(wd) - int(now.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		return now.AddDate(0, 0, days).Format("2006-01-02")
	}
	return now.AddDate(0, 0, 7).Format("2006-01-02")
}

func weekdayFromName(s string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, true
		}
	}
	return 0, false
}

// ResolveCityTool maps a free-text city name to its IATA city code.
type ResolveCityTool struct {
	client *AmadeusClient
}

func NewResolveCityTool(client *AmadeusClient) *ResolveCityTool {
	return &ResolveCityTool{client: client}
}

func (t *ResolveCityTool) Name() string { return "amadeusResolveCity" }
func (t *ResolveCityTool) Description() string {
	return "Resolve a city name to its IATA city code (e.g. \"New York\" → NYC). Always resolve both cities before searching flights."
}
func (t *ResolveCityTool) Timeout() time.Duration { return amadeusResolveTO }

func (t *ResolveCityTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "city", Type: "string", Description: "City name", Required: true},
	)
}

type amadeusLocation struct {
	Name     string `json:"name"`
	IATACode string `json:"iataCode"`
	Address  struct {
		CountryCode string `json:"countryCode"`
	} `json:"address"`
}

func (t *ResolveCityTool) Execute(ctx context.Context, args json.RawMessage) (tool.Result, error) {
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
	if !t.client.Configured() {
		return tool.Fail("flight provider is not configured"), nil
	}

	// Short all-caps input is already a IATA code; pass it through without a
	// provider round-trip.
	if len(city) == 3 && city == strings.ToUpper(city) {
		return tool.Result{
			OK:      true,
			Summary: fmt.Sprintf("%s is already an IATA city code.", city),
			Source:  "amadeus.com",
			Payload: map[string]any{"cityCode": city},
		}, nil
	}

	q := url.Values{"keyword": {city}, "max": {"1"}}
	var resp struct {
		Data []amadeusLocation `json:"data"`
	}
	if err := t.client.getJSON(ctx, amadeusCityPath, q, &resp); err != nil {
		return tool.Result{}, fmt.Errorf("resolve city %q: %w", city, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].IATACode == "" {
		return tool.Fail(fmt.Sprintf("no city code found for %q", city)), nil
	}
	loc := resp.Data[0]

	return tool.Result{
		OK:      true,
		Summary: fmt.Sprintf("%s resolves to city code %s (%s).", loc.Name, loc.IATACode, loc.Address.CountryCode),
		Source:  "amadeus.com",
		Payload: map[string]any{"cityCode": loc.IATACode, "cityName": loc.Name},
	}, nil
}

// AirportsForCityTool lists airports serving a IATA city code.
type AirportsForCityTool struct {
	client *AmadeusClient
}

func NewAirportsForCityTool(client *AmadeusClient) *AirportsForCityTool {
	return &AirportsForCityTool{client: client}
}

func (t *AirportsForCityTool) Name() string { return "amadeusAirportsForCity" }
func (t *AirportsForCityTool) Description() string {
	return "List the airports serving a IATA city code. Useful when the user asks which airport to fly into."
}
func (t *AirportsForCityTool) Timeout() time.Duration { return amadeusResolveTO }

func (t *AirportsForCityTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "cityCode", Type: "string", Description: "IATA city code, e.g. NYC", Required: true},
	)
}

func (t *AirportsForCityTool) Execute(ctx context.Context, args json.RawMessage) (tool.Result, error) {
	var a struct {
		CityCode string `json:"cityCode"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	code := strings.ToUpper(strings.TrimSpace(a.CityCode))
	if code == "" {
		return tool.Fail("cityCode is required"), nil
	}
	if !t.client.Configured() {
		return tool.Fail("flight provider is not configured"), nil
	}

	q := url.Values{
		"keyword":     {code},
		"subType":     {"AIRPORT"},
		"page[limit]": {"10"},
	}
	var resp struct {
		Data []amadeusLocation `json:"data"`
	}
	if err := t.client.getJSON(ctx, amadeusAirportPath, q, &resp); err != nil {
		return tool.Result{}, fmt.Errorf("airports for %q: %w", code, err)
	}
	if len(resp.Data) == 0 {
		return tool.Fail(fmt.Sprintf("no airports found for city code %q", code)), nil
	}

	var parts []string
	var codes []string
	for _, loc := range resp.Data {
		parts = append(parts, fmt.Sprintf("%s (%s)", loc.Name, loc.IATACode))
		codes = append(codes, loc.IATACode)
	}
	return tool.Result{
		OK:      true,
		Summary: fmt.Sprintf("Airports serving %s: %s.", code, strings.Join(parts, ", ")),
		Source:  "amadeus.com",
		Payload: map[string]any{"cityCode": code, "airports": codes},
	}, nil
}

// SearchFlightsTool searches flight offers between two IATA codes.
type SearchFlightsTool struct {
	client *AmadeusClient
	now    func() time.Time
}

func NewSearchFlightsTool(client *AmadeusClient) *SearchFlightsTool {
	return &SearchFlightsTool{client: client, now: time.Now}
}

func (t *SearchFlightsTool) Name() string { return "amadeusSearchFlights" }
func (t *SearchFlightsTool) Description() string {
	return "Search flight offers between two IATA city or airport codes on a date. Resolve city names to codes first with amadeusResolveCity."
}
func (t *SearchFlightsTool) Timeout() time.Duration { return amadeusFlightsTO }

func (t *SearchFlightsTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "origin", Type: "string", Description: "Origin IATA code, e.g. NYC", Required: true},
		tool.SchemaParam{Name: "destination", Type: "string", Description: "Destination IATA code, e.g. LON", Required: true},
		tool.SchemaParam{Name: "departureDate", Type: "string", Description: "Departure date, ISO (2025-06-01) or relative (\"tomorrow\")"},
		tool.SchemaParam{Name: "adults", Type: "integer", Description: "Number of adult travelers, default 1"},
	)
}

type amadeusOffer struct {
	Price struct {
		Total    string `json:"total"`
		Currency string `json:"currency"`
	} `json:"price"`
	Itineraries []struct {
		Duration string `json:"duration"`
		Segments []struct {
			CarrierCode string `json:"carrierCode"`
			Number      string `json:"number"`
			Departure   struct {
				IATACode string `json:"iataCode"`
				At       string `json:"at"`
			} `json:"departure"`
			Arrival struct {
				IATACode string `json:"iataCode"`
				At       string `json:"at"`
			} `json:"arrival"`
		} `json:"segments"`
	} `json:"itineraries"`
}

func (t *SearchFlightsTool) Execute(ctx context.Context, args json.RawMessage) (tool.Result, error) {
	var a struct {
		Origin        string `json:"origin"`
		Destination   string `json:"destination"`
		DepartureDate string `json:"departureDate"`
		Adults        int    `json:"adults"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	origin := strings.ToUpper(strings.TrimSpace(a.Origin))
	dest := strings.ToUpper(strings.TrimSpace(a.Destination))
	if origin == "" || dest == "" {
		return tool.Fail("origin and destination are required"), nil
	}
	if !t.client.Configured() {
		return tool.Fail("flight provider is not configured"), nil
	}
	if a.Adults <= 0 {
		a.Adults = 1
	}
	date := resolveDepartureDate(a.DepartureDate, t.now())

	q := url.Values{
		"originLocationCode":      {origin},
		"destinationLocationCode": {dest},
		"departureDate":           {date},
		"adults":                  {fmt.Sprintf("%d", a.Adults)},
		"max":                     {fmt.Sprintf("%d", amadeusMaxOffers)},
	}
	var resp struct {
		Data []amadeusOffer `json:"data"`
	}
	if err := t.client.getJSON(ctx, amadeusFlightsPath, q, &resp); err != nil {
		return tool.Result{}, fmt.Errorf("flight search %s→%s: %w", origin, dest, err)
	}
	if len(resp.Data) == 0 {
		return tool.Fail(fmt.Sprintf("no flights found %s to %s on %s", origin, dest, date)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Flights %s to %s on %s:", origin, dest, date)
	for i, offer := range resp.Data {
		if len(offer.Itineraries) == 0 || len(offer.Itineraries[0].Segments) == 0 {
			continue
		}
		it := offer.Itineraries[0]
		first := it.Segments[0]
		last := it.Segments[len(it.Segments)-1]
		fmt.Fprintf(&sb, " [%d] %s%s dep %s arr %s, %d stop(s), %s %s.",
			i+1, first.CarrierCode, first.Number,
			first.Departure.At, last.Arrival.At,
			len(it.Segments)-1, offer.Price.Total, offer.Price.Currency)
	}

	return tool.Result{
		OK:        true,
		Summary:   sb.String(),
		Source:    "amadeus.com",
		Citations: []string{"https://www.amadeus.com/flights/" + origin + "-" + dest},
		Payload: map[string]any{
			"origin":        origin,
			"destination":   dest,
			"departureDate": date,
			"offerCount":    len(resp.Data),
		},
	}, nil
}
