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
	restCountriesAPIURL = "https://restcountries.com/v3.1/name/"
	countryTimeout      = 7 * time.Second
)

// CountryTool looks up basic country facts via the REST Countries API.
type CountryTool struct {
	http    *httpx.Client
	baseURL string // injectable for tests
}

func NewCountryTool(client *httpx.Client) *CountryTool {
	return &CountryTool{http: client, baseURL: restCountriesAPIURL}
}

func (t *CountryTool) Name() string { return "getCountry" }
func (t *CountryTool) Description() string {
	return "Look up facts about a country: capital, currency, languages, region. Use for questions like \"what currency does Japan use\"."
}
func (t *CountryTool) Timeout() time.Duration { return countryTimeout }

func (t *CountryTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "country", Type: "string", Description: "Country name, e.g. \"Japan\"", Required: true},
	)
}

type countryRecord struct {
	Name struct {
		Common   string `json:"common"`
		Official string `json:"official"`
	} `json:"name"`
	Capital    []string `json:"capital"`
	Region     string   `json:"region"`
	Subregion  string   `json:"subregion"`
	Population int64    `json:"population"`
	Currencies map[string]struct {
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	} `json:"currencies"`
	Languages map[string]string `json:"languages"`
}

func (t *CountryTool) Execute(ctx context.Context, args json.RawMessage) (tool.Result, error) {
	var a struct {
		Country string `json:"country"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	name := strings.TrimSpace(a.Country)
	if name == "" {
		return tool.Fail("country is required"), nil
	}

	reqURL := t.baseURL + url.PathEscape(name) + "?fields=name,capital,region,subregion,population,currencies,languages"
	var records []countryRecord
	if err := t.http.GetJSON(ctx, "country", reqURL, nil, &records); err != nil {
		if se, ok := err.(*httpx.StatusError); ok && se.Code == 404 {
			return tool.Fail(fmt.Sprintf("no country found for %q", name)), nil
		}
		return tool.Result{}, fmt.Errorf("country lookup %q: %w", name, err)
	}
	if len(records) == 0 {
		return tool.Fail(fmt.Sprintf("no country found for %q", name)), nil
	}
	c := records[0]

	capital := "n/a"
	if len(c.Capital) > 0 {
		capital = c.Capital[0]
	}
	var currencies []string
	for code, cur := range c.Currencies {
		currencies = append(currencies, fmt.Sprintf("%s (%s)", cur.Name, code))
	}
	var languages []string
	for _, l := range c.Languages {
		languages = append(languages, l)
	}

	summary := fmt.Sprintf("%s: capital %s, region %s (%s), population %d. Currency: %s. Languages: %s.",
		c.Name.Common, capital, c.Region, c.Subregion, c.Population,
		strings.Join(currencies, ", "), strings.Join(languages, ", "))

	return tool.Result{
		OK:        true,
		Summary:   summary,
		Source:    "restcountries.com",
		Citations: []string{reqURL},
		Payload: map[string]any{
			"country": c.Name.Common,
			"capital": capital,
			"region":  c.Region,
		},
	}, nil
}
