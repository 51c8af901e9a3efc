package builtin

import (
	"log"
	"time"

	"github.com/tripwise/tripwise/internal/httpx"
	"github.com/tripwise/tripwise/internal/tool"
)

// CatalogConfig carries the provider credentials and knobs the catalog
// needs. Empty keys leave the affected tools registered but failing
// gracefully, so the actor can report "not configured" instead of the
// registry changing shape per deployment.
type CatalogConfig struct {
	TavilyAPIKey        string
	OpenTripMapAPIKey   string
	AmadeusClientID     string
	AmadeusClientSecret string
	VectaraAPIKey       string
	VectaraCorpusKey    string
	PolicyTimeout       time.Duration
	DeepResearchEnabled bool
}

// RegisterAll builds the full tool catalog and registers it.
func RegisterAll(reg *tool.Registry, client *httpx.Client, cfg CatalogConfig) {
	amadeus := NewAmadeusClient(client, cfg.AmadeusClientID, cfg.AmadeusClientSecret)

	reg.Register(NewWeatherTool(client))
	reg.Register(NewCountryTool(client))
	reg.Register(NewAttractionsTool(client, cfg.OpenTripMapAPIKey))
	reg.Register(NewDestinationsTool())
	reg.Register(NewResolveCityTool(amadeus))
	reg.Register(NewAirportsForCityTool(amadeus))
	reg.Register(NewSearchFlightsTool(amadeus))
	reg.Register(NewSearchTool(client, cfg.TavilyAPIKey))
	reg.Register(NewVectaraTool(client, cfg.VectaraAPIKey, cfg.VectaraCorpusKey))
	reg.Register(NewPolicyExtractTool(client, cfg.PolicyTimeout))
	reg.Register(NewPNRParseTool())
	reg.Register(NewIrropsTool())
	reg.Register(NewPackingTool())

	if cfg.DeepResearchEnabled {
		reg.Register(NewDeepResearchTool(client, cfg.TavilyAPIKey))
	} else {
		log.Printf("[Catalog] Deep research disabled; deepResearch not registered")
	}
}
