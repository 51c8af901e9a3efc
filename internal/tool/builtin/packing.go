package builtin

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tripwise/tripwise/internal/tool"
)

//go:embed data/packing.yaml
var packingYAML []byte

const packingTimeout = 2 * time.Second

type packingBand struct {
	Name string   `yaml:"name"`
	MinC float64  `yaml:"minC"`
	MaxC float64  `yaml:"maxC"`
	Base []string `yaml:"base"`
}

// PackingTool suggests a packing list from the embedded temperature bands
// plus activity add-ons. Fully offline; the caller supplies the expected
// temperature (typically from a prior weather call).
type PackingTool struct {
	bands   []packingBand
	special map[string][]string
}

// NewPackingTool parses the embedded bands. Like the destination catalog,
// the data ships with the binary so a parse failure panics at startup.
func NewPackingTool() *PackingTool {
	var doc struct {
		Bands   []packingBand       `yaml:"bands"`
		Special map[string][]string `yaml:"special"`
	}
	if err := yaml.Unmarshal(packingYAML, &doc); err != nil {
		panic(fmt.Sprintf("builtin: embedded packing bands are invalid: %v", err))
	}
	return &PackingTool{bands: doc.Bands, special: doc.Special}
}

func (t *PackingTool) Name() string { return "packingSuggest" }
func (t *PackingTool) Description() string {
	return "Suggest a packing list for a destination given the expected daytime temperature in °C and optionally an activity type. Call weather first to get the temperature."
}
func (t *PackingTool) Timeout() time.Duration { return packingTimeout }

func (t *PackingTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "temperatureC", Type: "number", Description: "Expected daytime temperature in Celsius", Required: true},
		tool.SchemaParam{Name: "activityType", Type: "string", Description: "Planned activity", Enum: []string{"beach", "hiking", "business", "winter_sports", "city"}},
	)
}

func (t *PackingTool) bandFor(tempC float64) *packingBand {
	for i := range t.bands {
		if tempC >= t.bands[i].MinC && tempC < t.bands[i].MaxC {
			return &t.bands[i]
		}
	}
	return nil
}

func (t *PackingTool) Execute(_ context.Context, args json.RawMessage) (tool.Result, error) {
	var a struct {
		TemperatureC *float64 `json:"temperatureC"`
		ActivityType string   `json:"activityType"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if a.TemperatureC == nil {
		return tool.Fail("temperatureC is required"), nil
	}

	band := t.bandFor(*a.TemperatureC)
	if band == nil {
		return tool.Fail(fmt.Sprintf("temperature %.1f°C is outside supported bands", *a.TemperatureC)), nil
	}

	special := t.special[strings.ToLower(strings.TrimSpace(a.ActivityType))]

	var sb strings.Builder
	fmt.Fprintf(&sb, "For %.0f°C (%s weather) pack: %s.", *a.TemperatureC, band.Name, strings.Join(band.Base, ", "))
	if len(special) > 0 {
		fmt.Fprintf(&sb, " For %s also bring: %s.", a.ActivityType, strings.Join(special, ", "))
	}

	// packingBand / item payloads feed the reply verifier downstream.
	payload := map[string]any{
		"packingBand":      band.Name,
		"packingItemsBase": band.Base,
	}
	if len(special) > 0 {
		payload["packingItemsSpecial"] = special
	}

	return tool.Result{
		OK:      true,
		Summary: sb.String(),
		Source:  "packing bands",
		Payload: payload,
	}, nil
}
