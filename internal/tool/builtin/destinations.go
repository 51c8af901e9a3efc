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

//go:embed data/destinations.yaml
var destinationsYAML []byte

const (
	destinationsTimeout = 2 * time.Second
	destinationsMax     = 4
)

type destination struct {
	Name       string   `yaml:"name"`
	Country    string   `yaml:"country"`
	Region     string   `yaml:"region"`
	Themes     []string `yaml:"themes"`
	BestMonths []string `yaml:"bestMonths"`
	Budget     string   `yaml:"budget"`
	Blurb      string   `yaml:"blurb"`
}

// DestinationsTool suggests destinations from the embedded curated catalog,
// filtered by theme, region, month and budget. Fully offline.
type DestinationsTool struct {
	catalog []destination
}

// NewDestinationsTool parses the embedded catalog. The catalog ships with
// the binary, so a parse failure is a build defect and panics at startup.
func NewDestinationsTool() *DestinationsTool {
	var doc struct {
		Destinations []destination `yaml:"destinations"`
	}
	if err := yaml.Unmarshal(destinationsYAML, &doc); err != nil {
		panic(fmt.Sprintf("builtin: embedded destinations catalog is invalid: %v", err))
	}
	return &DestinationsTool{catalog: doc.Destinations}
}

func (t *DestinationsTool) Name() string { return "destinationSuggest" }
func (t *DestinationsTool) Description() string {
	return "Suggest travel destinations matching a theme (beach, culture, food, nature, nightlife, adventure, family), region, month or budget. Use for \"where should I go\" questions."
}
func (t *DestinationsTool) Timeout() time.Duration { return destinationsTimeout }

func (t *DestinationsTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "theme", Type: "string", Description: "Trip theme", Enum: []string{"beach", "culture", "food", "nature", "nightlife", "adventure", "family"}},
		tool.SchemaParam{Name: "region", Type: "string", Description: "Preferred region, e.g. Europe, Asia, Americas, Africa, Oceania"},
		tool.SchemaParam{Name: "month", Type: "string", Description: "Travel month, e.g. June"},
		tool.SchemaParam{Name: "budgetLevel", Type: "string", Description: "Budget level", Enum: []string{"budget", "mid", "luxury"}},
	)
}

func (t *DestinationsTool) Execute(_ context.Context, args json.RawMessage) (tool.Result, error) {
	var a struct {
		Theme       string `json:"theme"`
		Region      string `json:"region"`
		Month       string `json:"month"`
		BudgetLevel string `json:"budgetLevel"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	// Score each catalog entry: every matching criterion counts one point,
	// every stated criterion that mismatches disqualifies.
	type scored struct {
		d     destination
		score int
	}
	var matches []scored
	for _, d := range t.catalog {
		score := 0
		if a.Theme != "" {
			if !containsFold(d.Themes, a.Theme) {
				continue
			}
			score++
		}
		if a.Region != "" {
			if !strings.EqualFold(d.Region, a.Region) {
				continue
			}
			score++
		}
		if a.Month != "" {
			if !containsFold(d.BestMonths, a.Month) {
				continue
			}
			score++
		}
		if a.BudgetLevel != "" {
			if !strings.EqualFold(d.Budget, a.BudgetLevel) {
				continue
			}
			score++
		}
		matches = append(matches, scored{d: d, score: score})
	}
	if len(matches) == 0 {
		return tool.Fail("no destinations match those criteria; try relaxing one filter"), nil
	}
	if len(matches) > destinationsMax {
		matches = matches[:destinationsMax]
	}

	var sb strings.Builder
	var names []string
	for i, m := range matches {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%s, %s: %s Best in %s.", m.d.Name, m.d.Country, m.d.Blurb, strings.Join(m.d.BestMonths, "/"))
		names = append(names, m.d.Name)
	}

	return tool.Result{
		OK:      true,
		Summary: sb.String(),
		Source:  "curated catalog",
		Payload: map[string]any{"destinations": names},
	}, nil
}

func containsFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
