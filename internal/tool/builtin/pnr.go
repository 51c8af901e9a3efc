package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tripwise/tripwise/internal/tool"
)

const pnrTimeout = 2 * time.Second

// segmentPattern matches one itinerary line in standard GDS shorthand:
//
//	DL 123 J 01JUN JFKLHR HK1 1930 0725
//
// carrier, flight number, booking class, date, city pair; status, times and
// trailing noise are optional.
var segmentPattern = regexp.MustCompile(
	`(?i)\b([A-Z0-9]{2})\s*(\d{1,4})\s+([A-Z])\s+(\d{2}[A-Z]{3})\s+([A-Z]{3})\s*([A-Z]{3})(?:\s+([A-Z]{2}\d))?(?:\s+(\d{4}))?(?:\s+(\d{4}))?`)

// locatorPattern matches a record locator, either bare at line start or
// labeled ("PNR: ABC123", "locator ABC123").
var locatorPattern = regexp.MustCompile(`(?i)(?:pnr|locator|record|booking)[:\s#]*([A-Z0-9]{6})\b|^\s*([A-Z0-9]{6})\s*$`)

// PNRSegment is one parsed flight segment.
type PNRSegment struct {
	Carrier string `json:"carrier"`
	Flight  string `json:"flight"`
	Class   string `json:"class"`
	Date    string `json:"date"`
	Origin  string `json:"origin"`
	Dest    string `json:"dest"`
	Status  string `json:"status,omitempty"`
	Departs string `json:"departs,omitempty"`
	Arrives string `json:"arrives,omitempty"`
}

// PNRParseTool parses pasted airline booking text (GDS-style PNR dumps)
// into structured segments. Fully offline.
type PNRParseTool struct{}

func NewPNRParseTool() *PNRParseTool { return &PNRParseTool{} }

func (t *PNRParseTool) Name() string { return "pnrParse" }
func (t *PNRParseTool) Description() string {
	return "Parse pasted airline booking text (a PNR or itinerary) into structured flight segments: carrier, flight number, date, origin, destination."
}
func (t *PNRParseTool) Timeout() time.Duration { return pnrTimeout }

func (t *PNRParseTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "pnrText", Type: "string", Description: "Raw booking text as pasted by the user", Required: true},
	)
}

// ParsePNR extracts the record locator and segments from raw booking text.
// Exported for the disruption-rebooking tool, which parses the same input.
func ParsePNR(text string) (locator string, segments []PNRSegment) {
	for _, line := range strings.Split(text, "\n") {
		if locator == "" {
			if m := locatorPattern.FindStringSubmatch(line); m != nil {
				if m[1] != "" {
					locator = strings.ToUpper(m[1])
				} else {
					locator = strings.ToUpper(m[2])
				}
			}
		}
		for _, m := range segmentPattern.FindAllStringSubmatch(line, -1) {
			seg := PNRSegment{
				Carrier: strings.ToUpper(m[1]),
				Flight:  m[2],
				Class:   strings.ToUpper(m[3]),
				Date:    strings.ToUpper(m[4]),
				Origin:  strings.ToUpper(m[5]),
				Dest:    strings.ToUpper(m[6]),
				Status:  strings.ToUpper(m[7]),
				Departs: m[8],
				Arrives: m[9],
			}
			segments = append(segments, seg)
		}
	}
	return locator, segments
}

func (t *PNRParseTool) Execute(_ context.Context, args json.RawMessage) (tool.Result, error) {
	var a struct {
		PNRText string `json:"pnrText"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	text := strings.TrimSpace(a.PNRText)
	if text == "" {
		return tool.Fail("pnrText is required"), nil
	}

	locator, segments := ParsePNR(text)
	if len(segments) == 0 {
		return tool.Fail("no flight segments recognized; expected lines like \"DL 123 J 01JUN JFKLHR\""), nil
	}

	var sb strings.Builder
	if locator != "" {
		fmt.Fprintf(&sb, "Booking %s: ", locator)
	}
	fmt.Fprintf(&sb, "%d segment(s).", len(segments))
	for i, s := range segments {
		fmt.Fprintf(&sb, " [%d] %s%s %s %s→%s", i+1, s.Carrier, s.Flight, s.Date, s.Origin, s.Dest)
		if s.Departs != "" {
			fmt.Fprintf(&sb, " dep %s", s.Departs)
		}
		sb.WriteString(".")
	}

	return tool.Result{
		OK:      true,
		Summary: sb.String(),
		Source:  "pnr parser",
		Payload: map[string]any{
			"locator":  locator,
			"segments": segments,
		},
	}, nil
}
