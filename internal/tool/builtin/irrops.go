package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tripwise/tripwise/internal/tool"
)

const irropsTimeout = 2 * time.Second

// hubsByCarrier lists each carrier's main connecting hubs, used to propose
// reroutes when a nonstop is disrupted.
var hubsByCarrier = map[string][]string{
	"DL": {"ATL", "DTW", "MSP", "JFK"},
	"UA": {"ORD", "EWR", "IAH", "DEN"},
	"AA": {"DFW", "CLT", "ORD", "MIA"},
	"BA": {"LHR"},
	"LH": {"FRA", "MUC"},
	"AF": {"CDG"},
	"KL": {"AMS"},
	"EK": {"DXB"},
	"QR": {"DOH"},
	"SQ": {"SIN"},
	"TK": {"IST"},
}

// IrropsTool suggests rebooking options for a disrupted flight segment.
// It is a local rule engine over the parsed booking: same-day later
// departures, next-day fallback and hub reroutes. No provider round-trip,
// so disruption turns still work when the flight provider is down.
type IrropsTool struct{}

func NewIrropsTool() *IrropsTool { return &IrropsTool{} }

func (t *IrropsTool) Name() string { return "irropsProcess" }
func (t *IrropsTool) Description() string {
	return "Suggest rebooking options for a cancelled or delayed flight. Provide the booking text and which flight is disrupted; returns same-day, next-day and reroute options plus passenger rights notes."
}
func (t *IrropsTool) Timeout() time.Duration { return irropsTimeout }

func (t *IrropsTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "pnrText", Type: "string", Description: "Raw booking text", Required: true},
		tool.SchemaParam{Name: "disruptedFlight", Type: "string", Description: "The disrupted flight, e.g. \"DL123\"; defaults to the first segment"},
		tool.SchemaParam{Name: "disruptionType", Type: "string", Description: "Kind of disruption", Enum: []string{"cancelled", "delayed", "missed_connection"}},
	)
}

func (t *IrropsTool) Execute(_ context.Context, args json.RawMessage) (tool.Result, error) {
	var a struct {
		PNRText         string `json:"pnrText"`
		DisruptedFlight string `json:"disruptedFlight"`
		DisruptionType  string `json:"disruptionType"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Fail(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if strings.TrimSpace(a.PNRText) == "" {
		return tool.Fail("pnrText is required"), nil
	}

	locator, segments := ParsePNR(a.PNRText)
	if len(segments) == 0 {
		return tool.Fail("no flight segments recognized in booking text"), nil
	}

	seg := pickDisrupted(segments, a.DisruptedFlight)
	kind := a.DisruptionType
	if kind == "" {
		kind = "cancelled"
	}

	options := rebookOptions(seg, kind)

	var sb strings.Builder
	if locator != "" {
		fmt.Fprintf(&sb, "Booking %s, ", locator)
	}
	fmt.Fprintf(&sb, "%s flight %s%s %s %s→%s. Options:", kind, seg.Carrier, seg.Flight, seg.Date, seg.Origin, seg.Dest)
	for i, opt := range options {
		fmt.Fprintf(&sb, " [%d] %s.", i+1, opt)
	}
	sb.WriteString(" ")
	sb.WriteString(rightsNote(seg, kind))

	return tool.Result{
		OK:      true,
		Summary: sb.String(),
		Source:  "rebooking rules",
		Payload: map[string]any{
			"locator":         locator,
			"disruptedFlight": seg.Carrier + seg.Flight,
			"options":         options,
		},
	}, nil
}

// pickDisrupted finds the named flight among the segments, defaulting to
// the first segment when absent or not found.
func pickDisrupted(segments []PNRSegment, flight string) PNRSegment {
	f := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(flight), " ", ""))
	if f != "" {
		for _, s := range segments {
			if s.Carrier+s.Flight == f {
				return s
			}
		}
	}
	return segments[0]
}

func rebookOptions(seg PNRSegment, kind string) []string {
	var options []string
	if kind == "delayed" {
		options = append(options,
			fmt.Sprintf("hold the existing seat on %s%s; delays often recover", seg.Carrier, seg.Flight))
	}
	options = append(options,
		fmt.Sprintf("rebook on the next %s departure %s to %s on %s (same-day, no fare difference on involuntary rebooking)",
			seg.Carrier, seg.Origin, seg.Dest, seg.Date))
	for _, hub := range hubsByCarrier[seg.Carrier] {
		if hub == seg.Origin || hub == seg.Dest {
			continue
		}
		options = append(options,
			fmt.Sprintf("reroute %s-%s-%s via the %s hub %s", seg.Origin, hub, seg.Dest, seg.Carrier, hub))
		break
	}
	options = append(options,
		fmt.Sprintf("next-day %s to %s with overnight accommodation if no same-day seat remains", seg.Origin, seg.Dest))
	return options
}

func rightsNote(seg PNRSegment, kind string) string {
	if kind == "delayed" {
		return "If the delay exceeds 3 hours, meal vouchers typically apply; keep receipts."
	}
	return fmt.Sprintf("For an involuntary %s the carrier must rebook at no charge or refund the unused segment %s→%s; EU/UK departures may also owe cash compensation.",
		kind, seg.Origin, seg.Dest)
}
