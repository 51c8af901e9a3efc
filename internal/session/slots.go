package session

import "strings"

// Slot keys. All values are plain strings; absent means unknown.
const (
	SlotCity            = "city"
	SlotDestinationCity = "destinationCity"
	SlotOriginCity      = "originCity"
	SlotCountry         = "country"
	SlotRegion          = "region"

	SlotMonth         = "month"
	SlotDates         = "dates"
	SlotDepartureDate = "departureDate"
	SlotReturnDate    = "returnDate"
	SlotTravelWindow  = "travelWindow"
	SlotSeason        = "season"

	SlotTravelerProfile = "travelerProfile"
	SlotTravelStyle     = "travelStyle"
	SlotGroupType       = "groupType"
	SlotBudgetLevel     = "budgetLevel"
	SlotActivityType    = "activityType"

	SlotSearchQuery = "search_query"

	SlotComplexityScore     = "complexity_score"
	SlotComplexityReasoning = "complexity_reasoning"

	SlotClarificationOptions   = "clarification_options"
	SlotClarificationReasoning = "clarification_reasoning"
)

// Consent kinds with awaiting_<kind>_consent / pending_<kind>_query pairs.
const (
	ConsentDeepResearch        = "deep_research"
	ConsentSearch              = "search"
	ConsentWebSearch           = "web_search"
	ConsentFlightClarification = "flight_clarification"
)

// AwaitingConsentKey returns the awaiting_<kind>_consent slot key.
func AwaitingConsentKey(kind string) string { return "awaiting_" + kind + "_consent" }

// PendingQueryKey returns the pending_<kind>_query slot key.
func PendingQueryKey(kind string) string { return "pending_" + kind + "_query" }

// LocationKeys in placeholder-resolution precedence order.
var LocationKeys = []string{SlotCity, SlotDestinationCity, SlotCountry, SlotOriginCity, SlotRegion}

// TimeKeys are reset on context switch and by the stale-guard.
var TimeKeys = []string{SlotMonth, SlotDates, SlotDepartureDate, SlotReturnDate, SlotTravelWindow, SlotSeason}

// ProfileKeys are reset on context switch and by the stale-guard.
var ProfileKeys = []string{SlotTravelerProfile, SlotTravelStyle, SlotGroupType, SlotBudgetLevel, SlotActivityType}

// temporalTokens are relative time references that must be preserved
// verbatim in date slots (resolved only at tool level).
var temporalTokens = map[string]bool{
	"today":        true,
	"tonight":      true,
	"tomorrow":     true,
	"now":          true,
	"this week":    true,
	"this weekend": true,
	"this evening": true,
	"this morning": true,
	"next week":    true,
	"next month":   true,
}

// IsTemporalReference reports whether s is a relative time token.
func IsTemporalReference(s string) bool {
	return temporalTokens[strings.ToLower(strings.TrimSpace(s))]
}

// placeholderTokens are location references that point back at an earlier
// concrete location. They are never stored as slot values.
var placeholderTokens = map[string]bool{
	"there":      true,
	"here":       true,
	"same place": true,
	"same city":  true,
	"that place": true,
	"that city":  true,
}

// IsPlaceholder reports whether s refers back to a previous location.
func IsPlaceholder(s string) bool {
	return placeholderTokens[strings.ToLower(strings.TrimSpace(s))]
}

// resolveLocation picks the most recent concrete location using the fixed
// key precedence. Empty when no concrete location is known.
func resolveLocation(slots map[string]string) string {
	for _, k := range LocationKeys {
		if v := slots[k]; v != "" && !IsPlaceholder(v) {
			return v
		}
	}
	return ""
}

// NormalizeSlots merges the incoming slot delta onto prev:
//   - empty incoming values are dropped
//   - placeholder tokens are resolved against the most recent concrete
//     location (or dropped when none is known)
//   - for intent "flights", prior origin/destination survive unless the
//     new turn explicitly overwrites them
//
// The result contains only the keys to persist; prev is not modified.
func NormalizeSlots(prev, incoming map[string]string, intent string) map[string]string {
	out := make(map[string]string, len(incoming))
	reference := resolveLocation(prev)

	for k, v := range incoming {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if isLocationKey(k) && IsPlaceholder(v) {
			if reference == "" {
				continue // nothing to resolve against; absent beats a placeholder
			}
			v = reference
		}
		out[k] = v
	}

	if intent == "flights" {
		for _, k := range []string{SlotOriginCity, SlotDestinationCity} {
			if out[k] == "" && prev[k] != "" {
				out[k] = prev[k]
			}
		}
	}
	return out
}

func isLocationKey(k string) bool {
	for _, lk := range LocationKeys {
		if k == lk {
			return true
		}
	}
	return false
}

// ConsentStateKeys returns every consent/complexity/clarification key
// present in slots. The turn driver deletes these as one unit; other slots
// are untouched.
func ConsentStateKeys(slots map[string]string) []string {
	var keys []string
	for k := range slots {
		if strings.HasPrefix(k, "awaiting_") && strings.HasSuffix(k, "_consent") {
			keys = append(keys, k)
			continue
		}
		if strings.HasPrefix(k, "pending_") && strings.HasSuffix(k, "_query") {
			keys = append(keys, k)
			continue
		}
		switch k {
		case SlotComplexityScore, SlotComplexityReasoning,
			SlotClarificationOptions, SlotClarificationReasoning:
			keys = append(keys, k)
		}
	}
	return keys
}

// ContextResetKeys returns every location, time, profile, consent, and aux
// key present in slots — the full reset set applied on a context switch.
func ContextResetKeys(slots map[string]string) []string {
	keys := ConsentStateKeys(slots)
	for _, group := range [][]string{LocationKeys, TimeKeys, ProfileKeys} {
		for _, k := range group {
			if _, ok := slots[k]; ok {
				keys = append(keys, k)
			}
		}
	}
	return keys
}
