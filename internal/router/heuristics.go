package router

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/tripwise/tripwise/internal/session"
)

// flightFastPath matches "flight(s) ... from X to Y" phrasing and captures
// the two endpoints directly.
var flightFastPath = regexp.MustCompile(
	`(?i)\bflights?\b.*?\bfrom\s+([A-Za-z][A-Za-z .'-]{1,40}?)\s+to\s+([A-Za-z][A-Za-z .'-]{1,40}?)(?:\s+(?:on|in|for|next|this|tomorrow|today)\b|[.,?!]|$)`)

// fromToPattern is the looser endpoint extractor used by the flight slot
// extractor when the fast path did not fire.
var fromToPattern = regexp.MustCompile(
	`(?i)\bfrom\s+([A-Za-z][A-Za-z .'-]{1,40}?)(?:\s+to\s+([A-Za-z][A-Za-z .'-]{1,40}?))?(?:\s+(?:on|in|for|next|this|tomorrow|today)\b|[.,?!]|$)`)

var toPattern = regexp.MustCompile(
	`(?i)\bto\s+([A-Za-z][A-Za-z .'-]{1,40}?)(?:\s+(?:on|in|for|from|next|this|tomorrow|today)\b|[.,?!]|$)`)

var isoDatePattern = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)

var monthNamePattern = regexp.MustCompile(
	`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\b`)

var (
	weatherCues = regexp.MustCompile(`(?i)\b(weather|temperature|forecast|rain|raining|snow|sunny|humid|hot|cold|degrees)\b`)
	flightCues  = regexp.MustCompile(`(?i)\b(flight|flights|fly|flying|airfare|airline|airport|nonstop|layover)\b`)
)

// temporalPhrasePattern matches the relative date tokens that must be kept
// verbatim in date slots.
var temporalPhrasePattern = regexp.MustCompile(
	`(?i)\b(day after tomorrow|tomorrow|today|tonight|this (?:week|weekend|evening|morning)|next (?:week|month|monday|tuesday|wednesday|thursday|friday|saturday|sunday))\b`)

// intentCues backs the lightweight classifier: first matching intent wins,
// scored by cue strength.
var intentCues = []struct {
	intent       string
	pattern      *regexp.Regexp
	confidence   float64
	needExternal bool
}{
	{"weather", regexp.MustCompile(`(?i)\b(weather|forecast|temperature|rain|how (?:hot|cold))\b`), 0.85, true},
	{"packing", regexp.MustCompile(`(?i)\b(pack|packing|bring|suitcase|luggage|what (?:should i|to) (?:wear|take))\b`), 0.85, true},
	{"attractions", regexp.MustCompile(`(?i)\b(attractions?|things to (?:do|see)|sightseeing|museums?|landmarks?|what to see)\b`), 0.8, true},
	{"flights", regexp.MustCompile(`(?i)\b(flights?|fly|airfare|book.*plane|plane tickets?)\b`), 0.8, true},
	{"policy", regexp.MustCompile(`(?i)\b(visa|visas|passport|entry (?:requirements?|rules)|customs|baggage (?:policy|allowance)|refund policy)\b`), 0.85, true},
	{"destinations", regexp.MustCompile(`(?i)\b(where (?:should|can|to) (?:i|we) (?:go|travel)|destination|recommend.*(?:country|city|place)|suggest.*(?:trip|place))\b`), 0.75, true},
	{"web_search", regexp.MustCompile(`(?i)\b(search|look up|find out|latest|news about|events? in)\b`), 0.7, true},
}

// classifyLightweight is the local intent classifier. Zero confidence means
// no cue matched.
func classifyLightweight(message string) (intent string, confidence float64, needExternal bool) {
	for _, c := range intentCues {
		if c.pattern.MatchString(message) {
			return c.intent, c.confidence, c.needExternal
		}
	}
	return "", 0, false
}

// hasTimeSignal reports whether the message carries any fresh date/time
// reference (month name, ISO date, relative token, or season).
func hasTimeSignal(message string) bool {
	if monthNamePattern.MatchString(message) || isoDatePattern.MatchString(message) {
		return true
	}
	if temporalPhrasePattern.MatchString(message) {
		return true
	}
	return regexp.MustCompile(`(?i)\b(spring|summer|autumn|fall|winter)\b`).MatchString(message)
}

var profileCues = regexp.MustCompile(
	`(?i)\b(family|kids?|children|couple|honeymoon|solo|friends|group|budget|cheap|luxury|backpack|business trip)\b`)

// hasProfileSignal reports whether the message carries a traveler-profile
// reference.
func hasProfileSignal(message string) bool {
	return profileCues.MatchString(message)
}

// extractFlightSlots pulls origin/destination/date deltas out of the
// message. Relative dates are preserved verbatim; only the flight tools
// resolve them to calendar dates.
func extractFlightSlots(message string) map[string]string {
	slots := make(map[string]string)

	if m := flightFastPath.FindStringSubmatch(message); m != nil {
		slots[session.SlotOriginCity] = cleanPlace(m[1])
		slots[session.SlotDestinationCity] = cleanPlace(m[2])
	} else if m := fromToPattern.FindStringSubmatch(message); m != nil {
		slots[session.SlotOriginCity] = cleanPlace(m[1])
		if m[2] != "" {
			slots[session.SlotDestinationCity] = cleanPlace(m[2])
		}
	} else if m := toPattern.FindStringSubmatch(message); m != nil {
		slots[session.SlotDestinationCity] = cleanPlace(m[1])
	}

	if m := isoDatePattern.FindStringSubmatch(message); m != nil {
		slots[session.SlotDepartureDate] = m[1]
	} else if m := temporalPhrasePattern.FindStringSubmatch(message); m != nil {
		slots[session.SlotDepartureDate] = strings.ToLower(m[1])
	} else if m := monthNamePattern.FindStringSubmatch(message); m != nil {
		slots[session.SlotMonth] = titleCase(m[1])
	}

	for k, v := range slots {
		if v == "" {
			delete(slots, k)
		}
	}
	return slots
}

func cleanPlace(s string) string {
	return strings.TrimSpace(strings.Trim(s, " .,!?"))
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// foldTransformer strips diacritics after NFD decomposition.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizePlace lowercases, strips diacritics and collapses whitespace so
// "São Paulo" and "sao  paulo" compare equal.
func normalizePlace(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// samePlace compares two location strings, diacritics and whitespace
// insensitive.
func samePlace(a, b string) bool {
	return normalizePlace(a) == normalizePlace(b)
}

// messageMentions reports whether the message contains the place, using the
// same normalization as samePlace.
func messageMentions(message, place string) bool {
	if place == "" {
		return false
	}
	return strings.Contains(normalizePlace(message), normalizePlace(place))
}
