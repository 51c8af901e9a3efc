package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/tripwise/tripwise/internal/llm"
)

// Complexity is the gate verdict for one message.
type Complexity struct {
	IsComplex  bool    `json:"isComplex"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Signal categories counted by the heuristic. Three or more distinct
// categories mark the query complex.
var complexitySignals = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"budget", regexp.MustCompile(`(?i)\b(budget|cheap|cheapest|afford|expensive|luxury|under \$?\d|cost|price)\b`)},
	{"group", regexp.MustCompile(`(?i)\b(family|kids?|children|couple|friends|group of|solo|my (?:wife|husband|partner|parents))\b`)},
	{"time", regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|\d+ (?:days?|weeks?|nights?)|weekend|spring|summer|autumn|fall|winter|next (?:week|month))\b`)},
	{"origin", regexp.MustCompile(`(?i)\bfrom\s+[A-Z][a-z]`)},
	{"location", regexp.MustCompile(`(?i)\b(?:to|in|visit(?:ing)?|around)\s+[A-Z][a-z]`)},
	{"special", regexp.MustCompile(`(?i)\b(visa|accessib|wheelchair|vegan|vegetarian|halal|kosher|pet|dog|honeymoon|anniversary|multi[- ]?(?:city|country)|itinerary)\b`)},
}

const complexityThreshold = 3

// classifyComplexityHeuristic counts signal categories. conclusive is false
// in the borderline band where the LLM fallback should decide.
func classifyComplexityHeuristic(message string) (c Complexity, conclusive bool) {
	var hit []string
	for _, s := range complexitySignals {
		if s.pattern.MatchString(message) {
			hit = append(hit, s.name)
		}
	}
	n := len(hit)
	c.Reasoning = fmt.Sprintf("signal categories: %s", strings.Join(hit, ", "))

	if n >= complexityThreshold {
		c.IsComplex = true
		c.Confidence = 0.6 + 0.1*float64(n-2)
		if c.Confidence > 0.95 {
			c.Confidence = 0.95
		}
		return c, true
	}
	if n <= 1 {
		c.Confidence = 0.9
		return c, true
	}
	// Exactly one short of the threshold: inconclusive.
	c.Confidence = 0.5
	return c, false
}

const complexityPrompt = `You classify whether a travel question needs deep multi-source research.
Complex means it combines several constraints (budget, group, dates, origin, destination, special needs) or needs comparison across many options.
Respond with strict JSON only: {"isComplex": bool, "confidence": 0.0-1.0, "reasoning": "one sentence"}`

// classifyComplexity runs the heuristic and falls back to a JSON-returning
// LLM classifier when the heuristic is inconclusive.
func (r *Router) classifyComplexity(ctx context.Context, message string) Complexity {
	c, conclusive := classifyComplexityHeuristic(message)
	if conclusive {
		return c
	}

	opts := &llm.Options{Timeout: r.cfg.ClassifierTimeout, ResponseFormat: llm.FormatJSON}
	resp, err := r.llm.CallLLM(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: complexityPrompt},
		{Role: llm.RoleUser, Content: message},
	}, opts)
	if err != nil {
		log.Printf("[Router] Complexity classifier failed, treating as simple: %v", err)
		return c
	}

	var verdict Complexity
	if jerr := json.Unmarshal(extractJSON(resp.Content), &verdict); jerr != nil {
		log.Printf("[Router] Complexity classifier returned malformed JSON, treating as simple: %v", jerr)
		return c
	}
	return verdict
}
