package scope

import (
	"strings"
	"unicode/utf8"
)

// Result of classifying one inbound user message.
type Result struct {
	IsRelevant bool
	Confidence float64
	Reason     string
}

const (
	ReasonBlockedPhrase  = "blocked_phrase"
	ReasonOfftopicTerm   = "offtopic_term"
	ReasonGreeting       = "greeting"
	ReasonShortAmbiguous = "short_ambiguous"
	ReasonFitnessTerms   = "fitness_terms"
	ReasonAppNavigation  = "app_navigation"
	ReasonNoFitnessTerms = "no_fitness_keywords_found"
	ReasonDefault        = "default"
)

// Classifier decides whether a message belongs to the fitness/nutrition
// domain before anything expensive runs. Pure: no I/O after construction.
type Classifier struct {
	rules Rules
}

func NewClassifier(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

// Classify walks the decision ladder in priority order. It only ever returns
// IsRelevant=false on a high-confidence keyword hit; ambiguous messages are
// forwarded with low confidence so the model can decide.
func (c *Classifier) Classify(message string) Result {
	msg := strings.ToLower(strings.TrimSpace(message))

	for _, p := range c.rules.BlockedPhrases {
		if strings.Contains(msg, p) {
			return Result{IsRelevant: false, Confidence: 0.99, Reason: ReasonBlockedPhrase}
		}
	}
	for _, t := range c.rules.OfftopicTerms {
		if strings.Contains(msg, t) {
			return Result{IsRelevant: false, Confidence: 0.98, Reason: ReasonOfftopicTerm}
		}
	}

	if utf8.RuneCountInString(msg) < 15 {
		for _, g := range c.rules.Greetings {
			if strings.Contains(msg, g) {
				return Result{IsRelevant: true, Confidence: 0.9, Reason: ReasonGreeting}
			}
		}
		return Result{IsRelevant: true, Confidence: 0.4, Reason: ReasonShortAmbiguous}
	}

	hits := 0
	for _, t := range c.rules.FitnessTerms {
		if strings.Contains(msg, t) {
			hits++
			if hits >= 2 {
				break
			}
		}
	}
	switch hits {
	case 0:
		// fall through to the remaining rungs
	case 1:
		return Result{IsRelevant: true, Confidence: 0.85, Reason: ReasonFitnessTerms}
	default:
		return Result{IsRelevant: true, Confidence: 0.95, Reason: ReasonFitnessTerms}
	}

	for _, t := range c.rules.AppTerms {
		if strings.Contains(msg, t) {
			return Result{IsRelevant: true, Confidence: 0.7, Reason: ReasonAppNavigation}
		}
	}

	if utf8.RuneCountInString(msg) > 20 {
		return Result{IsRelevant: true, Confidence: 0.2, Reason: ReasonNoFitnessTerms}
	}

	return Result{IsRelevant: true, Confidence: 0.5, Reason: ReasonDefault}
}

// ShouldReject applies the caller policy: reject only confident negatives.
func (c *Classifier) ShouldReject(r Result) bool {
	return !r.IsRelevant && r.Confidence > c.rules.RejectThreshold
}
