package scope

import "strings"

// ReplyType tags the final assistant reply for client-side styling.
type ReplyType string

const (
	ReplyNormal         ReplyType = "normal"
	ReplyRecommendation ReplyType = "recommendation"
	ReplyAchievement    ReplyType = "achievement"
)

// ClassifyReply tags a generated reply by phrase heuristics. Achievement wins
// over recommendation when both appear.
func (c *Classifier) ClassifyReply(reply string) ReplyType {
	r := strings.ToLower(reply)
	for _, p := range c.rules.AchievementPhrases {
		if strings.Contains(r, p) {
			return ReplyAchievement
		}
	}
	for _, p := range c.rules.RecommendationPhrases {
		if strings.Contains(r, p) {
			return ReplyRecommendation
		}
	}
	return ReplyNormal
}

// ClassifyFallback tags a fallback reply from the user's original question,
// since the canned text itself carries no signal. Restricted to
// normal/recommendation.
func (c *Classifier) ClassifyFallback(userMessage string) ReplyType {
	m := strings.ToLower(userMessage)
	for _, p := range []string{
		"recomiendas", "recomienda", "debería", "deberia", "qué como",
		"que como", "plan", "rutina", "recommend", "should i",
	} {
		if strings.Contains(m, p) {
			return ReplyRecommendation
		}
	}
	return ReplyNormal
}
