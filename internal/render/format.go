package render

import (
	"html/template"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/MegaGrindStone/chat-widget/internal/models"
)

var (
	boldPattern     = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicPattern   = regexp.MustCompile(`\*(.*?)\*`)
	parenListMarker = regexp.MustCompile(`\d+\)\s`)
	dotListMarker   = regexp.MustCompile(`(?m)^(\d+\.\s)`)
	wordStart       = regexp.MustCompile(`\b\w`)
)

// Confidence tiers used as CSS class suffixes.
const (
	TierHigh   = "high"
	TierMedium = "medium"
	TierLow    = "low"
)

// lowConfidence is the threshold under which the confidence annotation is shown.
const lowConfidence = 0.5

// EscapeHTML escapes text so it renders as inert text inside an HTML element.
func EscapeHTML(text string) string {
	return template.HTMLEscapeString(text)
}

// FormatMessage applies the light formatting used for bot replies. The steps run in order: newlines
// become line breaks, **bold** and *italic* markers become emphasis, and numbered-list markers get a
// line break in front of them. The input is not escaped.
func FormatMessage(text string) string {
	s := strings.ReplaceAll(text, "\n", "<br>")
	s = boldPattern.ReplaceAllString(s, "<strong>${1}</strong>")
	s = italicPattern.ReplaceAllString(s, "<em>${1}</em>")
	s = parenListMarker.ReplaceAllString(s, "<br>${0}")
	s = dotListMarker.ReplaceAllString(s, "<br>${1}")
	return s
}

// FormatIntent turns an intent label such as "technical_interview" into "Technical Interview".
func FormatIntent(intent string) string {
	s := strings.ReplaceAll(intent, "_", " ")
	return wordStart.ReplaceAllStringFunc(s, strings.ToUpper)
}

// ShowsBadge reports whether an intent gets a badge.
func ShowsBadge(intent string) bool {
	return intent != "" && intent != models.IntentError && intent != models.IntentFallback
}

// ConfidenceTier maps a confidence score to its style tier.
func ConfidenceTier(confidence float64) string {
	switch {
	case confidence > 0.8:
		return TierHigh
	case confidence > 0.5:
		return TierMedium
	default:
		return TierLow
	}
}

// ConfidenceNote returns the "Confidence: NN%" annotation, or "" when the confidence is high enough
// not to be shown.
func ConfidenceNote(confidence float64) string {
	if confidence >= lowConfidence {
		return ""
	}
	pct := int(math.Floor(confidence*100 + 0.5))
	return "Confidence: " + strconv.Itoa(pct) + "%"
}
