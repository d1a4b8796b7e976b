package whatsapp

import (
	"regexp"
	"strings"
)

var (
	citationPattern = regexp.MustCompile(`【.*?】`)
	boldPattern     = regexp.MustCompile(`\*\*(.*?)\*\*`)
)

// ProcessTextForWhatsApp strips assistant citation markers and rewrites
// markdown bold into WhatsApp bold.
func ProcessTextForWhatsApp(text string) string {
	text = strings.TrimSpace(citationPattern.ReplaceAllString(text, ""))
	return boldPattern.ReplaceAllString(text, "*${1}*")
}
