package enrich

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxDescriptionChars bounds how much of a report is sent to the model
const maxDescriptionChars = 4000

func clip(description string) string {
	description = strings.TrimSpace(description)
	if len(description) <= maxDescriptionChars {
		return description
	}
	cut := maxDescriptionChars
	for cut > 0 && !utf8.RuneStart(description[cut]) {
		cut--
	}
	return description[:cut]
}

func buildSummaryPrompt(description string) string {
	return fmt.Sprintf(`Summarize the following bug report in 10 to 60 words.
Describe what is broken and where. Reply with the summary text only, no preamble.

Bug report:
%s
`, clip(description))
}

func buildTagsPrompt(description string, labels []string) string {
	return fmt.Sprintf(`Classify the following bug report against these labels: %s.

Reply with a JSON array containing every label that applies, most relevant first.
Use the labels exactly as written. Reply with the JSON array only.

Bug report:
%s
`, strings.Join(labels, ", "), clip(description))
}

func buildCategoryPrompt(description string, labels []string) string {
	return fmt.Sprintf(`Choose the single best category for the following bug report.

Categories: %s

Reply with the category name only, exactly as written above.

Bug report:
%s
`, strings.Join(labels, ", "), clip(description))
}

func buildSeverityPrompt(description string) string {
	return fmt.Sprintf(`Rate the severity of the following bug report as Low, Medium or High.
High: data loss, security, payments or a blocked core flow.
Medium: a feature misbehaves but a workaround exists.
Low: cosmetic or minor annoyance.

Reply with one word: Low, Medium or High.

Bug report:
%s
`, clip(description))
}
