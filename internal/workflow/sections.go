package workflow

import "strings"

// Fallback parser for models that answer with labeled prose sections
// instead of the requested JSON. Slices text between the literal headers
// EXPLANATION / ANALOGIES / EXAMPLES / FOLLOW_UP; missing headers yield
// empty fields, and text before the first header is treated as the
// explanation.
var sectionHeaders = []string{"EXPLANATION", "ANALOGIES", "EXAMPLES", "FOLLOW_UP"}

func parseSections(raw string) (explanation string, analogies, examples, followUps []string) {
	positions := make(map[string]int, len(sectionHeaders))
	for _, header := range sectionHeaders {
		positions[header] = strings.Index(raw, header)
	}

	section := func(header string) string {
		start := positions[header]
		if start < 0 {
			return ""
		}
		start += len(header)
		// Skip a trailing colon and whitespace after the header.
		for start < len(raw) && (raw[start] == ':' || raw[start] == ' ' || raw[start] == '\n' || raw[start] == '\r') {
			start++
		}
		end := len(raw)
		for _, other := range sectionHeaders {
			if pos := positions[other]; pos > start && pos < end {
				end = pos
			}
		}
		return strings.TrimSpace(raw[start:end])
	}

	explanation = section("EXPLANATION")
	if explanation == "" && positions["EXPLANATION"] < 0 {
		// No EXPLANATION header at all: take everything before the first
		// recognized header, or the whole text.
		end := len(raw)
		for _, header := range sectionHeaders {
			if pos := positions[header]; pos >= 0 && pos < end {
				end = pos
			}
		}
		explanation = strings.TrimSpace(raw[:end])
	}
	analogies = splitListItems(section("ANALOGIES"))
	examples = splitListItems(section("EXAMPLES"))
	followUps = splitListItems(section("FOLLOW_UP"))
	return explanation, analogies, examples, followUps
}

// splitListItems turns a bulleted or line-separated block into items.
func splitListItems(block string) []string {
	if block == "" {
		return nil
	}
	var items []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789. )")
		line = strings.TrimSpace(line)
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}
