// Package chunker splits a paper's per-page text into retrieval chunks,
// classifying each by the section it falls under.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"paperchat/internal/model"
)

const (
	maxChunkRunes     = 1200
	overlapRunes      = 200
	minChunkRunes     = 40
	headingConfidence = 0.9
	bodyConfidence    = 0.6
)

// Chunk is one ingestion unit before embedding.
type Chunk struct {
	Content       string
	PageNumber    int
	SectionTitle  string
	SectionType   model.SectionType
	StartPosition int
	EndPosition   int
	Confidence    float64
}

var headingPatterns = []struct {
	re          *regexp.Regexp
	sectionType model.SectionType
}{
	{regexp.MustCompile(`(?i)^\s*(?:\d+[.\s]+)?abstract\b`), model.SectionAbstract},
	{regexp.MustCompile(`(?i)^\s*(?:\d+[.\s]+)?introduction\b`), model.SectionIntroduction},
	{regexp.MustCompile(`(?i)^\s*(?:\d+[.\s]+)?(?:methods?|methodology|materials and methods|experimental setup)\b`), model.SectionMethodology},
	{regexp.MustCompile(`(?i)^\s*(?:\d+[.\s]+)?(?:results|findings|evaluation)\b`), model.SectionResults},
	{regexp.MustCompile(`(?i)^\s*(?:\d+[.\s]+)?discussion\b`), model.SectionDiscussion},
	{regexp.MustCompile(`(?i)^\s*(?:\d+[.\s]+)?(?:conclusions?|summary)\b`), model.SectionConclusion},
	{regexp.MustCompile(`(?i)^\s*(?:\d+[.\s]+)?(?:references|bibliography)\b`), model.SectionReferences},
	{regexp.MustCompile(`(?i)^\s*(?:appendix|appendices|supplementary)\b`), model.SectionAppendix},
	{regexp.MustCompile(`(?i)^\s*(?:figure|fig\.)\s*\d+`), model.SectionFigure},
	{regexp.MustCompile(`(?i)^\s*table\s*\d+`), model.SectionTable},
}

// Split chunks each page's text by paragraph, carrying the current section
// across pages. Page numbers are 1-based; StartPosition and EndPosition are
// rune offsets into the pages joined by a single newline, so every chunk's
// content (overlapping windows included) slices back out of the joined text.
func Split(pages []string) []Chunk {
	var chunks []Chunk
	sectionType := model.SectionOther
	sectionTitle := ""
	pageBase := 0

	for pageIdx, page := range pages {
		pageNumber := pageIdx + 1
		if pageNumber == 1 && sectionType == model.SectionOther {
			sectionType = model.SectionTitle
		}

		for _, para := range splitParagraphs(page) {
			if t, title, ok := detectHeading(para.text); ok {
				sectionType = t
				sectionTitle = title
			}

			for _, piece := range splitLong(para.text) {
				runes := []rune(piece.text)
				if len(runes) < minChunkRunes {
					continue
				}
				start := pageBase + para.start + piece.start
				chunks = append(chunks, Chunk{
					Content:       piece.text,
					PageNumber:    pageNumber,
					SectionTitle:  sectionTitle,
					SectionType:   sectionType,
					StartPosition: start,
					EndPosition:   start + len(runes),
					Confidence:    confidenceFor(sectionType),
				})
			}
		}
		// One rune for the newline joining consecutive pages.
		pageBase += utf8.RuneCountInString(page) + 1
	}
	return chunks
}

// SectionSequence returns the chunk section types in order, the input to
// the document structure hash.
func SectionSequence(chunks []Chunk) []model.SectionType {
	seq := make([]model.SectionType, len(chunks))
	for i, c := range chunks {
		seq[i] = c.SectionType
	}
	return seq
}

var paragraphSep = regexp.MustCompile(`\n\s*\n`)

// paragraph is a trimmed block and its rune offset within the page.
type paragraph struct {
	text  string
	start int
}

func splitParagraphs(page string) []paragraph {
	blocks := paragraphSep.Split(page, -1)
	seps := paragraphSep.FindAllString(page, -1)

	var paragraphs []paragraph
	pos := 0
	for i, block := range blocks {
		if trimmed := strings.TrimSpace(block); trimmed != "" {
			lead := utf8.RuneCountInString(block) - utf8.RuneCountInString(strings.TrimLeftFunc(block, unicode.IsSpace))
			paragraphs = append(paragraphs, paragraph{text: trimmed, start: pos + lead})
		}
		pos += utf8.RuneCountInString(block)
		if i < len(seps) {
			pos += utf8.RuneCountInString(seps[i])
		}
	}
	return paragraphs
}

// window is one piece of an oversized paragraph and its rune offset within
// that paragraph. Consecutive window offsets overlap by overlapRunes.
type window struct {
	text  string
	start int
}

// splitLong windows an oversized paragraph with overlap so no chunk
// exceeds maxChunkRunes.
func splitLong(text string) []window {
	runes := []rune(text)
	if len(runes) <= maxChunkRunes {
		return []window{{text: text}}
	}
	var windows []window
	for i := 0; i < len(runes); {
		end := i + maxChunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		windows = append(windows, window{text: string(runes[i:end]), start: i})
		if end == len(runes) {
			break
		}
		i += maxChunkRunes - overlapRunes
	}
	return windows
}

func detectHeading(para string) (model.SectionType, string, bool) {
	firstLine := para
	if idx := strings.IndexByte(para, '\n'); idx >= 0 {
		firstLine = para[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)
	if firstLine == "" || len(firstLine) > 80 {
		return "", "", false
	}
	for _, hp := range headingPatterns {
		if hp.re.MatchString(firstLine) {
			return hp.sectionType, firstLine, true
		}
	}
	return "", "", false
}

func confidenceFor(sectionType model.SectionType) float64 {
	if sectionType == model.SectionOther {
		return bodyConfidence
	}
	return headingConfidence
}
