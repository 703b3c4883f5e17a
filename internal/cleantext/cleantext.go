// Package cleantext normalizes extracted document text. Clean is idempotent:
// running it on its own output returns the input unchanged, so stored content
// can be re-cleaned safely.
package cleantext

import (
	"strings"
	"unicode"
)

// DefaultShrinkRatio is the minimum fraction of the normalized input that the
// aggressive cleanup must retain. When cleanup removes more than that, it is
// assumed to have eaten real content and the conservative pass is returned
// instead.
const DefaultShrinkRatio = 0.5

type Options struct {
	// ShrinkRatio overrides DefaultShrinkRatio when > 0.
	ShrinkRatio float64
}

// asciiPunct maps typographic punctuation to its ASCII equivalent.
var asciiPunct = strings.NewReplacer(
	"‘", "'", "’", "'", "‚", "'",
	"“", `"`, "”", `"`, "„", `"`,
	"–", "-", "—", "-", "−", "-",
	"…", "...",
	" ", " ",
	"�", "",
)

// BasicClean is the conservative pass: line-ending normalization, typographic
// punctuation to ASCII, control characters stripped, whitespace collapsed
// within lines, runs of blank lines collapsed to one paragraph break. It never
// removes sentence content and is idempotent.
func BasicClean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = asciiPunct.Replace(s)
	s = stripControl(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	s = strings.Join(lines, "\n")

	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s)
}

// Clean runs the full cleanup: BasicClean, then hyphenation repair, adjacent
// near-duplicate paragraph removal, and heading markup. If the aggressive
// result shrinks below the ratio guard, the BasicClean result is returned so a
// misbehaving heuristic can never destroy a document.
func Clean(s string, opts Options) string {
	ratio := opts.ShrinkRatio
	if ratio <= 0 {
		ratio = DefaultShrinkRatio
	}

	basic := BasicClean(s)
	if basic == "" {
		return ""
	}

	cleaned := rejoinHyphenation(basic)
	cleaned = dropNearDuplicateParagraphs(cleaned)
	cleaned = markHeadings(cleaned)
	cleaned = strings.TrimSpace(cleaned)

	if float64(len(cleaned)) < ratio*float64(len(basic)) {
		return basic
	}
	return cleaned
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

// rejoinHyphenation repairs words split across line breaks by print layout:
// a lowercase letter, a hyphen, a newline, then a lowercase letter. Compound
// words with a real hyphen ("state-of-the-art") are untouched because they
// never straddle the newline after BasicClean.
func rejoinHyphenation(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '-' && i > 0 && i+2 < len(runes) &&
			unicode.IsLower(runes[i-1]) && runes[i+1] == '\n' && unicode.IsLower(runes[i+2]) {
			i++ // skip the hyphen and the newline
			continue
		}
		sb.WriteRune(runes[i])
	}
	return sb.String()
}

// dropNearDuplicateParagraphs removes a paragraph when it is nearly identical
// to the one before it. PDF extraction frequently emits running headers and
// repeated footers as back-to-back paragraphs.
func dropNearDuplicateParagraphs(s string) string {
	paras := strings.Split(s, "\n\n")
	if len(paras) < 2 {
		return s
	}
	out := paras[:1]
	for _, p := range paras[1:] {
		if nearDuplicate(out[len(out)-1], p) {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, "\n\n")
}

// nearDuplicate reports whether two paragraphs share at least 90% of their
// words, ignoring case. Heading markers are not words: counting them would
// make the comparison come out differently on re-cleaned text, where the
// marker is already present.
func nearDuplicate(a, b string) bool {
	wa := contentWords(a)
	wb := contentWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return false
	}
	set := make(map[string]int, len(wa))
	for _, w := range wa {
		set[w]++
	}
	shared := 0
	for _, w := range wb {
		if set[w] > 0 {
			set[w]--
			shared++
		}
	}
	longer := len(wa)
	if len(wb) > longer {
		longer = len(wb)
	}
	return float64(shared) >= 0.9*float64(longer)
}

func contentWords(p string) []string {
	fields := strings.Fields(strings.ToLower(p))
	out := fields[:0]
	for _, w := range fields {
		if w == "#" {
			continue
		}
		out = append(out, w)
	}
	return out
}

// markHeadings prefixes probable section headings with "#". A heading is a
// short line, mostly uppercase letters, ending without sentence punctuation.
// Lines already marked are left alone, which keeps the pass idempotent.
func markHeadings(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if looksLikeHeading(line) {
			lines[i] = "# " + line
		}
	}
	return strings.Join(lines, "\n")
}

func looksLikeHeading(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false
	}
	runes := []rune(line)
	if len(runes) < 3 || len(runes) > 60 {
		return false
	}
	switch runes[len(runes)-1] {
	case '.', ',', ';', ':', '?', '!':
		return false
	}
	letters, upper := 0, 0
	for _, r := range runes {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters < 3 {
		return false
	}
	return float64(upper) >= 0.8*float64(letters)
}
