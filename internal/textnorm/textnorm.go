// Package textnorm turns free text into deterministic token sequences used by
// the résumé parser and the similarity engine.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a about above after again against all am an and any are as at be because been
		before being below between both but by can could did do does doing down during
		each few for from further had has have having he her here hers herself him
		himself his how i if in into is it its itself just me more most my myself no nor
		not now of off on once only or other our ours ourselves out over own same she
		should so some such than that the their theirs them themselves then there these
		they this those through to too under until up very was we were what when where
		which while who whom why will with would you your yours yourself yourselves
		etc also within per via`) {
		stopwords[w] = struct{}{}
	}
}

// IsStopword reports whether the lower-cased token is ignored by Normalize.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

// Normalize lower-cases text, splits it on everything that is not a letter,
// digit, '+' or '#', and drops stopwords and single-rune tokens.
// The result is never nil.
func Normalize(text string) []string {
	tokens := make([]string, 0)
	for _, tok := range split(text) {
		if IsStopword(tok) {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// Phrase tokenizes like Normalize but keeps stopwords and single-rune tokens,
// so lexicon phrases such as "go to market" or "c" keep their shape.
func Phrase(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !keep(r)
	})
	if fields == nil {
		return []string{}
	}
	return fields
}

// Join is a convenience for callers that need a canonical single-string form.
func Join(tokens []string) string {
	return strings.Join(tokens, " ")
}

func split(text string) []string {
	fields := Phrase(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 {
			continue
		}
		out = append(out, f)
	}
	return out
}

func keep(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#'
}

// StripHTML returns the visible text of an HTML fragment. Block elements are
// separated by newlines. Input that is not HTML is returned trimmed.
func StripHTML(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return strings.TrimSpace(html)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}

	var b strings.Builder
	collectText(doc.Selection, &b)

	lines := strings.Split(b.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

var blockElements = map[string]bool{
	"br": true, "p": true, "li": true, "div": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

func collectText(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		switch name := goquery.NodeName(s); name {
		case "#text":
			b.WriteString(s.Text())
		case "script", "style", "#comment":
		default:
			collectText(s, b)
			if blockElements[name] {
				b.WriteString("\n")
			}
		}
	})
}
