package engine

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// StripMarkup removes HTML/script content from externally sourced text
// before it enters a StageResult or node label. Script and style bodies are
// dropped entirely, tags are replaced by their text content, and whitespace
// is collapsed. Text without recognizable HTML passes through untouched
// apart from trimming: angle brackets in prose, comparisons and made-up
// bracketed terms are not markup.
func StripMarkup(s string) string {
	if !containsMarkup(s) {
		return strings.TrimSpace(s)
	}

	tokenizer := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return collapseWhitespace(b.String())
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isDangerousTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isDangerousTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
				b.WriteByte(' ')
			}
		}
	}
}

// containsMarkup reports whether the text holds at least one tag with a
// known HTML element name. A lone "<TreatmentA>" or "a < b" never does.
func containsMarkup(s string) bool {
	if !strings.ContainsAny(s, "<>") {
		return false
	}
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if a := atom.Lookup(name); a != 0 {
				return true
			}
		}
	}
}

func isDangerousTag(name string) bool {
	switch name {
	case "script", "style", "iframe", "object", "embed":
		return true
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
