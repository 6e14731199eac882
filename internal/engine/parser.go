package engine

import (
	"regexp"
	"strings"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
)

// ResponseParser extracts structured fields from free-form reasoning output.
// Keeping it behind an interface isolates the brittle text-pattern matching
// and lets tests substitute a strict parser.
type ResponseParser interface {
	// ParseContext reads line-anchored "Field:", "Topic:", "Objectives:" ...
	// headers into a research context.
	ParseContext(text string) *schemas.ResearchContext
	// ParseList reads bullet ("-", "*", "•") and numbered ("1.", "2)") lines.
	ParseList(text string) []string
	// ParseBiasFlags reads bullet lines mentioning bias.
	ParseBiasFlags(text string) []string
}

// LineParser is the fallback grammar implementation. The grammar is
// line-anchored: a header line "Key: value" sets a scalar field or opens a
// list section; subsequent bullet lines extend the open section until the
// next header.
type LineParser struct{}

// NewLineParser returns the default parser.
func NewLineParser() *LineParser { return &LineParser{} }

var (
	bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
	headerLine   = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z /-]{1,40}):\s*(.*)$`)
)

func (p *LineParser) ParseContext(text string) *schemas.ResearchContext {
	rc := &schemas.ResearchContext{}
	var section *[]string

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if m := headerLine.FindStringSubmatch(trimmed); m != nil {
			key := strings.ToLower(strings.TrimSpace(m[1]))
			value := strings.TrimSpace(m[2])
			switch key {
			case "field":
				rc.Field = value
				section = nil
			case "topic":
				rc.Topic = value
				section = nil
			case "objectives", "objective":
				section = &rc.Objectives
				appendInline(section, value)
			case "hypotheses", "hypothesis":
				section = &rc.Hypotheses
				appendInline(section, value)
			case "constraints", "constraint":
				section = &rc.Constraints
				appendInline(section, value)
			case "biases", "bias flags", "detected biases":
				section = &rc.BiasFlags
				appendInline(section, value)
			case "gaps", "knowledge gaps":
				section = &rc.KnowledgeGaps
				appendInline(section, value)
			default:
				section = nil
			}
			continue
		}

		if section != nil && bulletPrefix.MatchString(line) {
			item := strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
			if item != "" {
				*section = append(*section, item)
			}
		}
	}
	return rc
}

// appendInline handles "Objectives: a; b; c" headers carrying their list on
// the same line.
func appendInline(section *[]string, value string) {
	if value == "" {
		return
	}
	for _, part := range strings.FieldsFunc(value, func(r rune) bool { return r == ';' || r == ',' }) {
		if item := strings.TrimSpace(part); item != "" {
			*section = append(*section, item)
		}
	}
}

func (p *LineParser) ParseList(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		if !bulletPrefix.MatchString(line) {
			continue
		}
		item := strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

func (p *LineParser) ParseBiasFlags(text string) []string {
	var flags []string
	for _, item := range p.ParseList(text) {
		if strings.Contains(strings.ToLower(item), "bias") {
			flags = append(flags, item)
		}
	}
	return flags
}

// ClassifyRelation infers an edge type from evidence text using cue words.
// Contradiction cues win over causal cues so conflicting evidence is never
// mislabeled as support.
func ClassifyRelation(text string) schemas.EdgeType {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "contradict", "refute", "no evidence", "no significant", "fails to"):
		return schemas.EdgeTypeContradictory
	case containsAny(lower, "confound"):
		return schemas.EdgeTypeCausalConfounded
	case containsAny(lower, "causes", "caused by", "causal", "leads to", "results in"):
		return schemas.EdgeTypeCausalDirect
	case containsAny(lower, "correlat", "associated with"):
		return schemas.EdgeTypeCorrelative
	case containsAny(lower, "precedes", "followed by", "before the onset"):
		return schemas.EdgeTypeTemporalPrecedence
	default:
		return schemas.EdgeTypeSupportive
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
