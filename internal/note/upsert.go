// Package note owns the daily-note surface: idempotent insertion of the
// generated block into an existing document, and resolution of today's
// note file inside the vault.
package note

import (
	"regexp"
	"strings"
	"unicode"
)

// InsertionOptions names the two heading texts that bound the insertion
// zone in the target document.
type InsertionOptions struct {
	StartHeading string
	EndHeading   string
}

// Generated-content markers. Only the prefix is significant; the
// trailing token (a date, usually) is free text.
var (
	markerStartRe = regexp.MustCompile(`<!-- MULTI_AI_DAILY_LOG_START:[^>]+ -->`)
	markerEndRe   = regexp.MustCompile(`<!-- MULTI_AI_DAILY_LOG_END:[^>]+ -->`)

	generatedHeadingRe  = regexp.MustCompile(`^###\s+AI Technical Activity \(\d{4}-\d{2}-\d{2}\)\s*$`)
	generatedListItemRe = regexp.MustCompile(`^-\s+\d{2}:\d{2}\s+-\s+\[[^\]]+\]\s+.+$`)
	markdownHeadingRe   = regexp.MustCompile(`^#{1,6}\s+\S`)
)

const noActivityItem = "- No AI activity found from configured providers for yesterday."

func headingLineRe(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^#{1,6}\s*` + regexp.QuoteMeta(label) + `\s*$`)
}

func trimEnd(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

func trimStart(s string) string {
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}

// markerSpan locates the first marker-delimited generated span. The end
// marker is searched only after the start marker; an unpaired start
// marker is left alone.
func markerSpan(content string) (start, end int, ok bool) {
	loc := markerStartRe.FindStringIndex(content)
	if loc == nil {
		return 0, 0, false
	}
	endLoc := markerEndRe.FindStringIndex(content[loc[0]:])
	if endLoc == nil {
		return 0, 0, false
	}
	return loc[0], loc[0] + endLoc[1], true
}

func isGeneratedActivityHeading(line string) bool {
	return generatedHeadingRe.MatchString(strings.TrimSpace(line))
}

// isGeneratedLogItem recognizes a list item the renderer could have
// produced: "- HH:MM - [provider] text" or the exact no-activity
// placeholder. Anything else is user content.
func isGeneratedLogItem(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "- ") {
		return false
	}
	if generatedListItemRe.MatchString(trimmed) {
		return true
	}
	return trimmed == noActivityItem
}

func isListItem(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "- ")
}

func isMarkdownHeading(line string) bool {
	return markdownHeadingRe.MatchString(strings.TrimSpace(line))
}

func lineAt(lines []string, i int) string {
	if i < 0 || i >= len(lines) {
		return ""
	}
	return lines[i]
}

// stripGeneratedBlocks removes legacy generated blocks, the format
// emitted before markers existed. Three shapes are recognized:
//
//	<any heading>
//	### AI Technical Activity (YYYY-MM-DD)
//	- <list items...>
//
//	<any heading>
//	- HH:MM - [provider] ...   (generated-shaped items only)
//
//	### AI Technical Activity (YYYY-MM-DD)
//	- <list items...>
//
// Stripping consumes the matched block plus trailing blank lines and
// stops at the first non-matching line, so user list items that merely
// follow a heading are never consumed.
func stripGeneratedBlocks(section string) string {
	lines := strings.Split(section, "\n")
	kept := make([]string, 0, len(lines))

	for i := 0; i < len(lines); i++ {
		current := lines[i]
		next := lineAt(lines, i+1)
		nextNext := lineAt(lines, i+2)

		titleThenActivity := isMarkdownHeading(current) && isGeneratedActivityHeading(next) && isListItem(nextNext)
		titleThenItems := isMarkdownHeading(current) && isGeneratedLogItem(next)
		bareActivity := isGeneratedActivityHeading(current) && isListItem(next)

		switch {
		case titleThenActivity:
			i += 2
			for i < len(lines) && isListItem(lines[i]) {
				i++
			}
			for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
				i++
			}
			i--
		case titleThenItems:
			i++
			for i < len(lines) && isGeneratedLogItem(lines[i]) {
				i++
			}
			for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
				i++
			}
			i--
		case bareActivity:
			i++
			for i < len(lines) && isListItem(lines[i]) {
				i++
			}
			for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
				i++
			}
			i--
		default:
			kept = append(kept, current)
		}
	}

	return strings.Join(kept, "\n")
}

// Upsert returns content with exactly one copy of block inserted,
// correctly positioned, and all previously generated residue removed.
// Unrelated text is left byte-for-byte untouched. Running Upsert on its
// own output is a fixed point.
//
// Marker-delimited spans are stripped first, in a loop, since stale
// runs can leave more than one. The insertion zone is bounded by the
// first occurrence of each configured heading; if either is missing or
// they are out of order, legacy blocks are stripped from the whole
// document and the block is appended at the end instead.
func Upsert(content, block string, opts InsertionOptions) string {
	next := content

	for {
		start, end, ok := markerSpan(next)
		if !ok {
			break
		}
		next = trimEnd(next[:start]) + "\n\n" + trimStart(next[end:])
	}

	startLoc := headingLineRe(opts.StartHeading).FindStringIndex(next)
	endLoc := headingLineRe(opts.EndHeading).FindStringIndex(next)

	if startLoc == nil || endLoc == nil || startLoc[0] >= endLoc[0] {
		cleaned := stripGeneratedBlocks(next)
		return trimEnd(cleaned) + "\n\n" + block + "\n"
	}

	insertFrom := len(next)
	if nl := strings.Index(next[startLoc[0]:], "\n"); nl != -1 {
		insertFrom = startLoc[0] + nl + 1
	}

	before := trimEnd(next[:insertFrom])
	between := strings.TrimSpace(stripGeneratedBlocks(next[insertFrom:endLoc[0]]))
	after := trimStart(next[endLoc[0]:])

	spacing := "\n\n"
	if between != "" {
		spacing = "\n" + between + "\n\n"
	}
	return trimEnd(before+spacing+block+"\n\n"+after) + "\n"
}
