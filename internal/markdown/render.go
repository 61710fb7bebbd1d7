package markdown

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/stellarlinkco/dailylog/internal/clock"
	"github.com/stellarlinkco/dailylog/internal/event"
)

const (
	// NoActivityLine is the body emitted when no provider produced any
	// event. The upsert engine matches this exact text when stripping
	// legacy generated blocks, so it must not change casually.
	NoActivityLine = "No AI activity found from configured providers for yesterday."

	fallbackHeading = "Daily Cross-AI Technical Log"
	defaultPrefix   = "####"
)

var (
	headingPrefixRe = regexp.MustCompile(`^#{1,6}$`)
	nonAlnumRe      = regexp.MustCompile(`[^a-z0-9\s]`)
	spaceRunRe      = regexp.MustCompile(`\s+`)
)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "to": {}, "of": {},
	"for": {}, "with": {}, "we": {}, "i": {}, "me": {}, "my": {}, "as": {},
	"it": {}, "is": {}, "this": {}, "that": {}, "what": {}, "give": {},
	"create": {}, "think": {},
}

// RenderEntries formats one line per topic group:
// "HH:MM - [DisplayName] summary", with the clock time taken from the
// group's first entry in loc.
func RenderEntries(groups []event.TopicGroup, loc *time.Location) []string {
	lines := make([]string, 0, len(groups))
	for _, g := range groups {
		started, err := time.Parse(time.RFC3339, g.StartedAt)
		if err != nil {
			started = time.Time{}
		}
		lines = append(lines, fmt.Sprintf("%s - [%s] %s", clock.ClockTime(started, loc), g.Source.DisplayName(), g.Summary))
	}
	return lines
}

func titleCase(words []string) string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		out = append(out, strings.ToUpper(w[:1])+w[1:])
	}
	return strings.Join(out, " ")
}

func splitWords(s string) []string {
	var words []string
	for _, w := range strings.Split(s, " ") {
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

// HeadingFromPrompt derives a deterministic section heading from the
// configured prompt: lowercase, punctuation stripped, stop words
// removed, first seven meaningful words kept. If fewer than three
// meaningful words survive, the first five raw words are used instead;
// a prompt too short even for that gets the literal fallback heading.
func HeadingFromPrompt(prompt string) string {
	normalized := strings.ToLower(prompt)
	normalized = nonAlnumRe.ReplaceAllString(normalized, " ")
	normalized = spaceRunRe.ReplaceAllString(normalized, " ")
	words := splitWords(strings.TrimSpace(normalized))

	var meaningful []string
	for _, w := range words {
		if _, stop := stopWords[w]; !stop {
			meaningful = append(meaningful, w)
		}
	}

	selected := meaningful
	if len(selected) > 7 {
		selected = selected[:7]
	}
	if len(selected) < 3 {
		selected = words
		if len(selected) > 5 {
			selected = selected[:5]
		}
	}
	if len(selected) < 3 {
		return fallbackHeading
	}
	if len(selected) > 10 {
		selected = selected[:10]
	}
	return titleCase(selected)
}

// BlockOptions configures the rendered block's heading.
type BlockOptions struct {
	Title         string
	HeadingPrefix string
}

// RenderBlock produces the markdown fragment inserted into the daily
// note: a heading line followed by one list item per entry, or a
// single placeholder item when there are no entries. Spacing around
// the block is the upsert engine's job; the block itself carries no
// trailing blank line.
func RenderBlock(entries []string, prompt string, opts BlockOptions) string {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = HeadingFromPrompt(prompt)
	}
	prefix := strings.TrimSpace(opts.HeadingPrefix)
	if !headingPrefixRe.MatchString(prefix) {
		prefix = defaultPrefix
	}

	var body string
	if len(entries) > 0 {
		items := make([]string, len(entries))
		for i, e := range entries {
			items[i] = "- " + e
		}
		body = strings.Join(items, "\n")
	} else {
		body = "- " + NoActivityLine
	}
	return prefix + " " + title + "\n" + body
}
