package normalize

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stellarlinkco/dailylog/internal/clock"
	"github.com/stellarlinkco/dailylog/internal/event"
)

const emptyGroupSummary = "No technical detail captured."

// Dedupe removes exact duplicates, keeping the first occurrence.
// Two events are duplicates iff source, timestamp, topic and summary
// all match.
func Dedupe(events []event.NormalizedEvent) []event.NormalizedEvent {
	seen := make(map[string]struct{}, len(events))
	out := make([]event.NormalizedEvent, 0, len(events))
	for _, e := range events {
		key := strings.Join([]string{string(e.Source), e.Timestamp, e.Topic, e.OneLineSummary}, "|")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

func summarize(entries []event.NormalizedEvent) string {
	if len(entries) == 0 {
		return emptyGroupSummary
	}
	if len(entries) == 1 {
		return entries[0].OneLineSummary
	}
	first := entries[0].OneLineSummary
	suffix := fmt.Sprintf(" (+%d updates)", len(entries)-1)
	if strings.HasSuffix(first, ".") {
		return first + suffix
	}
	return first + "." + suffix
}

// GroupByTopicWindow merges pre-sorted events into topic tracks in a
// single forward pass. Events must already be in non-decreasing
// timestamp order; this function does not sort. An event joins the last
// open group iff its source and topic match and the gap from the
// group's most recent entry is within window. A closed group never
// reopens, even for a later event matching its source and topic:
// recency wins over topic similarity.
func GroupByTopicWindow(events []event.NormalizedEvent, window time.Duration) []event.TopicGroup {
	deduped := Dedupe(events)
	var groups []event.TopicGroup

	for _, e := range deduped {
		if len(groups) > 0 {
			last := &groups[len(groups)-1]
			lastEntry := last.Entries[len(last.Entries)-1]
			gap := e.Time().Sub(lastEntry.Time())
			if last.Source == e.Source && last.Topic == e.Topic && gap <= window {
				last.Entries = append(last.Entries, e)
				last.Summary = summarize(last.Entries)
				continue
			}
		}
		groups = append(groups, event.TopicGroup{
			Source:    e.Source,
			Topic:     e.Topic,
			StartedAt: e.Timestamp,
			Entries:   []event.NormalizedEvent{e},
			Summary:   e.OneLineSummary,
		})
	}

	return groups
}

// FilterForYesterday keeps only the events whose local calendar date in
// loc is yesterday relative to now, sorted ascending by timestamp.
func FilterForYesterday(events []event.NormalizedEvent, loc *time.Location, now time.Time) (string, []event.NormalizedEvent) {
	dateKey := clock.YesterdayDateKey(loc, now)
	var filtered []event.NormalizedEvent
	for _, e := range events {
		if clock.DateKey(e.Time(), loc) == dateKey {
			filtered = append(filtered, e)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Time().Before(filtered[j].Time())
	})
	return dateKey, filtered
}
