package schedule

import (
	"sort"
	"time"
)

// maxPairGap is how far after a start a stop may land and still close it.
// Panel schedules that run longer than this are treated as separate markers.
const maxPairGap = 36 * time.Hour

type groupKey struct {
	game  string
	event string
}

type group struct {
	starts []Occurrence
	stops  []Occurrence
}

// Pair converts raw occurrences into event candidates.
//
// Singles pass through as zero-duration candidates. Starts and stops are
// grouped by (game, event); within a group each start greedily claims the
// earliest unused stop that lies strictly after it and within maxPairGap.
// Unclaimed starts become open-ended events, and orphaned stops are emitted
// as their own open-ended candidates so they stay visible on the calendar.
//
// Matching is first-fit in ascending start order, deterministic rather than
// globally optimal.
func Pair(occurrences []Occurrence) []Candidate {
	var out []Candidate
	groups := make(map[groupKey]*group)
	var order []groupKey

	for _, occ := range occurrences {
		if occ.Kind != KindStart && occ.Kind != KindStop {
			out = append(out, Candidate{
				ScheduleID: occ.ScheduleID,
				GameName:   occ.GameName,
				EventName:  occ.EventName,
				Start:      occ.At,
			})
			continue
		}
		key := groupKey{occ.GameName, occ.EventName}
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		if occ.Kind == KindStart {
			g.starts = append(g.starts, occ)
		} else {
			g.stops = append(g.stops, occ)
		}
	}

	for _, key := range order {
		g := groups[key]
		sort.Slice(g.starts, func(i, j int) bool { return g.starts[i].At.Before(g.starts[j].At) })
		sort.Slice(g.stops, func(i, j int) bool { return g.stops[i].At.Before(g.stops[j].At) })

		used := make([]bool, len(g.stops))
		for _, start := range g.starts {
			chosen := -1
			for idx, stop := range g.stops {
				if used[idx] {
					continue
				}
				if !stop.At.After(start.At) {
					continue
				}
				if stop.At.Sub(start.At) > maxPairGap {
					continue
				}
				chosen = idx
				break
			}
			candidate := Candidate{
				ScheduleID: start.ScheduleID,
				GameName:   start.GameName,
				EventName:  start.EventName,
				Start:      start.At,
			}
			if chosen >= 0 {
				used[chosen] = true
				stopAt := g.stops[chosen].At
				candidate.Stop = &stopAt
			}
			out = append(out, candidate)
		}
		for idx, stop := range g.stops {
			if used[idx] {
				continue
			}
			out = append(out, Candidate{
				ScheduleID: stop.ScheduleID,
				GameName:   stop.GameName,
				EventName:  stop.EventName,
				Start:      stop.At,
			})
		}
	}

	return out
}
