package profiling

import (
	"math"
	"sort"
	"time"
)

// Walk visits every node of the forest in depth-first pre-order. Returning
// false from visit skips the children of that node.
func Walk(visit func(n *Node) bool, nodes ...*Node) {
	for _, n := range nodes {
		if n == nil {
			continue
		}

		if !visit(n) {
			continue
		}

		Walk(visit, n.children...)
	}
}

// Fold reduces the forest to a single value, visiting the nodes in
// depth-first pre-order.
func Fold[T any](acc T, step func(acc T, n *Node) T, nodes ...*Node) T {
	Walk(func(n *Node) bool {
		acc = step(acc, n)
		return true
	}, nodes...)

	return acc
}

// CallStat is the number of calls and the time spent under one tag.
//
// TotalTime sums the recorded durations, so a call nested in another call of
// the same tag is counted in both. SelfTime excludes the time covered by the
// children of each call.
type CallStat struct {
	Tag       string
	Calls     int
	TotalTime time.Duration
	SelfTime  time.Duration
}

// AverageTime returns the mean duration of a call, or zero without calls.
func (s CallStat) AverageTime() time.Duration {
	if s.Calls == 0 {
		return 0
	}

	return s.TotalTime / time.Duration(s.Calls)
}

// Summary is the result of aggregating traces.
type Summary struct {
	// Stats maps a tag to its statistics.
	Stats map[string]CallStat

	// InvalidNodes counts the tagged nodes that were still open or carried a
	// negative duration. They count as calls with no time.
	InvalidNodes int
}

// Sorted returns the statistics with the largest total time first. Ties are
// ordered by tag.
func (s Summary) Sorted() []CallStat {
	out := make([]CallStat, 0, len(s.Stats))
	for _, st := range s.Stats {
		out = append(out, st)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalTime != out[j].TotalTime {
			return out[i].TotalTime > out[j].TotalTime
		}

		return out[i].Tag < out[j].Tag
	})

	return out
}

// TotalCalls returns the number of tagged nodes aggregated.
func (s Summary) TotalCalls() int {
	total := 0
	for _, st := range s.Stats {
		total += st.Calls
	}

	return total
}

// Aggregate counts the calls and sums the durations of the tagged nodes of
// the forest. Untagged nodes contribute nothing, but their children are
// still visited. The nodes are not modified and the result does not depend
// on the order of the forest.
//
// To aggregate a stored trace, pass the children of its root.
func Aggregate(nodes ...*Node) Summary {
	return Fold(
		Summary{Stats: make(map[string]CallStat)},
		func(s Summary, n *Node) Summary {
			if n.tag == "" {
				return s
			}

			d := n.duration
			if !n.closed || d < 0 {
				s.InvalidNodes++
				d = 0
			}

			st := s.Stats[n.tag]
			st.Tag = n.tag
			st.Calls++
			st.TotalTime += d
			st.SelfTime += selfTime(n, d)
			s.Stats[n.tag] = st

			return s
		},
		nodes...)
}

func selfTime(n *Node, d time.Duration) time.Duration {
	for _, c := range n.children {
		if c.closed && c.duration > 0 {
			d -= c.duration
		}
	}

	if d < 0 {
		return 0
	}

	return d
}

// Millis converts a duration to milliseconds, rounded to two fractional
// digits.
func Millis(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*100) / 100
}
