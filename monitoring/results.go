package monitoring

import (
	"strings"

	"github.com/sarchlab/miniprof/profiling"
	"github.com/sarchlab/miniprof/tracestore"
)

// NodeView is the presentation of a trace node. Times are in milliseconds.
type NodeView struct {
	Tag         string     `json:"tag,omitempty"`
	Description string     `json:"description,omitempty"`
	StartMS     float64    `json:"start_ms"`
	DurationMS  float64    `json:"duration_ms"`
	Children    []NodeView `json:"children,omitempty"`
}

// NewNodeView converts a subtree.
func NewNodeView(n *profiling.Node) NodeView {
	v := NodeView{
		Tag:         n.Tag(),
		Description: n.Description(),
		StartMS:     profiling.Millis(n.Start()),
		DurationMS:  profiling.Millis(n.Duration()),
	}

	for _, c := range n.Children() {
		v.Children = append(v.Children, NewNodeView(c))
	}

	return v
}

// StatView is the presentation of the statistics of one tag.
type StatView struct {
	TotalCalls  int     `json:"total_calls"`
	TotalTimeMS float64 `json:"total_time_ms"`
	SelfTimeMS  float64 `json:"self_time_ms"`
}

// RequestResult is the presentation of one profiled request.
type RequestResult struct {
	ID string `json:"id"`
	URL string `json:"url"`

	// Timestamp is the start of the request in milliseconds since the Unix
	// epoch.
	Timestamp int64               `json:"timestamp"`
	Profile   NodeView            `json:"profile"`
	Stats     map[string]StatView `json:"stats,omitempty"`
}

// Results is the reply of the results endpoint. OK is false when no request
// ID was asked for.
type Results struct {
	OK       bool            `json:"ok"`
	Requests []RequestResult `json:"requests,omitempty"`
}

// BuildRequestResult presents a stored record. The statistics aggregate the
// children of the root, since the root itself stands for the whole request.
func BuildRequestResult(id string, rec *tracestore.Record) RequestResult {
	rr := RequestResult{
		ID:        id,
		URL:       rec.URL,
		Timestamp: rec.Timestamp.UnixMilli(),
	}

	if rec.Root == nil {
		return rr
	}

	rr.Profile = NewNodeView(rec.Root)

	summary := profiling.Aggregate(rec.Root.Children()...)
	if len(summary.Stats) == 0 {
		return rr
	}

	rr.Stats = make(map[string]StatView, len(summary.Stats))
	for tag, st := range summary.Stats {
		rr.Stats[tag] = StatView{
			TotalCalls:  st.Calls,
			TotalTimeMS: profiling.Millis(st.TotalTime),
			SelfTimeMS:  profiling.Millis(st.SelfTime),
		}
	}

	return rr
}

// ParseIDs splits a comma separated list of request IDs. Blank and repeated
// IDs are dropped.
func ParseIDs(list string) []string {
	var ids []string

	seen := make(map[string]bool)

	for _, id := range strings.Split(list, ",") {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}

		seen[id] = true
		ids = append(ids, id)
	}

	return ids
}
