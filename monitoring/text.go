package monitoring

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sarchlab/miniprof/profiling"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	tagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// WriteText renders the results for a terminal: the step tree of every
// request followed by its statistics, largest total time first.
func WriteText(w io.Writer, results Results) error {
	if !results.OK {
		_, err := fmt.Fprintln(w, "no request ids given")
		return err
	}

	if len(results.Requests) == 0 {
		_, err := fmt.Fprintln(w, "no traces found")
		return err
	}

	var b strings.Builder

	for i, rr := range results.Requests {
		if i > 0 {
			b.WriteString("\n")
		}

		writeRequest(&b, rr)
	}

	_, err := io.WriteString(w, b.String())

	return err
}

func writeRequest(b *strings.Builder, rr RequestResult) {
	b.WriteString(headerStyle.Render(fmt.Sprintf("request %s  %s", rr.ID, rr.URL)))
	b.WriteString("\n")
	b.WriteString(timeStyle.Render(
		time.UnixMilli(rr.Timestamp).UTC().Format(time.RFC3339Nano)))
	b.WriteString("\n\n")

	writeNode(b, rr.Profile, 0)

	if len(rr.Stats) == 0 {
		return
	}

	b.WriteString("\n")
	b.WriteString(statsTable(rr.Stats))
	b.WriteString("\n")
}

func writeNode(b *strings.Builder, n NodeView, depth int) {
	b.WriteString(strings.Repeat("  ", depth))

	if n.Tag != "" {
		b.WriteString(tagStyle.Render("[" + n.Tag + "]"))
		b.WriteString(" ")
	}

	b.WriteString(n.Description)
	b.WriteString("  ")
	b.WriteString(timeStyle.Render(
		fmt.Sprintf("@%.2fms +%.2fms", n.StartMS, n.DurationMS)))
	b.WriteString("\n")

	for _, c := range n.Children {
		writeNode(b, c, depth+1)
	}
}

func statsTable(stats map[string]StatView) string {
	tags := make([]string, 0, len(stats))
	for tag := range stats {
		tags = append(tags, tag)
	}

	sort.Slice(tags, func(i, j int) bool {
		a, b := stats[tags[i]], stats[tags[j]]
		if a.TotalTimeMS != b.TotalTimeMS {
			return a.TotalTimeMS > b.TotalTimeMS
		}

		return tags[i] < tags[j]
	})

	t := newStatsTable()
	for _, tag := range tags {
		st := stats[tag]

		avg := 0.0
		if st.TotalCalls > 0 {
			avg = st.TotalTimeMS / float64(st.TotalCalls)
		}

		addStatRow(t, tag, st.TotalCalls, st.TotalTimeMS, st.SelfTimeMS, avg)
	}

	return t.String()
}

// WriteSummary renders the statistics aggregated over several traces.
func WriteSummary(w io.Writer, summary profiling.Summary, traces int) error {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf(
		"%d calls over %d traces", summary.TotalCalls(), traces)))
	b.WriteString("\n")

	if summary.InvalidNodes > 0 {
		b.WriteString(timeStyle.Render(fmt.Sprintf(
			"%d steps were left open or had a negative duration",
			summary.InvalidNodes)))
		b.WriteString("\n")
	}

	t := newStatsTable()
	for _, st := range summary.Sorted() {
		addStatRow(t, st.Tag, st.Calls,
			profiling.Millis(st.TotalTime),
			profiling.Millis(st.SelfTime),
			profiling.Millis(st.AverageTime()))
	}

	b.WriteString(t.String())
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())

	return err
}

func newStatsTable() *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("TAG", "CALLS", "TOTAL MS", "SELF MS", "AVG MS")
}

func addStatRow(t *table.Table, tag string, calls int, total, self, avg float64) {
	t.Row(
		tag,
		fmt.Sprint(calls),
		fmt.Sprintf("%.2f", total),
		fmt.Sprintf("%.2f", self),
		fmt.Sprintf("%.2f", avg),
	)
}
