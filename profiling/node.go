package profiling

import (
	"encoding/json"
	"fmt"
	"time"
)

// A Node is one timed unit of work in a trace. The start and the duration
// are offsets relative to the start of the trace.
//
// A Node is created open. It becomes immutable once Close records its
// duration. Children are appended when they are opened, so their order is
// the order in which they started.
type Node struct {
	tag         string
	description string
	start       time.Duration
	duration    time.Duration
	closed      bool
	children    []*Node
}

// NewNode creates an open node that starts at the given offset.
func NewNode(tag, description string, start time.Duration) *Node {
	return &Node{
		tag:         tag,
		description: description,
		start:       start,
	}
}

// Tag returns the label used to group the node during aggregation. It may be
// empty.
func (n *Node) Tag() string {
	return n.tag
}

// Description returns the human-readable detail of the node.
func (n *Node) Description() string {
	return n.description
}

// Start returns the offset at which the node was opened.
func (n *Node) Start() time.Duration {
	return n.start
}

// Duration returns the recorded duration. It is zero while the node is open.
func (n *Node) Duration() time.Duration {
	return n.duration
}

// End returns the offset at which the node was closed.
func (n *Node) End() time.Duration {
	return n.start + n.duration
}

// IsClosed tells if the duration of the node has been recorded.
func (n *Node) IsClosed() bool {
	return n.closed
}

// Children returns the nested nodes in start order. The returned slice must
// not be modified.
func (n *Node) Children() []*Node {
	return n.children
}

// Close records the duration of the node as end minus start. An end that is
// earlier than the start yields a zero duration. Closing a node twice
// returns ErrInvalidState.
func (n *Node) Close(end time.Duration) error {
	if n.closed {
		return fmt.Errorf("%w: node %q is already closed", ErrInvalidState, n.label())
	}

	n.duration = end - n.start
	if n.duration < 0 {
		n.duration = 0
	}

	n.closed = true

	return nil
}

// AppendChild adds a child node after the existing ones.
func (n *Node) AppendChild(child *Node) {
	n.children = append(n.children, child)
}

func (n *Node) label() string {
	if n.tag == "" {
		return n.description
	}

	if n.description == "" {
		return n.tag
	}

	return n.tag + ":" + n.description
}

type nodeJSON struct {
	Tag         string      `json:"tag,omitempty"`
	Description string      `json:"description,omitempty"`
	StartNS     int64       `json:"start_ns"`
	DurationNS  int64       `json:"duration_ns"`
	Closed      bool        `json:"closed"`
	Children    []*nodeJSON `json:"children,omitempty"`
}

func toNodeJSON(n *Node) *nodeJSON {
	j := &nodeJSON{
		Tag:         n.tag,
		Description: n.description,
		StartNS:     int64(n.start),
		DurationNS:  int64(n.duration),
		Closed:      n.closed,
	}

	for _, c := range n.children {
		j.Children = append(j.Children, toNodeJSON(c))
	}

	return j
}

func fromNodeJSON(j *nodeJSON) (*Node, error) {
	n := &Node{
		tag:         j.Tag,
		description: j.Description,
		start:       time.Duration(j.StartNS),
		duration:    time.Duration(j.DurationNS),
		closed:      j.Closed,
	}

	for i, c := range j.Children {
		if c == nil {
			return nil, fmt.Errorf("%w: child %d of %q is null",
				ErrMalformedTree, i, n.label())
		}

		child, err := fromNodeJSON(c)
		if err != nil {
			return nil, err
		}

		n.children = append(n.children, child)
	}

	return n, nil
}

// MarshalJSON encodes the whole subtree rooted at the node.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(toNodeJSON(n))
}

// UnmarshalJSON restores a subtree encoded by MarshalJSON.
func (n *Node) UnmarshalJSON(data []byte) error {
	var j nodeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}

	restored, err := fromNodeJSON(&j)
	if err != nil {
		return err
	}

	*n = *restored

	return nil
}
