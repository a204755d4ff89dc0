package profiling

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func closedNode(tag string, start, duration time.Duration, children ...*Node) *Node {
	n := NewNode(tag, "", start)
	for _, c := range children {
		n.AppendChild(c)
	}

	Expect(n.Close(start + duration)).To(Succeed())

	return n
}

var _ = Describe("Aggregate", func() {
	var traceA, traceB *Node

	BeforeEach(func() {
		traceA = closedNode("", 0, 100,
			closedNode("db", 0, 10),
			closedNode("net", 10, 20,
				closedNode("db", 12, 5)),
		)
		traceB = closedNode("", 0, 50,
			closedNode("cache", 0, 7),
			closedNode("db", 7, 3),
		)
	})

	It("should collapse nodes sharing a tag", func() {
		root := closedNode("", 0, 50,
			closedNode("db", 0, 30,
				closedNode("db", 5, 10)),
		)

		summary := Aggregate(root)

		Expect(summary.Stats).To(HaveLen(1))
		Expect(summary.Stats["db"].Calls).To(Equal(2))
		Expect(summary.Stats["db"].TotalTime).To(Equal(time.Duration(40)))
		Expect(summary.Stats["db"].SelfTime).To(Equal(time.Duration(30)))
	})

	It("should collapse siblings sharing a tag", func() {
		summary := Aggregate(closedNode("db", 0, 10), closedNode("db", 10, 30))

		Expect(summary.Stats["db"]).To(Equal(CallStat{
			Tag: "db", Calls: 2, TotalTime: 40, SelfTime: 40,
		}))
	})

	It("should count the tagged children of untagged nodes", func() {
		root := closedNode("", 0, 100,
			closedNode("", 0, 80,
				closedNode("net", 0, 15)))

		summary := Aggregate(root)

		Expect(summary.Stats).To(HaveLen(1))
		Expect(summary.Stats).NotTo(HaveKey(""))
		Expect(summary.Stats["net"].Calls).To(Equal(1))
		Expect(summary.Stats["net"].TotalTime).To(Equal(time.Duration(15)))
	})

	It("should be idempotent and leave the input alone", func() {
		first := Aggregate(traceA, traceB)
		second := Aggregate(traceA, traceB)

		Expect(second).To(Equal(first))
		Expect(traceA.Children()[1].Children()[0].Duration()).
			To(Equal(time.Duration(5)))
	})

	It("should not depend on the order of the traces", func() {
		Expect(Aggregate(traceA, traceB)).To(Equal(Aggregate(traceB, traceA)))

		summary := Aggregate(traceB, traceA)
		Expect(summary.Stats["db"].Calls).To(Equal(3))
		Expect(summary.Stats["db"].TotalTime).To(Equal(time.Duration(18)))
		Expect(summary.TotalCalls()).To(Equal(5))
	})

	It("should count open nodes as zero and flag them", func() {
		open := NewNode("db", "", 0)
		summary := Aggregate(closedNode("db", 0, 10), open)

		Expect(summary.Stats["db"].Calls).To(Equal(2))
		Expect(summary.Stats["db"].TotalTime).To(Equal(time.Duration(10)))
		Expect(summary.InvalidNodes).To(Equal(1))
	})

	It("should count negative durations as zero and flag them", func() {
		n := &Node{tag: "db", duration: -5, closed: true}
		summary := Aggregate(n)

		Expect(summary.Stats["db"].TotalTime).To(BeZero())
		Expect(summary.InvalidNodes).To(Equal(1))
	})

	It("should aggregate nothing to an empty summary", func() {
		summary := Aggregate()

		Expect(summary.Stats).To(BeEmpty())
		Expect(summary.Sorted()).To(BeEmpty())
	})

	It("should sort by total time then by tag", func() {
		summary := Aggregate(
			closedNode("b", 0, 10),
			closedNode("a", 0, 10),
			closedNode("c", 0, 30),
		)

		sorted := summary.Sorted()

		Expect(sorted).To(HaveLen(3))
		Expect(sorted[0].Tag).To(Equal("c"))
		Expect(sorted[1].Tag).To(Equal("a"))
		Expect(sorted[2].Tag).To(Equal("b"))
	})

	It("should average the calls", func() {
		Expect(CallStat{Calls: 4, TotalTime: 10 * time.Millisecond}.AverageTime()).
			To(Equal(2500 * time.Microsecond))
		Expect(CallStat{}.AverageTime()).To(BeZero())
	})
})

var _ = Describe("Walk", func() {
	It("should visit in depth-first pre-order", func() {
		tree := closedNode("a", 0, 10,
			closedNode("b", 0, 5, closedNode("c", 0, 1)),
			closedNode("d", 5, 5))

		var order []string
		Walk(func(n *Node) bool {
			order = append(order, n.Tag())
			return true
		}, tree, nil, closedNode("e", 0, 1))

		Expect(order).To(Equal([]string{"a", "b", "c", "d", "e"}))
	})

	It("should skip children when told to", func() {
		tree := closedNode("a", 0, 10,
			closedNode("b", 0, 5, closedNode("c", 0, 1)))

		var order []string
		Walk(func(n *Node) bool {
			order = append(order, n.Tag())
			return n.Tag() != "b"
		}, tree)

		Expect(order).To(Equal([]string{"a", "b"}))
	})
})

var _ = Describe("Millis", func() {
	It("should round to two fractional digits", func() {
		Expect(Millis(1234567 * time.Nanosecond)).To(Equal(1.23))
		Expect(Millis(1236000 * time.Nanosecond)).To(Equal(1.24))
		Expect(Millis(0)).To(Equal(0.0))
		Expect(Millis(3 * time.Second)).To(Equal(3000.0))
	})
})
