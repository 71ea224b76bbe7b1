package watch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/CristiGvl/picoDisks/internal/devsvc/devsvctest"
)

func TestDiff(t *testing.T) {
	g := NewWithT(t)

	events := Diff([]string{"A", "B"}, []string{"B", "C"})
	g.Expect(events).To(ConsistOf(
		Event{Kind: Added, Path: "C"},
		Event{Kind: Removed, Path: "A"},
	))

	g.Expect(Diff(nil, nil)).To(BeEmpty())
	g.Expect(Diff([]string{"A"}, []string{"A"})).To(BeEmpty())
	g.Expect(Diff(nil, []string{"A", "A"})).To(Equal([]Event{{Kind: Added, Path: "A"}}))
}

func collect(s *Stream, n int, timeout time.Duration) []Event {
	var out []Event
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case ev, ok := <-s.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
	return out
}

func TestFirstPollIsBaseline(t *testing.T) {
	g := NewWithT(t)
	f := devsvctest.New()
	f.Polls = [][]string{{"/block/sda", "/block/sdb"}}

	s := New(f, WithInterval(5*time.Millisecond)).Start(context.Background())
	defer s.Close()

	g.Consistently(s.C, 50*time.Millisecond).ShouldNot(Receive())
}

func TestWatcherEmitsChanges(t *testing.T) {
	g := NewWithT(t)
	f := devsvctest.New()
	f.Polls = [][]string{{"A", "B"}, {"B", "C"}}

	s := New(f, WithInterval(5*time.Millisecond)).Start(context.Background())
	defer s.Close()

	events := collect(s, 2, time.Second)
	g.Expect(events).To(ConsistOf(
		Event{Kind: Added, Path: "C"},
		Event{Kind: Removed, Path: "A"},
	))
	g.Consistently(s.C, 30*time.Millisecond).ShouldNot(Receive())
}

func TestPollErrorKeepsPreviousSnapshot(t *testing.T) {
	g := NewWithT(t)
	f := devsvctest.New()
	f.Polls = [][]string{{"A"}}

	s := New(f, WithInterval(5*time.Millisecond)).Start(context.Background())
	defer s.Close()

	time.Sleep(20 * time.Millisecond)
	f.SetError("BlockDevices", "", errors.New("bus reset"))
	time.Sleep(20 * time.Millisecond)
	// a failed poll must not look like every device was removed
	g.Expect(s.C).NotTo(Receive())

	f.SetError("BlockDevices", "", nil)
	f.SetPolls([]string{"A", "B"})

	g.Eventually(s.C, time.Second).Should(Receive(Equal(Event{Kind: Added, Path: "B"})))
}

func TestCloseStopsLoop(t *testing.T) {
	g := NewWithT(t)
	f := devsvctest.New()
	f.Polls = [][]string{{"A"}, {"A", "B"}}

	s := New(f, WithInterval(5*time.Millisecond)).Start(context.Background())
	s.Close()

	g.Eventually(s.Done()).Should(BeClosed())
	g.Eventually(s.C).Should(BeClosed())
	// idempotent
	s.Close()
}

func TestContextCancelStopsLoop(t *testing.T) {
	g := NewWithT(t)
	f := devsvctest.New()
	ctx, cancel := context.WithCancel(context.Background())

	s := New(f, WithInterval(5*time.Millisecond)).Start(ctx)
	cancel()

	g.Eventually(s.Done(), time.Second).Should(BeClosed())
}

func TestBlockedConsumerDoesNotLeakLoop(t *testing.T) {
	g := NewWithT(t)
	f := devsvctest.New()
	polls := [][]string{{}}
	for i := 0; i < BufferSize+10; i++ {
		polls = append(polls, []string{fmt.Sprintf("/block/dev%d", i)})
	}
	f.SetPolls(polls...)

	s := New(f, WithInterval(time.Millisecond)).Start(context.Background())
	time.Sleep(100 * time.Millisecond)

	// nobody reads; closing must still terminate the loop
	s.Close()
	g.Expect(s.Done()).To(BeClosed())
}
