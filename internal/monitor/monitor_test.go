package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/CristiGvl/picoDisks/internal/devsvc"
	"github.com/CristiGvl/picoDisks/internal/topology"
	"github.com/CristiGvl/picoDisks/internal/watch"
)

type scriptedBuilder struct {
	mu     sync.Mutex
	drives []*topology.Drive
	err    error
	builds int
}

func (s *scriptedBuilder) Build(ctx context.Context) ([]*topology.Drive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builds++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return append([]*topology.Drive(nil), s.drives...), nil
}

func (s *scriptedBuilder) set(drives []*topology.Drive, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drives, s.err = drives, err
}

func (s *scriptedBuilder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builds
}

func start(t *testing.T, b topology.Rebuilder, events <-chan watch.Event) *Monitor {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	m := New(b, events)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m
}

func pathsOf(drives []*topology.Drive) []string {
	var out []string
	for _, d := range drives {
		out = append(out, d.Path)
	}
	return out
}

var (
	ssd = &topology.Drive{Path: "/drives/ssd", BlockPath: "/block/sda", Partitions: []*topology.Partition{{Path: "/block/sda1"}}}
	usb = &topology.Drive{Path: "/drives/usb", BlockPath: "/block/sdb", Removable: true}
)

func TestInitialSnapshot(t *testing.T) {
	g := NewWithT(t)
	b := &scriptedBuilder{drives: []*topology.Drive{ssd}}
	m := start(t, b, nil)

	drives, err := m.Drives(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(pathsOf(drives)).To(Equal([]string{"/drives/ssd"}))
}

func TestEventsAreReconciled(t *testing.T) {
	g := NewWithT(t)
	b := &scriptedBuilder{drives: []*topology.Drive{ssd}}
	events := make(chan watch.Event, 4)
	m := start(t, b, events)

	b.set([]*topology.Drive{ssd, usb}, nil)
	events <- watch.Event{Kind: watch.Added, Path: "/block/sdb"}

	g.Eventually(func() []string {
		drives, _ := m.Drives(context.Background())
		return pathsOf(drives)
	}).Should(ConsistOf("/drives/ssd", "/drives/usb"))

	events <- watch.Event{Kind: watch.Removed, Path: "/block/sda1"}
	g.Eventually(func() int {
		drives, _ := m.Drives(context.Background())
		d := topology.FindDrive(drives, "/drives/ssd")
		if d == nil {
			return -1
		}
		return len(d.Partitions)
	}).Should(Equal(0))

	events <- watch.Event{Kind: watch.Removed, Path: "/drives/usb"}
	g.Eventually(func() []string {
		drives, _ := m.Drives(context.Background())
		return pathsOf(drives)
	}).Should(Equal([]string{"/drives/ssd"}))

	// the removal path never rebuilds: initial build plus the one add
	g.Expect(b.count()).To(Equal(2))
}

func TestFailedInitialBuildIsReported(t *testing.T) {
	g := NewWithT(t)
	b := &scriptedBuilder{err: devsvc.ErrNotConnected}
	m := start(t, b, nil)

	_, err := m.Drives(context.Background())
	g.Expect(err).To(MatchError(devsvc.ErrNotConnected))

	b.set([]*topology.Drive{ssd}, nil)
	g.Expect(m.Refresh(context.Background())).To(Succeed())

	drives, err := m.Drives(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(drives).To(HaveLen(1))
}

func TestMutateRebuildsOnSuccessOnly(t *testing.T) {
	g := NewWithT(t)
	b := &scriptedBuilder{drives: []*topology.Drive{ssd, usb}}
	m := start(t, b, nil)

	_, err := m.Drives(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(b.count()).To(Equal(1))

	boom := errors.New("device busy")
	err = m.Mutate(context.Background(), "unmount", func(ctx context.Context, drives []*topology.Drive) error {
		return boom
	})
	g.Expect(err).To(MatchError(boom))
	g.Expect(b.count()).To(Equal(1))

	b.set([]*topology.Drive{ssd}, nil)
	var seen []string
	err = m.Mutate(context.Background(), "power-off", func(ctx context.Context, drives []*topology.Drive) error {
		seen = pathsOf(drives)
		return nil
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(seen).To(Equal([]string{"/drives/ssd", "/drives/usb"}))
	g.Expect(b.count()).To(Equal(2))

	drives, err := m.Drives(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(pathsOf(drives)).To(Equal([]string{"/drives/ssd"}))
}

func TestStoppedMonitor(t *testing.T) {
	g := NewWithT(t)
	m := New(&scriptedBuilder{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g.Expect(m.Run(ctx)).To(MatchError(context.Canceled))

	_, err := m.Drives(context.Background())
	g.Expect(err).To(MatchError(ErrStopped))
}

func TestClosedEventChannelKeepsServing(t *testing.T) {
	g := NewWithT(t)
	events := make(chan watch.Event)
	close(events)
	m := start(t, &scriptedBuilder{drives: []*topology.Drive{usb}}, events)

	g.Consistently(func() error {
		_, err := m.Drives(context.Background())
		return err
	}, 50*time.Millisecond).Should(Succeed())
}

func TestMutateRebuildsAfterCallerDeadline(t *testing.T) {
	g := NewWithT(t)
	b := &scriptedBuilder{drives: []*topology.Drive{ssd}}
	m := start(t, b, nil)

	_, err := m.Drives(context.Background())
	g.Expect(err).NotTo(HaveOccurred())

	b.set([]*topology.Drive{ssd, usb}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = m.Mutate(ctx, "format", func(ctx context.Context, drives []*topology.Drive) error {
		time.Sleep(80 * time.Millisecond)
		return nil
	})
	g.Expect(err).To(MatchError(context.DeadlineExceeded))

	g.Eventually(func() []string {
		drives, _ := m.Drives(context.Background())
		return pathsOf(drives)
	}).Should(Equal([]string{"/drives/ssd", "/drives/usb"}))
	g.Expect(b.count()).To(Equal(2))
}
