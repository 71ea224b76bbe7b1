package segment

import (
	"testing"

	. "github.com/onsi/gomega"

	"github.com/CristiGvl/picoDisks/internal/topology"
)

const mib = 1 << 20

func sum(segs []Segment) uint64 {
	var total uint64
	for _, s := range segs {
		total += s.Size
	}
	return total
}

func TestEmptyDriveIsOneFreeSegment(t *testing.T) {
	g := NewWithT(t)
	d := &topology.Drive{Size: 32_000_000_000}

	segs := Segments(d)
	g.Expect(segs).To(HaveLen(1))
	g.Expect(segs[0].IsFreeSpace).To(BeTrue())
	g.Expect(segs[0].Offset).To(BeZero())
	g.Expect(segs[0].Size).To(Equal(d.Size))
	g.Expect(segs[0].Label).To(Equal("Free Space"))
	g.Expect(segs[0].Width).To(Equal(3))
}

func TestSingleAlignedPartition(t *testing.T) {
	g := NewWithT(t)
	p := &topology.Partition{Number: 1, Offset: 1_048_576, Size: 7_995_000_000, IDType: "vfat", PartitionType: "W95 FAT32 (LBA)"}
	d := &topology.Drive{Size: 8_000_000_000, Partitions: []*topology.Partition{p}}

	segs := Segments(d)
	// leading MiB is absorbed and the ~3.8 MiB tail is hidden
	g.Expect(segs).To(HaveLen(1))
	g.Expect(segs[0].IsFreeSpace).To(BeFalse())
	g.Expect(segs[0].Partition).To(BeIdenticalTo(p))
	g.Expect(segs[0].Label).To(Equal("Filesystem"))
	g.Expect(segs[0].Name).To(Equal("Partition 1"))
	g.Expect(segs[0].PartitionType).To(Equal("VFAT - W95 FAT32 (LBA)"))
	g.Expect(segs[0].Width).To(Equal(3))
}

func TestGapsAndTail(t *testing.T) {
	g := NewWithT(t)
	d := &topology.Drive{
		Size: 1_000_000_000,
		Partitions: []*topology.Partition{
			{Number: 2, Name: "data", Offset: 200 * mib, Size: 300 * mib},
			{Number: 1, Name: "boot", Offset: 2 * mib, Size: 100 * mib},
		},
	}

	segs := Segments(d)
	g.Expect(segs).To(HaveLen(5))

	g.Expect(segs[0]).To(Equal(Segment{Label: "Free Space", Offset: 0, Size: 2 * mib, IsFreeSpace: true, Width: 1}))
	g.Expect(segs[1].Label).To(Equal("boot"))
	g.Expect(segs[2].IsFreeSpace).To(BeTrue())
	g.Expect(segs[2].Offset).To(Equal(uint64(102 * mib)))
	g.Expect(segs[2].Size).To(Equal(uint64(98 * mib)))
	g.Expect(segs[3].Label).To(Equal("data"))
	g.Expect(segs[4].IsFreeSpace).To(BeTrue())
	g.Expect(segs[4].Offset).To(Equal(uint64(500 * mib)))

	g.Expect(sum(segs)).To(Equal(d.Size))
	for i := 1; i < len(segs); i++ {
		g.Expect(segs[i].Offset).To(BeNumerically(">=", segs[i-1].Offset))
	}
	for _, s := range segs {
		g.Expect(s.Width).To(BeNumerically(">=", 1))
	}
}

func TestTailThreshold(t *testing.T) {
	tests := []struct {
		name     string
		tail     uint64
		wantTail bool
	}{
		{"just under", TailThreshold - 1, false},
		{"exactly", TailThreshold, true},
		{"above", TailThreshold + 1, true},
		{"none", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			p := &topology.Partition{Number: 1, Size: 100 * mib}
			d := &topology.Drive{Size: 100*mib + tt.tail, Partitions: []*topology.Partition{p}}

			segs := Segments(d)
			if tt.wantTail {
				g.Expect(segs).To(HaveLen(2))
				g.Expect(segs[1].IsFreeSpace).To(BeTrue())
				g.Expect(segs[1].Size).To(Equal(tt.tail))
				g.Expect(sum(segs)).To(Equal(d.Size))
				return
			}
			g.Expect(segs).To(HaveLen(1))
			g.Expect(sum(segs)).To(Equal(d.Size - tt.tail))
		})
	}
}

func TestLeadingThreshold(t *testing.T) {
	g := NewWithT(t)

	at := &topology.Drive{Size: 200 * mib, Partitions: []*topology.Partition{{Offset: LeadingThreshold, Size: 199 * mib}}}
	g.Expect(Segments(at)).To(HaveLen(1))

	above := &topology.Drive{Size: 200 * mib, Partitions: []*topology.Partition{{Offset: LeadingThreshold + 1, Size: 150 * mib}}}
	segs := Segments(above)
	g.Expect(segs[0].IsFreeSpace).To(BeTrue())
	g.Expect(segs[0].Size).To(Equal(uint64(LeadingThreshold + 1)))
}

func TestSegmentsDoesNotReorderDrive(t *testing.T) {
	g := NewWithT(t)
	second := &topology.Partition{Number: 2, Offset: 50 * mib, Size: 50 * mib}
	first := &topology.Partition{Number: 1, Offset: mib, Size: 49 * mib}
	d := &topology.Drive{Size: 100 * mib, Partitions: []*topology.Partition{second, first}}

	segs := Segments(d)
	g.Expect(segs[0].Partition).To(BeIdenticalTo(first))
	g.Expect(d.Partitions[0]).To(BeIdenticalTo(second))
}

func TestWidth(t *testing.T) {
	g := NewWithT(t)

	g.Expect(Width(0, 100)).To(Equal(1))
	g.Expect(Width(100, 0)).To(Equal(1))
	g.Expect(Width(1, 1_000_000_000_000)).To(Equal(1))
	g.Expect(Width(1_000_000_000_000, 1_000_000_000_000)).To(Equal(3))
	g.Expect(Width(10, 100)).To(Equal(2))
	g.Expect(Width(11, 100)).To(Equal(3))
}

func TestCreateInfoFromFreeSegment(t *testing.T) {
	g := NewWithT(t)

	info := FreeSpace(100*mib, 400*mib).CreateInfo()
	g.Expect(info.Offset).To(Equal(uint64(100 * mib)))
	g.Expect(info.Size).To(Equal(uint64(400 * mib)))
	g.Expect(info.MaxSize).To(Equal(uint64(400 * mib)))
	g.Expect(info.SelectedType).To(BeZero())
	g.Expect(info.Validate()).To(Succeed())
}
