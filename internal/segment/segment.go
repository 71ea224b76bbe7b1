// Package segment lays a drive out as an ordered run of partitions and the
// free space between them, for display.
package segment

import (
	"math"
	"sort"
	"strings"

	"github.com/CristiGvl/picoDisks/internal/ops"
	"github.com/CristiGvl/picoDisks/internal/topology"
)

const (
	// LeadingThreshold is the largest first-partition offset still treated
	// as the reserved start of the table. Anything above it is shown as
	// free space from offset 0.
	LeadingThreshold = 1048576
	// TailThreshold is the smallest unallocated tail that is shown. Smaller
	// tails are hidden.
	TailThreshold = 5242880

	freeSpaceLabel = "Free Space"
	unnamedLabel   = "Filesystem"

	widthEpsilon = 1e-9
)

// Segment is a partition or a gap
type Segment struct {
	Label         string `json:"label"`
	Name          string `json:"name"`
	PartitionType string `json:"partition_type"`
	Size          uint64 `json:"size_bytes"`
	Offset        uint64 `json:"offset_bytes"`
	IsFreeSpace   bool   `json:"is_free_space"`
	// Width is a relative display weight, at least 1
	Width     int                 `json:"width"`
	Partition *topology.Partition `json:"partition,omitempty"`
}

// FreeSpace returns a gap segment
func FreeSpace(offset, size uint64) Segment {
	return Segment{
		Label:       freeSpaceLabel,
		Size:        size,
		Offset:      offset,
		IsFreeSpace: true,
	}
}

// New returns the segment of a partition
func New(p *topology.Partition) Segment {
	label := p.Name
	if label == "" {
		label = unnamedLabel
	}
	return Segment{
		Label:         label,
		Name:          p.PrettyName(),
		PartitionType: strings.ToUpper(p.IDType) + " - " + p.PartitionType,
		Size:          p.Size,
		Offset:        p.Offset,
		Partition:     p,
	}
}

// CreateInfo seeds a create-partition draft spanning a free segment
func (s Segment) CreateInfo() ops.CreatePartitionInfo {
	return ops.CreatePartitionInfo{
		Size:    s.Size,
		MaxSize: s.Size,
		Offset:  s.Offset,
	}
}

// Segments lays out d. The result is in offset order and every segment has
// a width of at least 1.
//
// A leading gap of up to LeadingThreshold and a trailing gap under
// TailThreshold are not shown. Both thresholds are empirical and kept as is.
func Segments(d *topology.Drive) []Segment {
	if len(d.Partitions) == 0 {
		segs := []Segment{FreeSpace(0, d.Size)}
		setWidths(segs, d.Size)
		return segs
	}

	ordered := append([]*topology.Partition(nil), d.Partitions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Offset < ordered[j].Offset
	})

	cursor := ordered[0].Offset
	if cursor > LeadingThreshold {
		cursor = 0
	}

	segs := make([]Segment, 0, 2*len(ordered)+1)
	for _, p := range ordered {
		if p.Offset > cursor {
			segs = append(segs, FreeSpace(cursor, p.Offset-cursor))
			cursor = p.Offset
		}
		segs = append(segs, New(p))
		cursor += p.Size
	}

	if cursor < d.Size && d.Size-cursor >= TailThreshold {
		segs = append(segs, FreeSpace(cursor, d.Size-cursor))
	}

	setWidths(segs, d.Size)
	return segs
}

func setWidths(segs []Segment, driveSize uint64) {
	for i := range segs {
		segs[i].Width = Width(segs[i].Size, driveSize)
	}
}

// Width is ceil(log10(size/driveSize*1000)), floored at 1. Exact powers of
// ten map to their exponent despite rounding in Log10.
func Width(size, driveSize uint64) int {
	if size == 0 || driveSize == 0 {
		return 1
	}
	w := math.Ceil(math.Log10(float64(size)/float64(driveSize)*1000) - widthEpsilon)
	if math.IsNaN(w) || w < 1 {
		return 1
	}
	return int(w)
}
