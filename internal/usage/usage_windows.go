//go:build windows

package usage

import (
	"context"

	"github.com/shirou/gopsutil/v3/disk"
)

// WindowsReader implements the usage table for Windows
type WindowsReader struct{}

// newPlatformReader creates a new Windows usage reader
func newPlatformReader() Reader {
	return &WindowsReader{}
}

// Load returns one row per mounted volume
func (r *WindowsReader) Load(ctx context.Context) ([]*Usage, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}

	var usages []*Usage
	for _, partition := range partitions {
		stat, err := disk.UsageWithContext(ctx, partition.Mountpoint)
		if err != nil {
			continue // Skip volumes we can't read
		}

		usages = append(usages, &Usage{
			Filesystem: partition.Device,
			Blocks:     stat.Total,
			Used:       stat.Used,
			Available:  stat.Free,
			Percent:    uint32(stat.UsedPercent + 0.5),
			MountPoint: partition.Mountpoint,
		})
	}

	return usages, nil
}
