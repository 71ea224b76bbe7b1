//go:build linux

package usage

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/disk"
)

const dfTimeout = 5 * time.Second

// LinuxReader reads the usage table from df, falling back to gopsutil
// when df is unavailable
type LinuxReader struct {
	run      func(ctx context.Context) ([]byte, error)
	fallback func(ctx context.Context) ([]*Usage, error)
}

// newPlatformReader creates a new Linux usage reader
func newPlatformReader() Reader {
	return &LinuxReader{run: runDF, fallback: loadFromPartitions}
}

// Load returns the current usage table
func (r *LinuxReader) Load(ctx context.Context) ([]*Usage, error) {
	out, err := r.run(ctx)
	if err != nil {
		usages, ferr := r.fallback(ctx)
		if ferr != nil {
			return nil, errors.Wrapf(ferr, "df failed (%v), fallback failed", err)
		}
		return usages, nil
	}
	return Parse(bytes.NewReader(out))
}

func runDF(ctx context.Context) ([]byte, error) {
	if _, err := exec.LookPath("df"); err != nil {
		return nil, errors.Wrap(err, "df not found")
	}
	cctx, cancel := context.WithTimeout(ctx, dfTimeout)
	defer cancel()

	out, err := exec.CommandContext(cctx, "df", "--block-size=1").Output()
	if err != nil && len(out) == 0 {
		return nil, errors.Wrap(err, "run df")
	}
	// df exits non-zero when a single mount is unreadable but still prints the rest
	return out, nil
}

func loadFromPartitions(ctx context.Context) ([]*Usage, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}

	var usages []*Usage
	for _, partition := range partitions {
		stat, err := disk.UsageWithContext(ctx, partition.Mountpoint)
		if err != nil {
			continue // Skip mounts we can't read
		}
		usages = append(usages, fromStat(partition.Device, stat))
	}

	return usages, nil
}

func fromStat(device string, stat *disk.UsageStat) *Usage {
	return &Usage{
		Filesystem: device,
		Blocks:     stat.Total,
		Used:       stat.Used,
		Available:  stat.Free,
		Percent:    uint32(stat.UsedPercent + 0.5),
		MountPoint: stat.Path,
	}
}
