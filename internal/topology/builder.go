package topology

import (
	"context"
	"os"
	"path"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/CristiGvl/picoDisks/internal/devsvc"
	"github.com/CristiGvl/picoDisks/internal/metrics"
	"github.com/CristiGvl/picoDisks/internal/parttype"
	"github.com/CristiGvl/picoDisks/internal/usage"
)

// Builder queries the device service and assembles the drive list
type Builder struct {
	svc     devsvc.Service
	usage   usage.Reader
	logger  zerolog.Logger
	metrics *metrics.Metrics
	exists  func(string) bool
}

// Option configures a Builder
type Option func(*Builder)

// WithLogger sets the logger used for isolated per-device failures
func WithLogger(l zerolog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithMetrics records build duration and outcome
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// WithDeviceCheck replaces the host filesystem check for /dev nodes
func WithDeviceCheck(exists func(string) bool) Option {
	return func(b *Builder) { b.exists = exists }
}

// NewBuilder creates a builder. usageReader may be nil, in which case
// partitions carry no usage.
func NewBuilder(svc devsvc.Service, usageReader usage.Reader, opts ...Option) *Builder {
	b := &Builder{
		svc:    svc,
		usage:  usageReader,
		logger: zerolog.Nop(),
		exists: fileExists,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

type drivePair struct {
	blockPath string
	drivePath string
}

// Build returns every drive the service reports, sorted with fixed drives
// first. Only failing to enumerate block devices is fatal; a drive or
// partition that cannot be read is logged and left out.
func (b *Builder) Build(ctx context.Context) ([]*Drive, error) {
	start := time.Now()
	drives, err := b.build(ctx)
	b.metrics.ObserveBuild(time.Since(start), err)
	if err == nil {
		b.metrics.SetDrives(len(drives))
	}
	return drives, err
}

func (b *Builder) build(ctx context.Context) ([]*Drive, error) {
	if b.svc == nil {
		return nil, devsvc.ErrNotConnected
	}

	pairs, err := b.drivePaths(ctx)
	if err != nil {
		return nil, err
	}

	usages := b.loadUsage(ctx)

	drives := make([]*Drive, 0, len(pairs))
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := b.buildDrive(ctx, pair, usages)
		if err != nil {
			b.logger.Warn().Err(err).Str("drive", pair.drivePath).Msg("skipping drive")
			continue
		}
		drives = append(drives, d)
	}

	SortDrives(drives)
	return drives, nil
}

// drivePaths resolves whole-disk block nodes to their drives. Partition
// nodes are skipped here and discovered through each drive's table.
func (b *Builder) drivePaths(ctx context.Context) ([]drivePair, error) {
	blocks, err := b.svc.BlockDevices(ctx)
	if err != nil {
		var connErr *devsvc.ConnectionError
		if errors.As(err, &connErr) || errors.Is(err, devsvc.ErrNotConnected) {
			return nil, err
		}
		return nil, &devsvc.ConnectionError{Err: err}
	}

	seen := make(map[string]bool)
	var pairs []drivePair
	for _, blockPath := range blocks {
		blk, err := b.svc.Block(ctx, blockPath)
		if err != nil {
			b.logger.Info().Err(err).Str("block", blockPath).Msg("could not read block device")
			continue
		}
		if blk.IsPartition() {
			continue
		}
		if blk.Drive == "" {
			b.logger.Debug().Str("block", blockPath).Msg("block device has no drive")
			continue
		}
		if seen[blk.Drive] {
			continue
		}
		seen[blk.Drive] = true
		pairs = append(pairs, drivePair{blockPath: blockPath, drivePath: blk.Drive})
	}
	return pairs, nil
}

func (b *Builder) loadUsage(ctx context.Context) []*usage.Usage {
	if b.usage == nil {
		return nil
	}
	usages, err := b.usage.Load(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("usage table unavailable")
		return nil
	}
	return usages
}

func (b *Builder) buildDrive(ctx context.Context, pair drivePair, usages []*usage.Usage) (*Drive, error) {
	info, err := b.svc.Drive(ctx, pair.drivePath)
	if err != nil {
		return nil, err
	}

	d := &Drive{
		Path:                pair.drivePath,
		BlockPath:           pair.blockPath,
		Name:                pair.drivePath,
		Size:                info.Size,
		ID:                  info.ID,
		Vendor:              info.Vendor,
		Model:               info.Model,
		Serial:              info.Serial,
		Revision:            info.Revision,
		Removable:           info.Removable,
		MediaRemovable:      info.MediaRemovable,
		MediaAvailable:      info.MediaAvailable,
		MediaChangeDetected: info.MediaChangeDetected,
		Ejectable:           info.Ejectable,
		CanPowerOff:         info.CanPowerOff,
		Optical:             info.Optical,
		OpticalBlank:        info.OpticalBlank,
	}

	table, err := b.svc.PartitionTable(ctx, pair.blockPath)
	if err != nil {
		// Blank and optical media have no table; keep the drive
		b.logger.Debug().Err(err).Str("drive", d.Path).Msg("no partition table")
		return d, nil
	}
	d.PartitionTableType = table.Type

	for _, partitionPath := range table.Partitions {
		p, err := b.buildPartition(ctx, d.Path, table, partitionPath, usages)
		if err != nil {
			b.logger.Warn().Err(err).Str("partition", partitionPath).Msg("skipping partition")
			continue
		}
		d.Partitions = append(d.Partitions, p)
	}
	return d, nil
}

func (b *Builder) buildPartition(ctx context.Context, drivePath string, table *devsvc.TableInfo, partitionPath string, usages []*usage.Usage) (*Partition, error) {
	info, err := b.svc.Partition(ctx, partitionPath)
	if err != nil {
		return nil, err
	}

	p := &Partition{
		DrivePath:     drivePath,
		TablePath:     table.Path,
		Path:          partitionPath,
		Number:        info.Number,
		Name:          info.Name,
		PartitionType: parttype.Label(table.Type, info.Type),
		Type:          info.Type,
		UUID:          info.UUID,
		Offset:        info.Offset,
		Size:          info.Size,
		Flags:         info.Flags,
		IsContainer:   info.IsContainer,
		IsContained:   info.IsContained,
	}

	if blk, err := b.svc.Block(ctx, partitionPath); err == nil {
		p.IDType = blk.IDType
	} else {
		b.logger.Debug().Err(err).Str("partition", partitionPath).Msg("no block node for partition")
	}

	leaf := path.Base(partitionPath)
	p.Usage = usage.Lookup(usages, leaf)
	p.DevicePath = b.devicePath(leaf, p.Usage)
	return p, nil
}

func (b *Builder) devicePath(leaf string, u *usage.Usage) string {
	if u != nil {
		return u.Filesystem
	}
	proposed := "/dev/" + leaf
	if b.exists(proposed) {
		return proposed
	}
	return ""
}

// SortDrives orders fixed drives before removable ones, then by block path
// descending.
//
// The descending secondary key is kept as found; it may be incidental.
func SortDrives(drives []*Drive) {
	sort.SliceStable(drives, func(i, j int) bool {
		a, b := drives[i], drives[j]
		if a.Removable != b.Removable {
			return !a.Removable
		}
		return a.BlockPath > b.BlockPath
	})
}
