// Package ops exposes the privileged drive and partition operations as
// handles bound to one model object. Each table format gets its own handle
// type.
//
// A successful operation changes the device; callers rebuild the topology
// afterwards.
package ops

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/CristiGvl/picoDisks/internal/devsvc"
	"github.com/CristiGvl/picoDisks/internal/parttype"
	"github.com/CristiGvl/picoDisks/internal/topology"
)

var (
	// ErrNoPartitionTable is returned when creating a partition on a drive
	// whose table could not be read
	ErrNoPartitionTable = errors.New("drive has no partition table")
	// ErrNameUnsupported is returned for partition names on MBR tables
	ErrNameUnsupported = errors.New("partition names are not supported on dos tables")
)

// DriveOps operates on one drive
type DriveOps interface {
	Eject(ctx context.Context) error
	PowerOff(ctx context.Context) error
	// CreatePartition creates and formats a partition and returns its path
	CreatePartition(ctx context.Context, info CreatePartitionInfo) (string, error)
}

// PartitionOps operates on one partition
type PartitionOps interface {
	Mount(ctx context.Context) (string, error)
	Unmount(ctx context.Context) error
	// Delete unmounts the partition if needed and removes it from the table
	Delete(ctx context.Context) error
	Format(ctx context.Context, label string, erase bool, fsType string) error
	Edit(ctx context.Context, partitionType, name string, flags uint64) error
	SetLabel(ctx context.Context, label string) error
	Resize(ctx context.Context, size uint64) error
	Check(ctx context.Context) (bool, error)
	Repair(ctx context.Context) (bool, error)
	TakeOwnership(ctx context.Context, recursive bool) error
	ChangePassphrase(ctx context.Context, oldPassphrase, newPassphrase string) error
}

// ForDrive returns the handle matching the drive's partition table
func ForDrive(op devsvc.Operator, d *topology.Drive) DriveOps {
	base := driveOps{op: op, path: d.Path, tablePath: d.BlockPath, tableType: d.PartitionTableType}
	switch strings.ToLower(d.PartitionTableType) {
	case parttype.GPT:
		return &gptDrive{base}
	case parttype.DOS:
		return &dosDrive{base}
	default:
		return &rawDrive{base}
	}
}

// ForPartition returns the handle matching the table the partition is on
func ForPartition(op devsvc.Operator, p *topology.Partition, tableType string) PartitionOps {
	base := partitionOps{op: op, path: p.Path}
	if strings.EqualFold(tableType, parttype.DOS) {
		return &dosPartition{base}
	}
	return &gptPartition{base}
}

type driveOps struct {
	op        devsvc.Operator
	path      string
	tablePath string
	tableType string
}

func (d driveOps) operator() (devsvc.Operator, error) {
	if d.op == nil {
		return nil, devsvc.ErrNotConnected
	}
	return d.op, nil
}

func (d driveOps) Eject(ctx context.Context) error {
	op, err := d.operator()
	if err != nil {
		return err
	}
	return op.Eject(ctx, d.path)
}

func (d driveOps) PowerOff(ctx context.Context) error {
	op, err := d.operator()
	if err != nil {
		return err
	}
	return op.PowerOff(ctx, d.path)
}

func (d driveOps) create(ctx context.Context, info CreatePartitionInfo) (string, error) {
	op, err := d.operator()
	if err != nil {
		return "", err
	}
	req, err := info.Request(d.tableType)
	if err != nil {
		return "", err
	}
	created, err := op.CreatePartitionAndFormat(ctx, d.tablePath, req)
	if err != nil {
		return "", errors.Wrapf(err, "create partition on %s", d.path)
	}
	return created, nil
}

type gptDrive struct{ driveOps }

func (d *gptDrive) CreatePartition(ctx context.Context, info CreatePartitionInfo) (string, error) {
	return d.create(ctx, info)
}

type dosDrive struct{ driveOps }

func (d *dosDrive) CreatePartition(ctx context.Context, info CreatePartitionInfo) (string, error) {
	if info.Name != "" {
		return "", ErrNameUnsupported
	}
	return d.create(ctx, info)
}

// rawDrive has no readable partition table
type rawDrive struct{ driveOps }

func (d *rawDrive) CreatePartition(ctx context.Context, info CreatePartitionInfo) (string, error) {
	if _, err := d.operator(); err != nil {
		return "", err
	}
	return "", ErrNoPartitionTable
}

type partitionOps struct {
	op   devsvc.Operator
	path string
}

func (p partitionOps) operator() (devsvc.Operator, error) {
	if p.op == nil {
		return nil, devsvc.ErrNotConnected
	}
	return p.op, nil
}

func (p partitionOps) Mount(ctx context.Context) (string, error) {
	op, err := p.operator()
	if err != nil {
		return "", err
	}
	return op.Mount(ctx, p.path)
}

func (p partitionOps) Unmount(ctx context.Context) error {
	op, err := p.operator()
	if err != nil {
		return err
	}
	return op.Unmount(ctx, p.path)
}

func (p partitionOps) Delete(ctx context.Context) error {
	op, err := p.operator()
	if err != nil {
		return err
	}
	// Fails when already unmounted; any real problem surfaces on delete
	_ = op.Unmount(ctx, p.path)
	return op.DeletePartition(ctx, p.path)
}

func (p partitionOps) Format(ctx context.Context, label string, erase bool, fsType string) error {
	op, err := p.operator()
	if err != nil {
		return err
	}
	return op.Format(ctx, p.path, devsvc.FormatOptions{Type: fsType, Label: label, Erase: erase})
}

func (p partitionOps) SetLabel(ctx context.Context, label string) error {
	op, err := p.operator()
	if err != nil {
		return err
	}
	return op.SetFilesystemLabel(ctx, p.path, label)
}

func (p partitionOps) Resize(ctx context.Context, size uint64) error {
	op, err := p.operator()
	if err != nil {
		return err
	}
	return op.ResizePartition(ctx, p.path, size)
}

func (p partitionOps) Check(ctx context.Context) (bool, error) {
	op, err := p.operator()
	if err != nil {
		return false, err
	}
	return op.CheckFilesystem(ctx, p.path)
}

func (p partitionOps) Repair(ctx context.Context) (bool, error) {
	op, err := p.operator()
	if err != nil {
		return false, err
	}
	return op.RepairFilesystem(ctx, p.path)
}

func (p partitionOps) TakeOwnership(ctx context.Context, recursive bool) error {
	op, err := p.operator()
	if err != nil {
		return err
	}
	return op.TakeOwnership(ctx, p.path, recursive)
}

func (p partitionOps) ChangePassphrase(ctx context.Context, oldPassphrase, newPassphrase string) error {
	op, err := p.operator()
	if err != nil {
		return err
	}
	return op.ChangePassphrase(ctx, p.path, oldPassphrase, newPassphrase)
}

func (p partitionOps) setTypeAndFlags(ctx context.Context, op devsvc.Operator, partitionType string, flags uint64) error {
	if partitionType != "" {
		if err := op.SetPartitionType(ctx, p.path, partitionType); err != nil {
			return errors.Wrap(err, "set partition type")
		}
	}
	if err := op.SetPartitionFlags(ctx, p.path, flags); err != nil {
		return errors.Wrap(err, "set partition flags")
	}
	return nil
}

type gptPartition struct{ partitionOps }

func (p *gptPartition) Edit(ctx context.Context, partitionType, name string, flags uint64) error {
	op, err := p.operator()
	if err != nil {
		return err
	}
	if err := p.setTypeAndFlags(ctx, op, partitionType, flags); err != nil {
		return err
	}
	return errors.Wrap(op.SetPartitionName(ctx, p.path, name), "set partition name")
}

type dosPartition struct{ partitionOps }

func (p *dosPartition) Edit(ctx context.Context, partitionType, name string, flags uint64) error {
	op, err := p.operator()
	if err != nil {
		return err
	}
	if name != "" {
		return ErrNameUnsupported
	}
	return p.setTypeAndFlags(ctx, op, partitionType, flags)
}
