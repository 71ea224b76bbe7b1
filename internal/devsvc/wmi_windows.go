//go:build windows

package devsvc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/StackExchange/wmi"
	"github.com/pkg/errors"
)

// Win32_DiskDrive represents WMI physical disk data
type Win32_DiskDrive struct {
	DeviceID         string
	Index            uint32
	Model            string
	Manufacturer     string
	SerialNumber     string
	FirmwareRevision string
	MediaType        string
	PNPDeviceID      string
	Size             uint64
}

// Win32_DiskPartition represents WMI partition data
type Win32_DiskPartition struct {
	DeviceID       string
	DiskIndex      uint32
	Index          uint32
	Name           string
	Type           string
	StartingOffset uint64
	Size           uint64
	Bootable       bool
}

// WMIClient reads disks and partitions through WMI. It cannot mutate devices.
// Partition paths are WMI device ids ("Disk #0, Partition #0"), which do not
// correlate with volume usage rows.
type WMIClient struct {
	mu         sync.Mutex
	drives     []Win32_DiskDrive
	partitions []Win32_DiskPartition
}

func connectPlatform(ctx context.Context) (Client, error) {
	c := &WMIClient{}
	if err := c.refresh(); err != nil {
		return nil, &ConnectionError{Err: err}
	}
	return c, nil
}

// Close is a no-op, WMI queries are not connection oriented
func (c *WMIClient) Close() error { return nil }

func (c *WMIClient) refresh() error {
	var drives []Win32_DiskDrive
	if err := wmi.Query("SELECT DeviceID, Index, Model, Manufacturer, SerialNumber, FirmwareRevision, MediaType, PNPDeviceID, Size FROM Win32_DiskDrive", &drives); err != nil {
		return errors.Wrap(err, "query Win32_DiskDrive")
	}
	var partitions []Win32_DiskPartition
	if err := wmi.Query("SELECT DeviceID, DiskIndex, Index, Name, Type, StartingOffset, Size, Bootable FROM Win32_DiskPartition", &partitions); err != nil {
		return errors.Wrap(err, "query Win32_DiskPartition")
	}

	c.mu.Lock()
	c.drives, c.partitions = drives, partitions
	c.mu.Unlock()
	return nil
}

func (c *WMIClient) findDrive(path string) (Win32_DiskDrive, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.drives {
		if strings.EqualFold(d.DeviceID, path) {
			return d, true
		}
	}
	return Win32_DiskDrive{}, false
}

func (c *WMIClient) driveByIndex(index uint32) (Win32_DiskDrive, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.drives {
		if d.Index == index {
			return d, true
		}
	}
	return Win32_DiskDrive{}, false
}

func (c *WMIClient) findPartition(path string) (Win32_DiskPartition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.partitions {
		if p.DeviceID == path {
			return p, true
		}
	}
	return Win32_DiskPartition{}, false
}

func (c *WMIClient) partitionsOf(index uint32) []Win32_DiskPartition {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Win32_DiskPartition
	for _, p := range c.partitions {
		if p.DiskIndex == index {
			out = append(out, p)
		}
	}
	return out
}

// BlockDevices lists physical drives followed by their partitions. Every
// call re-queries WMI so the change detector sees fresh data.
func (c *WMIClient) BlockDevices(ctx context.Context) ([]string, error) {
	if err := c.refresh(); err != nil {
		return nil, &ConnectionError{Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.drives)+len(c.partitions))
	for _, d := range c.drives {
		out = append(out, d.DeviceID)
	}
	for _, p := range c.partitions {
		out = append(out, p.DeviceID)
	}
	return out, nil
}

// Block maps a drive or partition id to a block node
func (c *WMIClient) Block(ctx context.Context, path string) (*Block, error) {
	if d, ok := c.findDrive(path); ok {
		return &Block{Path: path, Device: d.DeviceID, Drive: d.DeviceID}, nil
	}
	if p, ok := c.findPartition(path); ok {
		d, ok := c.driveByIndex(p.DiskIndex)
		if !ok {
			return nil, probeErr("block", path, fmt.Errorf("no disk with index %d", p.DiskIndex))
		}
		return &Block{Path: path, Drive: d.DeviceID, Table: d.DeviceID}, nil
	}
	return nil, probeErr("block", path, errors.New("not found"))
}

// Drive reads drive attributes
func (c *WMIClient) Drive(ctx context.Context, path string) (*DriveInfo, error) {
	d, ok := c.findDrive(path)
	if !ok {
		return nil, probeErr("drive", path, errors.New("not found"))
	}
	removable := strings.Contains(strings.ToLower(d.MediaType), "removable")
	return &DriveInfo{
		Path:           d.DeviceID,
		ID:             d.PNPDeviceID,
		Vendor:         d.Manufacturer,
		Model:          d.Model,
		Serial:         strings.TrimSpace(d.SerialNumber),
		Revision:       d.FirmwareRevision,
		Size:           d.Size,
		Removable:      removable,
		MediaRemovable: removable,
		MediaAvailable: true,
	}, nil
}

// PartitionTable infers the table format from the partition type strings,
// which WMI prefixes with "GPT:" on GUID partitioned disks
func (c *WMIClient) PartitionTable(ctx context.Context, blockPath string) (*TableInfo, error) {
	d, ok := c.findDrive(blockPath)
	if !ok {
		return nil, probeErr("partition table", blockPath, errors.New("not found"))
	}
	parts := c.partitionsOf(d.Index)
	if len(parts) == 0 {
		return nil, probeErr("partition table", blockPath, errors.New("no partitions"))
	}

	t := &TableInfo{Path: blockPath, Type: "dos"}
	for _, p := range parts {
		if strings.HasPrefix(p.Type, "GPT:") {
			t.Type = "gpt"
		}
		t.Partitions = append(t.Partitions, p.DeviceID)
	}
	return t, nil
}

// Partition reads partition attributes
func (c *WMIClient) Partition(ctx context.Context, path string) (*PartitionInfo, error) {
	p, ok := c.findPartition(path)
	if !ok {
		return nil, probeErr("partition", path, errors.New("not found"))
	}
	d, _ := c.driveByIndex(p.DiskIndex)
	return &PartitionInfo{
		Path:   p.DeviceID,
		Table:  d.DeviceID,
		Number: p.Index + 1,
		Type:   strings.TrimSpace(strings.TrimPrefix(p.Type, "GPT:")),
		Offset: p.StartingOffset,
		Size:   p.Size,
	}, nil
}

func (c *WMIClient) Mount(context.Context, string) (string, error) {
	return "", ErrUnsupported
}

func (c *WMIClient) Unmount(context.Context, string) error {
	return ErrUnsupported
}

func (c *WMIClient) DeletePartition(context.Context, string) error {
	return ErrUnsupported
}

func (c *WMIClient) Format(context.Context, string, FormatOptions) error {
	return ErrUnsupported
}

func (c *WMIClient) CreatePartitionAndFormat(context.Context, string, CreateRequest) (string, error) {
	return "", ErrUnsupported
}

func (c *WMIClient) SetPartitionType(context.Context, string, string) error {
	return ErrUnsupported
}

func (c *WMIClient) SetPartitionName(context.Context, string, string) error {
	return ErrUnsupported
}

func (c *WMIClient) SetPartitionFlags(context.Context, string, uint64) error {
	return ErrUnsupported
}

func (c *WMIClient) SetFilesystemLabel(context.Context, string, string) error {
	return ErrUnsupported
}

func (c *WMIClient) ResizePartition(context.Context, string, uint64) error {
	return ErrUnsupported
}

func (c *WMIClient) CheckFilesystem(context.Context, string) (bool, error) {
	return false, ErrUnsupported
}

func (c *WMIClient) RepairFilesystem(context.Context, string) (bool, error) {
	return false, ErrUnsupported
}

func (c *WMIClient) TakeOwnership(context.Context, string, bool) error {
	return ErrUnsupported
}

func (c *WMIClient) ChangePassphrase(context.Context, string, string, string) error {
	return ErrUnsupported
}

func (c *WMIClient) Eject(context.Context, string) error {
	return ErrUnsupported
}

func (c *WMIClient) PowerOff(context.Context, string) error {
	return ErrUnsupported
}
