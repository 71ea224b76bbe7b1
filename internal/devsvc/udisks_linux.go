//go:build linux

package devsvc

import (
	"bytes"
	"context"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

const (
	udisksService = "org.freedesktop.UDisks2"
	managerPath   = dbus.ObjectPath("/org/freedesktop/UDisks2/Manager")

	ifaceManager    = "org.freedesktop.UDisks2.Manager"
	ifaceBlock      = "org.freedesktop.UDisks2.Block"
	ifaceDrive      = "org.freedesktop.UDisks2.Drive"
	ifaceTable      = "org.freedesktop.UDisks2.PartitionTable"
	ifacePartition  = "org.freedesktop.UDisks2.Partition"
	ifaceFilesystem = "org.freedesktop.UDisks2.Filesystem"
	ifaceEncrypted  = "org.freedesktop.UDisks2.Encrypted"

	propsGetAll = "org.freedesktop.DBus.Properties.GetAll"
	noObject    = dbus.ObjectPath("/")
)

// UDisksClient implements Client on top of UDisks2 over the system bus
type UDisksClient struct {
	conn *dbus.Conn
}

func connectPlatform(ctx context.Context) (Client, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	return &UDisksClient{conn: conn}, nil
}

// Close releases the bus connection
func (c *UDisksClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *UDisksClient) object(path string) (dbus.BusObject, error) {
	if c == nil || c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn.Object(udisksService, dbus.ObjectPath(path)), nil
}

func (c *UDisksClient) call(ctx context.Context, path, method string, args ...interface{}) *dbus.Call {
	obj, err := c.object(path)
	if err != nil {
		return &dbus.Call{Err: err}
	}
	return obj.CallWithContext(ctx, method, 0, args...)
}

func (c *UDisksClient) props(ctx context.Context, path, iface string) (properties, error) {
	var p map[string]dbus.Variant
	if err := c.call(ctx, path, propsGetAll, iface).Store(&p); err != nil {
		return nil, err
	}
	return properties(p), nil
}

func noOptions() map[string]dbus.Variant {
	return map[string]dbus.Variant{}
}

// BlockDevices lists block device object paths from the manager
func (c *UDisksClient) BlockDevices(ctx context.Context) ([]string, error) {
	var paths []dbus.ObjectPath
	err := c.call(ctx, string(managerPath), ifaceManager+".GetBlockDevices", noOptions()).Store(&paths)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return nil, err
		}
		return nil, &ConnectionError{Err: errors.Wrap(err, "GetBlockDevices")}
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, string(p))
	}
	return out, nil
}

// Block reads a block node. A node is a partition when it also exposes the
// Partition interface with a table back-reference.
func (c *UDisksClient) Block(ctx context.Context, path string) (*Block, error) {
	p, err := c.props(ctx, path, ifaceBlock)
	if err != nil {
		return nil, probeErr("block", path, err)
	}

	b := &Block{
		Path:    path,
		Device:  p.byteString("Device"),
		Drive:   p.object("Drive"),
		IDType:  p.str("IdType"),
		IDLabel: p.str("IdLabel"),
	}

	// Whole-disk nodes do not implement Partition; that error is expected
	if pp, err := c.props(ctx, path, ifacePartition); err == nil {
		b.Table = pp.object("Table")
	}
	return b, nil
}

// Drive reads drive attributes
func (c *UDisksClient) Drive(ctx context.Context, path string) (*DriveInfo, error) {
	p, err := c.props(ctx, path, ifaceDrive)
	if err != nil {
		return nil, probeErr("drive", path, err)
	}
	return &DriveInfo{
		Path:                path,
		ID:                  p.str("Id"),
		Vendor:              p.str("Vendor"),
		Model:               p.str("Model"),
		Serial:              p.str("Serial"),
		Revision:            p.str("Revision"),
		Size:                p.u64("Size"),
		Removable:           p.boolean("Removable"),
		MediaRemovable:      p.boolean("MediaRemovable"),
		MediaAvailable:      p.boolean("MediaAvailable"),
		MediaChangeDetected: p.boolean("MediaChangeDetected"),
		Ejectable:           p.boolean("Ejectable"),
		CanPowerOff:         p.boolean("CanPowerOff"),
		Optical:             p.boolean("Optical"),
		OpticalBlank:        p.boolean("OpticalBlank"),
	}, nil
}

// PartitionTable reads the table on a whole-disk block node
func (c *UDisksClient) PartitionTable(ctx context.Context, blockPath string) (*TableInfo, error) {
	p, err := c.props(ctx, blockPath, ifaceTable)
	if err != nil {
		return nil, probeErr("partition table", blockPath, err)
	}
	return &TableInfo{
		Path:       blockPath,
		Type:       p.str("Type"),
		Partitions: p.objects("Partitions"),
	}, nil
}

// Partition reads partition attributes
func (c *UDisksClient) Partition(ctx context.Context, path string) (*PartitionInfo, error) {
	p, err := c.props(ctx, path, ifacePartition)
	if err != nil {
		return nil, probeErr("partition", path, err)
	}
	return &PartitionInfo{
		Path:        path,
		Table:       p.object("Table"),
		Number:      p.u32("Number"),
		Name:        p.str("Name"),
		Type:        p.str("Type"),
		UUID:        p.str("UUID"),
		Offset:      p.u64("Offset"),
		Size:        p.u64("Size"),
		Flags:       p.u64("Flags"),
		IsContainer: p.boolean("IsContainer"),
		IsContained: p.boolean("IsContained"),
	}, nil
}

// Mount mounts the filesystem on path and returns the mount point
func (c *UDisksClient) Mount(ctx context.Context, path string) (string, error) {
	var mountPoint string
	err := c.call(ctx, path, ifaceFilesystem+".Mount", noOptions()).Store(&mountPoint)
	return mountPoint, errors.Wrapf(err, "mount %s", path)
}

// Unmount unmounts the filesystem on path
func (c *UDisksClient) Unmount(ctx context.Context, path string) error {
	return errors.Wrapf(c.call(ctx, path, ifaceFilesystem+".Unmount", noOptions()).Err, "unmount %s", path)
}

// DeletePartition removes the partition from its table
func (c *UDisksClient) DeletePartition(ctx context.Context, path string) error {
	return errors.Wrapf(c.call(ctx, path, ifacePartition+".Delete", noOptions()).Err, "delete %s", path)
}

func formatOptions(opts FormatOptions) map[string]dbus.Variant {
	o := noOptions()
	if opts.Label != "" {
		o["label"] = dbus.MakeVariant(opts.Label)
	}
	if opts.Erase {
		o["erase"] = dbus.MakeVariant("zero")
	}
	if opts.Passphrase != "" {
		o["encrypt.passphrase"] = dbus.MakeVariant(opts.Passphrase)
	}
	return o
}

// Format creates a filesystem on the block node at path
func (c *UDisksClient) Format(ctx context.Context, path string, opts FormatOptions) error {
	err := c.call(ctx, path, ifaceBlock+".Format", opts.Type, formatOptions(opts)).Err
	return errors.Wrapf(err, "format %s as %s", path, opts.Type)
}

// CreatePartitionAndFormat adds a partition to the table and formats it
func (c *UDisksClient) CreatePartitionAndFormat(ctx context.Context, tablePath string, req CreateRequest) (string, error) {
	var created dbus.ObjectPath
	err := c.call(ctx, tablePath, ifaceTable+".CreatePartitionAndFormat",
		req.Offset, req.Size, req.Type, req.Name, noOptions(),
		req.Format.Type, formatOptions(req.Format),
	).Store(&created)
	return string(created), errors.Wrapf(err, "create partition on %s", tablePath)
}

// SetPartitionType changes the partition type code
func (c *UDisksClient) SetPartitionType(ctx context.Context, path, code string) error {
	return errors.Wrapf(c.call(ctx, path, ifacePartition+".SetType", code, noOptions()).Err, "set type of %s", path)
}

// SetPartitionName changes the partition name (GPT only)
func (c *UDisksClient) SetPartitionName(ctx context.Context, path, name string) error {
	return errors.Wrapf(c.call(ctx, path, ifacePartition+".SetName", name, noOptions()).Err, "set name of %s", path)
}

// SetPartitionFlags replaces the partition flags
func (c *UDisksClient) SetPartitionFlags(ctx context.Context, path string, flags uint64) error {
	return errors.Wrapf(c.call(ctx, path, ifacePartition+".SetFlags", flags, noOptions()).Err, "set flags of %s", path)
}

// SetFilesystemLabel changes the filesystem label
func (c *UDisksClient) SetFilesystemLabel(ctx context.Context, path, label string) error {
	return errors.Wrapf(c.call(ctx, path, ifaceFilesystem+".SetLabel", label, noOptions()).Err, "set label of %s", path)
}

// ResizePartition grows or shrinks the partition, not its filesystem
func (c *UDisksClient) ResizePartition(ctx context.Context, path string, size uint64) error {
	return errors.Wrapf(c.call(ctx, path, ifacePartition+".Resize", size, noOptions()).Err, "resize %s", path)
}

// CheckFilesystem reports whether the filesystem is consistent
func (c *UDisksClient) CheckFilesystem(ctx context.Context, path string) (bool, error) {
	var ok bool
	err := c.call(ctx, path, ifaceFilesystem+".Check", noOptions()).Store(&ok)
	return ok, errors.Wrapf(err, "check %s", path)
}

// RepairFilesystem reports whether the repair succeeded
func (c *UDisksClient) RepairFilesystem(ctx context.Context, path string) (bool, error) {
	var ok bool
	err := c.call(ctx, path, ifaceFilesystem+".Repair", noOptions()).Store(&ok)
	return ok, errors.Wrapf(err, "repair %s", path)
}

// TakeOwnership chowns the filesystem root to the caller
func (c *UDisksClient) TakeOwnership(ctx context.Context, path string, recursive bool) error {
	opts := noOptions()
	opts["recursive"] = dbus.MakeVariant(recursive)
	return errors.Wrapf(c.call(ctx, path, ifaceFilesystem+".TakeOwnership", opts).Err, "take ownership of %s", path)
}

// ChangePassphrase changes the passphrase of an encrypted device
func (c *UDisksClient) ChangePassphrase(ctx context.Context, path, oldPassphrase, newPassphrase string) error {
	err := c.call(ctx, path, ifaceEncrypted+".ChangePassphrase", oldPassphrase, newPassphrase, noOptions()).Err
	return errors.Wrapf(err, "change passphrase of %s", path)
}

// Eject ejects the media of a drive
func (c *UDisksClient) Eject(ctx context.Context, drivePath string) error {
	return errors.Wrapf(c.call(ctx, drivePath, ifaceDrive+".Eject", noOptions()).Err, "eject %s", drivePath)
}

// PowerOff powers the drive down so it can be removed safely
func (c *UDisksClient) PowerOff(ctx context.Context, drivePath string) error {
	return errors.Wrapf(c.call(ctx, drivePath, ifaceDrive+".PowerOff", noOptions()).Err, "power off %s", drivePath)
}

// properties wraps an org.freedesktop.DBus.Properties.GetAll reply.
// Missing or mistyped values read as their zero value.
type properties map[string]dbus.Variant

func (p properties) str(key string) string {
	s, _ := p[key].Value().(string)
	return s
}

func (p properties) u64(key string) uint64 {
	n, _ := p[key].Value().(uint64)
	return n
}

func (p properties) u32(key string) uint32 {
	n, _ := p[key].Value().(uint32)
	return n
}

func (p properties) boolean(key string) bool {
	b, _ := p[key].Value().(bool)
	return b
}

func (p properties) object(key string) string {
	o, _ := p[key].Value().(dbus.ObjectPath)
	if o == noObject {
		return ""
	}
	return string(o)
}

func (p properties) objects(key string) []string {
	paths, _ := p[key].Value().([]dbus.ObjectPath)
	out := make([]string, 0, len(paths))
	for _, o := range paths {
		out = append(out, string(o))
	}
	return out
}

// byteString decodes a NUL terminated "ay" property such as Block.Device
func (p properties) byteString(key string) string {
	b, _ := p[key].Value().([]byte)
	return strings.TrimSpace(string(bytes.TrimRight(b, "\x00")))
}
