// Package devsvc talks to the host device management service.
//
// Service covers the read-only queries used to assemble the topology and to
// poll for changes. Operator covers the privileged mutations; callers must
// rebuild the topology after one succeeds, the service client never does.
package devsvc

import "context"

// Block is a block device node
type Block struct {
	Path   string `json:"path"`
	Device string `json:"device"`
	// Drive is the owning drive, empty when the node has none (loop, dm)
	Drive string `json:"drive"`
	// Table is the partition table back-reference, set only for partition nodes
	Table   string `json:"table,omitempty"`
	IDType  string `json:"id_type"`
	IDLabel string `json:"id_label"`
}

// IsPartition reports whether the node is a partition of some table
func (b *Block) IsPartition() bool {
	return b.Table != ""
}

// DriveInfo holds drive attributes
type DriveInfo struct {
	Path                string
	ID                  string
	Vendor              string
	Model               string
	Serial              string
	Revision            string
	Size                uint64
	Removable           bool
	MediaRemovable      bool
	MediaAvailable      bool
	MediaChangeDetected bool
	Ejectable           bool
	CanPowerOff         bool
	Optical             bool
	OpticalBlank        bool
}

// TableInfo is a partition table and the partitions it lists
type TableInfo struct {
	Path       string
	Type       string
	Partitions []string
}

// PartitionInfo holds partition attributes
type PartitionInfo struct {
	Path        string
	Table       string
	Number      uint32
	Name        string
	Type        string
	UUID        string
	Offset      uint64
	Size        uint64
	Flags       uint64
	IsContainer bool
	IsContained bool
}

// Service is the read side of the device management service
type Service interface {
	// BlockDevices lists every block device object currently known
	BlockDevices(ctx context.Context) ([]string, error)
	Block(ctx context.Context, path string) (*Block, error)
	Drive(ctx context.Context, path string) (*DriveInfo, error)
	// PartitionTable reads the table exposed by a whole-disk block node
	PartitionTable(ctx context.Context, blockPath string) (*TableInfo, error)
	Partition(ctx context.Context, path string) (*PartitionInfo, error)
}

// FormatOptions controls filesystem creation
type FormatOptions struct {
	Type       string
	Label      string
	Erase      bool
	Passphrase string
}

// CreateRequest describes a new partition
type CreateRequest struct {
	Offset uint64
	Size   uint64
	Type   string
	Name   string
	Format FormatOptions
}

// Operator is the privileged side of the device management service
type Operator interface {
	Mount(ctx context.Context, path string) (string, error)
	Unmount(ctx context.Context, path string) error
	DeletePartition(ctx context.Context, path string) error
	Format(ctx context.Context, path string, opts FormatOptions) error
	CreatePartitionAndFormat(ctx context.Context, tablePath string, req CreateRequest) (string, error)
	SetPartitionType(ctx context.Context, path, code string) error
	SetPartitionName(ctx context.Context, path, name string) error
	SetPartitionFlags(ctx context.Context, path string, flags uint64) error
	SetFilesystemLabel(ctx context.Context, path, label string) error
	ResizePartition(ctx context.Context, path string, size uint64) error
	CheckFilesystem(ctx context.Context, path string) (bool, error)
	RepairFilesystem(ctx context.Context, path string) (bool, error)
	TakeOwnership(ctx context.Context, path string, recursive bool) error
	ChangePassphrase(ctx context.Context, path, oldPassphrase, newPassphrase string) error
	Eject(ctx context.Context, drivePath string) error
	PowerOff(ctx context.Context, drivePath string) error
}

// Client is a live connection to the device management service
type Client interface {
	Service
	Operator
	Close() error
}

// Connect opens a connection to the platform device service
func Connect(ctx context.Context) (Client, error) {
	return connectPlatform(ctx)
}
