// Package topology assembles drives and partitions from the device service
// and keeps a drive list in step with attach/detach events.
package topology

import (
	"fmt"
	"path"
	"strings"

	"github.com/CristiGvl/picoDisks/internal/usage"
)

// Drive is one physical or logical drive. A Drive is built fresh on every
// rebuild and replaced wholesale, never patched field by field.
type Drive struct {
	Path      string `json:"path"`
	BlockPath string `json:"block_path"`
	Name      string `json:"name"`
	Size      uint64 `json:"size_bytes"`

	ID       string `json:"id"`
	Vendor   string `json:"vendor"`
	Model    string `json:"model"`
	Serial   string `json:"serial"`
	Revision string `json:"revision"`

	Removable           bool `json:"removable"`
	MediaRemovable      bool `json:"media_removable"`
	MediaAvailable      bool `json:"media_available"`
	MediaChangeDetected bool `json:"media_change_detected"`
	Ejectable           bool `json:"ejectable"`
	CanPowerOff         bool `json:"can_power_off"`
	Optical             bool `json:"optical"`
	OpticalBlank        bool `json:"optical_blank"`

	// PartitionTableType is empty until the table has been read
	PartitionTableType string `json:"partition_table_type,omitempty"`

	// Partitions are in discovery order, not offset order
	Partitions []*Partition `json:"partitions"`
}

// PrettyName is the last path component with underscores as spaces
func (d *Drive) PrettyName() string {
	return strings.ReplaceAll(path.Base(d.Name), "_", " ")
}

// HasPartitionTable reports whether the partition table was read
func (d *Drive) HasPartitionTable() bool {
	return d.PartitionTableType != ""
}

// Partition looks up a partition by object path
func (d *Drive) Partition(objectPath string) *Partition {
	for _, p := range d.Partitions {
		if p.Path == objectPath {
			return p
		}
	}
	return nil
}

// clone copies the drive and its partition slice; partitions are shared
func (d *Drive) clone() *Drive {
	cp := *d
	cp.Partitions = append([]*Partition(nil), d.Partitions...)
	return &cp
}

// Partition is one partition of a drive's partition table
type Partition struct {
	// DrivePath refers back to the owning drive by path, not by handle
	DrivePath string `json:"drive_path"`
	TablePath string `json:"table_path"`
	Path      string `json:"path"`
	Number    uint32 `json:"number"`
	Name      string `json:"name"`

	// PartitionType is the registry label, Type the raw code
	PartitionType string `json:"partition_type"`
	Type          string `json:"type"`
	IDType        string `json:"id_type"`
	UUID          string `json:"uuid"`

	Offset      uint64 `json:"offset_bytes"`
	Size        uint64 `json:"size_bytes"`
	Flags       uint64 `json:"flags"`
	IsContainer bool   `json:"is_container"`
	IsContained bool   `json:"is_contained"`

	DevicePath string       `json:"device_path,omitempty"`
	Usage      *usage.Usage `json:"usage,omitempty"`
}

// PrettyName returns "Partition N"
func (p *Partition) PrettyName() string {
	return fmt.Sprintf("Partition %d", p.Number)
}

// End is the first byte after the partition
func (p *Partition) End() uint64 {
	return p.Offset + p.Size
}

// Mounted reports whether the usage table lists the partition
func (p *Partition) Mounted() bool {
	return p.Usage != nil
}

// FindDrive returns the drive with the given path or block path
func FindDrive(drives []*Drive, objectPath string) *Drive {
	for _, d := range drives {
		if d.Path == objectPath || d.BlockPath == objectPath {
			return d
		}
	}
	return nil
}

// FindPartition returns the partition with the given path and its drive
func FindPartition(drives []*Drive, objectPath string) (*Drive, *Partition) {
	for _, d := range drives {
		if p := d.Partition(objectPath); p != nil {
			return d, p
		}
	}
	return nil, nil
}
