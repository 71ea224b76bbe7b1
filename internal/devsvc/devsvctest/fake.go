// Package devsvctest provides an in-memory device service for tests.
package devsvctest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/CristiGvl/picoDisks/internal/devsvc"
)

// Fake is a scriptable devsvc.Client. All maps are keyed by object path.
// It is safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	Blocks     map[string]*devsvc.Block
	Drives     map[string]*devsvc.DriveInfo
	Tables     map[string]*devsvc.TableInfo
	Partitions map[string]*devsvc.PartitionInfo

	// Errors injects a failure for "<method> <path>", e.g. "Drive /d/1".
	// "BlockDevices" with no path fails enumeration.
	Errors map[string]error

	// Polls, when set, is consumed one entry per BlockDevices call instead
	// of listing Blocks. The last entry repeats.
	Polls [][]string

	// Calls records every Operator invocation as "<method> <path>"
	Calls []string

	// OnCall runs after an Operator method is recorded, under no lock
	OnCall func(method, path string)

	closed bool
}

// New returns an empty fake
func New() *Fake {
	return &Fake{
		Blocks:     map[string]*devsvc.Block{},
		Drives:     map[string]*devsvc.DriveInfo{},
		Tables:     map[string]*devsvc.TableInfo{},
		Partitions: map[string]*devsvc.PartitionInfo{},
		Errors:     map[string]error{},
	}
}

// AddDrive registers a drive with a whole-disk block node and, when
// tableType is not empty, a partition table
func (f *Fake) AddDrive(drive *devsvc.DriveInfo, blockPath, device, tableType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Drives[drive.Path] = drive
	f.Blocks[blockPath] = &devsvc.Block{Path: blockPath, Device: device, Drive: drive.Path}
	if tableType != "" {
		f.Tables[blockPath] = &devsvc.TableInfo{Path: blockPath, Type: tableType}
	}
}

// AddPartition registers a partition node on the table at tablePath
func (f *Fake) AddPartition(tablePath, idType string, p *devsvc.PartitionInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.Table = tablePath
	f.Partitions[p.Path] = p
	drive := ""
	if b, ok := f.Blocks[tablePath]; ok {
		drive = b.Drive
	}
	f.Blocks[p.Path] = &devsvc.Block{Path: p.Path, Drive: drive, Table: tablePath, IDType: idType}
	if t, ok := f.Tables[tablePath]; ok {
		t.Partitions = append(t.Partitions, p.Path)
	}
}

// SetError injects err for method on path
func (f *Fake) SetError(method, path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[key(method, path)] = err
}

// SetPolls replaces the scripted BlockDevices results
func (f *Fake) SetPolls(polls ...[]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Polls = polls
}

// Closed reports whether Close was called
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Recorded returns a copy of the recorded operator calls
func (f *Fake) Recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

func key(method, path string) string {
	if path == "" {
		return method
	}
	return method + " " + path
}

func (f *Fake) fail(method, path string) error {
	return f.Errors[key(method, path)]
}

func (f *Fake) BlockDevices(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("BlockDevices", ""); err != nil {
		return nil, err
	}
	if len(f.Polls) > 0 {
		out := f.Polls[0]
		if len(f.Polls) > 1 {
			f.Polls = f.Polls[1:]
		}
		return append([]string(nil), out...), nil
	}
	out := make([]string, 0, len(f.Blocks))
	for p := range f.Blocks {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (f *Fake) Block(ctx context.Context, path string) (*devsvc.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("Block", path); err != nil {
		return nil, err
	}
	b, ok := f.Blocks[path]
	if !ok {
		return nil, &devsvc.ProbeError{Op: "block", Path: path, Err: fmt.Errorf("no such object")}
	}
	cp := *b
	return &cp, nil
}

func (f *Fake) Drive(ctx context.Context, path string) (*devsvc.DriveInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("Drive", path); err != nil {
		return nil, err
	}
	d, ok := f.Drives[path]
	if !ok {
		return nil, &devsvc.ProbeError{Op: "drive", Path: path, Err: fmt.Errorf("no such object")}
	}
	cp := *d
	return &cp, nil
}

func (f *Fake) PartitionTable(ctx context.Context, blockPath string) (*devsvc.TableInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("PartitionTable", blockPath); err != nil {
		return nil, err
	}
	t, ok := f.Tables[blockPath]
	if !ok {
		return nil, &devsvc.ProbeError{Op: "partition table", Path: blockPath, Err: fmt.Errorf("no such interface")}
	}
	cp := *t
	cp.Partitions = append([]string(nil), t.Partitions...)
	return &cp, nil
}

func (f *Fake) Partition(ctx context.Context, path string) (*devsvc.PartitionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("Partition", path); err != nil {
		return nil, err
	}
	p, ok := f.Partitions[path]
	if !ok {
		return nil, &devsvc.ProbeError{Op: "partition", Path: path, Err: fmt.Errorf("no such object")}
	}
	cp := *p
	return &cp, nil
}

func (f *Fake) record(method, path string) error {
	f.mu.Lock()
	f.Calls = append(f.Calls, key(method, path))
	err := f.fail(method, path)
	hook := f.OnCall
	f.mu.Unlock()
	if hook != nil {
		hook(method, path)
	}
	return err
}

func (f *Fake) Mount(ctx context.Context, path string) (string, error) {
	if err := f.record("Mount", path); err != nil {
		return "", err
	}
	return "/media/fake", nil
}

func (f *Fake) Unmount(ctx context.Context, path string) error {
	return f.record("Unmount", path)
}

func (f *Fake) DeletePartition(ctx context.Context, path string) error {
	return f.record("DeletePartition", path)
}

func (f *Fake) Format(ctx context.Context, path string, opts devsvc.FormatOptions) error {
	return f.record("Format", path)
}

func (f *Fake) CreatePartitionAndFormat(ctx context.Context, tablePath string, req devsvc.CreateRequest) (string, error) {
	if err := f.record("CreatePartitionAndFormat", tablePath); err != nil {
		return "", err
	}
	return tablePath + "/new", nil
}

func (f *Fake) SetPartitionType(ctx context.Context, path, code string) error {
	return f.record("SetPartitionType", path)
}

func (f *Fake) SetPartitionName(ctx context.Context, path, name string) error {
	return f.record("SetPartitionName", path)
}

func (f *Fake) SetPartitionFlags(ctx context.Context, path string, flags uint64) error {
	return f.record("SetPartitionFlags", path)
}

func (f *Fake) SetFilesystemLabel(ctx context.Context, path, label string) error {
	return f.record("SetFilesystemLabel", path)
}

func (f *Fake) ResizePartition(ctx context.Context, path string, size uint64) error {
	return f.record("ResizePartition", path)
}

func (f *Fake) CheckFilesystem(ctx context.Context, path string) (bool, error) {
	err := f.record("CheckFilesystem", path)
	return err == nil, err
}

func (f *Fake) RepairFilesystem(ctx context.Context, path string) (bool, error) {
	err := f.record("RepairFilesystem", path)
	return err == nil, err
}

func (f *Fake) TakeOwnership(ctx context.Context, path string, recursive bool) error {
	return f.record("TakeOwnership", path)
}

func (f *Fake) ChangePassphrase(ctx context.Context, path, oldPassphrase, newPassphrase string) error {
	return f.record("ChangePassphrase", path)
}

func (f *Fake) Eject(ctx context.Context, drivePath string) error {
	return f.record("Eject", drivePath)
}

func (f *Fake) PowerOff(ctx context.Context, drivePath string) error {
	return f.record("PowerOff", drivePath)
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var _ devsvc.Client = (*Fake)(nil)
