package usage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Usage is one row of the filesystem usage table
type Usage struct {
	Filesystem string `json:"filesystem"`
	Blocks     uint64 `json:"total_bytes"`
	Used       uint64 `json:"used_bytes"`
	Available  uint64 `json:"available_bytes"`
	Percent    uint32 `json:"used_percent"`
	MountPoint string `json:"mount_point"`
}

// Reader interface for the usage table
type Reader interface {
	Load(ctx context.Context) ([]*Usage, error)
}

// NewReader creates a new usage reader for the current platform
func NewReader() Reader {
	return newPlatformReader()
}

// ParseError describes a usage row that could not be decoded
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("usage row %d: %s", e.Line, e.Reason)
}

const rowFields = 6

// Parse decodes df-style output with byte sized blocks. The first line is a
// header. Rows that do not decode are dropped.
func Parse(r io.Reader) ([]*Usage, error) {
	scanner := bufio.NewScanner(r)
	var usages []*Usage
	line := 0
	for scanner.Scan() {
		line++
		if line == 1 {
			continue
		}
		u, err := parseRow(line, scanner.Text())
		if err != nil {
			continue
		}
		usages = append(usages, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return usages, nil
}

func parseRow(line int, text string) (*Usage, error) {
	values := strings.Fields(text)
	if len(values) != rowFields {
		return nil, &ParseError{Line: line, Reason: fmt.Sprintf("expected %d fields, got %d", rowFields, len(values))}
	}

	var nums [3]uint64
	for i := range nums {
		n, err := strconv.ParseUint(values[i+1], 10, 64)
		if err != nil {
			return nil, &ParseError{Line: line, Reason: err.Error()}
		}
		nums[i] = n
	}

	percent, err := strconv.ParseUint(strings.TrimSuffix(values[4], "%"), 10, 32)
	if err != nil {
		return nil, &ParseError{Line: line, Reason: err.Error()}
	}

	return &Usage{
		Filesystem: values[0],
		Blocks:     nums[0],
		Used:       nums[1],
		Available:  nums[2],
		Percent:    uint32(percent),
		MountPoint: values[5],
	}, nil
}

// Lookup returns the first usage row whose filesystem ends with leaf, the
// final component of a device path. The device service and the usage source
// name the same node differently, so only the tail is compared.
func Lookup(usages []*Usage, leaf string) *Usage {
	if leaf == "" {
		return nil
	}
	for _, u := range usages {
		if strings.HasSuffix(u.Filesystem, leaf) {
			return u
		}
	}
	return nil
}
