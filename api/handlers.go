package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"github.com/CristiGvl/picoDisks/internal/bytesize"
	"github.com/CristiGvl/picoDisks/internal/devsvc"
	"github.com/CristiGvl/picoDisks/internal/ops"
	"github.com/CristiGvl/picoDisks/internal/parttype"
	"github.com/CristiGvl/picoDisks/internal/segment"
	"github.com/CristiGvl/picoDisks/internal/topology"
)

var errNotFound = errors.New("not found")

// operationTimeout bounds privileged operations. Formatting with erase or a
// filesystem check can run far longer than a read.
const operationTimeout = 30 * time.Minute

type driveView struct {
	*topology.Drive
	DisplayName string `json:"display_name"`
	SizePretty  string `json:"size_pretty"`
}

// createView seeds a create form for a free segment
type createView struct {
	ops.CreatePartitionInfo
	MaxSizeValue float64 `json:"max_size_value"`
	SizeStep     float64 `json:"size_step"`
}

type segmentView struct {
	segment.Segment
	SizePretty string      `json:"size_pretty"`
	Create     *createView `json:"create,omitempty"`
}

type partitionRequest struct {
	Path string `json:"path"`

	Label         string `json:"label"`
	Erase         bool   `json:"erase"`
	Filesystem    string `json:"filesystem"`
	PartitionType string `json:"partition_type"`
	Name          string `json:"name"`
	Flags         uint64 `json:"flags"`
	Size          string `json:"size"`
	Recursive     bool   `json:"recursive"`
	OldPassphrase string `json:"old_passphrase"`
	NewPassphrase string `json:"new_passphrase"`
}

type driveRequest struct {
	Path string `json:"path"`
}

type createRequest struct {
	Path string                  `json:"path"`
	Info ops.CreatePartitionInfo `json:"info"`
}

// statusFor maps an operation error to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, errNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, devsvc.ErrNotConnected):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, devsvc.ErrUnsupported):
		return fiber.StatusNotImplemented
	case errors.Is(err, ops.ErrInvalidSize),
		errors.Is(err, ops.ErrUnknownType),
		errors.Is(err, ops.ErrEmptyPassphrase),
		errors.Is(err, ops.ErrPassphraseMismatch),
		errors.Is(err, ops.ErrNameUnsupported),
		errors.Is(err, ops.ErrNoPartitionTable):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.log.Error().Err(err).Str("route", c.Path()).Msg("request failed")
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// Drives endpoint
func (s *Server) getDrives(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	drives, err := s.topology.Drives(ctx)
	if err != nil {
		return s.fail(c, err)
	}

	views := make([]driveView, 0, len(drives))
	for _, d := range drives {
		views = append(views, driveView{
			Drive:       d,
			DisplayName: d.PrettyName(),
			SizePretty:  bytesize.Pretty(d.Size, false),
		})
	}
	return c.JSON(views)
}

// Segments endpoint
func (s *Server) getSegments(c *fiber.Ctx) error {
	path := c.Query("path")
	if path == "" {
		return c.Status(400).JSON(fiber.Map{"error": "path is required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	drives, err := s.topology.Drives(ctx)
	if err != nil {
		return s.fail(c, err)
	}
	d := topology.FindDrive(drives, path)
	if d == nil {
		return s.fail(c, errors.Wrapf(errNotFound, "drive %s", path))
	}

	segs := segment.Segments(d)
	views := make([]segmentView, 0, len(segs))
	for _, seg := range segs {
		v := segmentView{Segment: seg, SizePretty: bytesize.Pretty(seg.Size, false)}
		if seg.IsFreeSpace && d.HasPartitionTable() {
			v.Create = &createView{
				CreatePartitionInfo: seg.CreateInfo(),
				MaxSizeValue:        bytesize.Numeric(seg.Size),
				SizeStep:            bytesize.Step(seg.Size),
			}
		}
		views = append(views, v)
	}
	return c.JSON(fiber.Map{
		"drive":    driveView{Drive: d, DisplayName: d.PrettyName(), SizePretty: bytesize.Pretty(d.Size, false)},
		"segments": views,
	})
}

func (s *Server) refresh(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.topology.Refresh(ctx); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) getPartitionTypes(c *fiber.Ctx) error {
	return c.JSON(parttype.CommonTypes)
}

type driveFunc func(ctx context.Context, d ops.DriveOps) error

func ejectDrive(ctx context.Context, d ops.DriveOps) error    { return d.Eject(ctx) }
func powerOffDrive(ctx context.Context, d ops.DriveOps) error { return d.PowerOff(ctx) }

// driveAction runs fn against the drive named in the request body
func (s *Server) driveAction(name string, fn driveFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req driveRequest
		if err := c.BodyParser(&req); err != nil || req.Path == "" {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
		}

		ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
		defer cancel()

		err := s.topology.Mutate(ctx, name, func(ctx context.Context, drives []*topology.Drive) error {
			d := topology.FindDrive(drives, req.Path)
			if d == nil {
				return errors.Wrapf(errNotFound, "drive %s", req.Path)
			}
			return fn(ctx, ops.ForDrive(s.operator, d))
		})
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}

func (s *Server) createPartition(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil || req.Path == "" {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	var created string
	err := s.topology.Mutate(ctx, "create", func(ctx context.Context, drives []*topology.Drive) error {
		d := topology.FindDrive(drives, req.Path)
		if d == nil {
			return errors.Wrapf(errNotFound, "drive %s", req.Path)
		}
		var err error
		created, err = ops.ForDrive(s.operator, d).CreatePartition(ctx, req.Info)
		return err
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"path": created})
}

// partitionFunc runs one partition operation and returns extra response fields
type partitionFunc func(ctx context.Context, p ops.PartitionOps, req partitionRequest) (fiber.Map, error)

func mountPartition(ctx context.Context, p ops.PartitionOps, _ partitionRequest) (fiber.Map, error) {
	mountPoint, err := p.Mount(ctx)
	return fiber.Map{"mount_point": mountPoint}, err
}

func unmountPartition(ctx context.Context, p ops.PartitionOps, _ partitionRequest) (fiber.Map, error) {
	return nil, p.Unmount(ctx)
}

func deletePartition(ctx context.Context, p ops.PartitionOps, _ partitionRequest) (fiber.Map, error) {
	return nil, p.Delete(ctx)
}

func formatPartition(ctx context.Context, p ops.PartitionOps, req partitionRequest) (fiber.Map, error) {
	if req.Filesystem == "" {
		return nil, errors.Wrap(ops.ErrUnknownType, "filesystem is required")
	}
	return nil, p.Format(ctx, req.Label, req.Erase, req.Filesystem)
}

func editPartition(ctx context.Context, p ops.PartitionOps, req partitionRequest) (fiber.Map, error) {
	return nil, p.Edit(ctx, req.PartitionType, req.Name, req.Flags)
}

func labelPartition(ctx context.Context, p ops.PartitionOps, req partitionRequest) (fiber.Map, error) {
	return nil, p.SetLabel(ctx, req.Label)
}

func resizePartition(ctx context.Context, p ops.PartitionOps, req partitionRequest) (fiber.Map, error) {
	size, err := bytesize.Parse(req.Size)
	if err != nil || size == 0 {
		return nil, errors.Wrapf(ops.ErrInvalidSize, "%q", req.Size)
	}
	return nil, p.Resize(ctx, size)
}

func checkPartition(ctx context.Context, p ops.PartitionOps, _ partitionRequest) (fiber.Map, error) {
	clean, err := p.Check(ctx)
	return fiber.Map{"clean": clean}, err
}

func repairPartition(ctx context.Context, p ops.PartitionOps, _ partitionRequest) (fiber.Map, error) {
	repaired, err := p.Repair(ctx)
	return fiber.Map{"repaired": repaired}, err
}

func takeOwnership(ctx context.Context, p ops.PartitionOps, req partitionRequest) (fiber.Map, error) {
	return nil, p.TakeOwnership(ctx, req.Recursive)
}

func changePassphrase(ctx context.Context, p ops.PartitionOps, req partitionRequest) (fiber.Map, error) {
	if req.NewPassphrase == "" {
		return nil, ops.ErrEmptyPassphrase
	}
	return nil, p.ChangePassphrase(ctx, req.OldPassphrase, req.NewPassphrase)
}

// partitionAction runs fn against the partition named in the request body
func (s *Server) partitionAction(name string, fn partitionFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req partitionRequest
		if err := c.BodyParser(&req); err != nil || req.Path == "" {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
		}

		ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
		defer cancel()

		var out fiber.Map
		err := s.topology.Mutate(ctx, name, func(ctx context.Context, drives []*topology.Drive) error {
			d, p := topology.FindPartition(drives, req.Path)
			if p == nil {
				return errors.Wrapf(errNotFound, "partition %s", req.Path)
			}
			var err error
			out, err = fn(ctx, ops.ForPartition(s.operator, p, d.PartitionTableType), req)
			return err
		})
		if err != nil {
			return s.fail(c, err)
		}

		if out == nil {
			out = fiber.Map{}
		}
		out["status"] = "ok"
		return c.JSON(out)
	}
}
