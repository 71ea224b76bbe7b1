package ops

import (
	"github.com/pkg/errors"

	"github.com/CristiGvl/picoDisks/internal/devsvc"
	"github.com/CristiGvl/picoDisks/internal/parttype"
)

var (
	ErrInvalidSize        = errors.New("invalid partition size")
	ErrUnknownType        = errors.New("unknown partition type")
	ErrEmptyPassphrase    = errors.New("passphrase is empty")
	ErrPassphraseMismatch = errors.New("passphrases do not match")
)

// CreatePartitionInfo is a draft for a new partition. It is filled in by
// the user, consumed by one create call and then discarded.
type CreatePartitionInfo struct {
	Name    string `json:"name"`
	Size    uint64 `json:"size"`
	MaxSize uint64 `json:"max_size"`
	Offset  uint64 `json:"offset"`
	Erase   bool   `json:"erase"`
	// SelectedType indexes parttype.CommonTypes
	SelectedType      int    `json:"selected_type"`
	PasswordProtected bool   `json:"password_protected"`
	Password          string `json:"password,omitempty"`
	ConfirmedPassword string `json:"confirmed_password,omitempty"`
}

// Validate reports why the draft cannot be submitted yet
func (c CreatePartitionInfo) Validate() error {
	if c.Size == 0 {
		return ErrInvalidSize
	}
	if c.MaxSize > 0 && c.Size > c.MaxSize {
		return errors.Wrapf(ErrInvalidSize, "%d bytes exceeds the %d available", c.Size, c.MaxSize)
	}
	if c.SelectedType < 0 || c.SelectedType >= len(parttype.CommonTypes) {
		return errors.Wrapf(ErrUnknownType, "index %d", c.SelectedType)
	}
	if c.PasswordProtected {
		if c.Password == "" {
			return ErrEmptyPassphrase
		}
		if c.Password != c.ConfirmedPassword {
			return ErrPassphraseMismatch
		}
	}
	return nil
}

// Type returns the selected creatable type
func (c CreatePartitionInfo) Type() (parttype.Creatable, error) {
	if c.SelectedType < 0 || c.SelectedType >= len(parttype.CommonTypes) {
		return parttype.Creatable{}, errors.Wrapf(ErrUnknownType, "index %d", c.SelectedType)
	}
	return parttype.CommonTypes[c.SelectedType], nil
}

// Request turns a valid draft into a create request for a table of the
// given type. The partition type code follows the table format, the
// filesystem comes from the selected entry.
func (c CreatePartitionInfo) Request(tableType string) (devsvc.CreateRequest, error) {
	if err := c.Validate(); err != nil {
		return devsvc.CreateRequest{}, err
	}
	t, err := c.Type()
	if err != nil {
		return devsvc.CreateRequest{}, err
	}

	req := devsvc.CreateRequest{
		Offset: c.Offset,
		Size:   c.Size,
		Type:   t.TypeFor(tableType),
		Name:   c.Name,
		Format: devsvc.FormatOptions{
			Type:  t.Filesystem,
			Label: c.Name,
			Erase: c.Erase,
		},
	}
	if c.PasswordProtected {
		req.Format.Passphrase = c.Password
	}
	return req, nil
}
