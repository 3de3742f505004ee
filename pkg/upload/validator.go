// Package upload validates image candidates before they are forwarded to the
// generation service. It is shared by the HTTP handlers and the Go client.
package upload

import (
	"errors"
	"fmt"
	"strings"
)

// MiB is one mebibyte.
const MiB = 1 << 20

var (
	// ErrUnsupportedType is returned for types outside AllowedMimeTypes.
	ErrUnsupportedType = errors.New("unsupported image type")
	// ErrTooLarge is returned for images over Limits.MaxBytes.
	ErrTooLarge = errors.New("image exceeds size limit")
)

// AllowedMimeTypes lists the accepted image media types in display order.
var AllowedMimeTypes = []string{
	"image/png",
	"image/jpeg",
	"image/webp",
	"image/heic",
	"image/heif",
}

// Limits bounds a single candidate and the pending set.
type Limits struct {
	MaxBytes   int64
	MaxPending int
}

// DefaultLimits returns the 20 MiB / 3 image limits.
func DefaultLimits() Limits {
	return Limits{MaxBytes: 20 * MiB, MaxPending: 3}
}

// normalize fills zero fields with defaults.
func (l Limits) normalize() Limits {
	def := DefaultLimits()
	if l.MaxBytes <= 0 {
		l.MaxBytes = def.MaxBytes
	}
	if l.MaxPending <= 0 {
		l.MaxPending = def.MaxPending
	}
	return l
}

// Candidate is a file selected or dropped by the user.
type Candidate struct {
	Name     string
	MimeType string
	Size     int64
	Data     []byte
}

// ValidationError describes why a candidate was rejected.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsAllowed reports whether mimeType is one of AllowedMimeTypes. The check is
// an exact match on the declared type.
func IsAllowed(mimeType string) bool {
	for _, allowed := range AllowedMimeTypes {
		if mimeType == allowed {
			return true
		}
	}
	return false
}

// Validate checks a candidate against the limits given that accepted items
// are already pending. It has no side effects.
func Validate(c Candidate, accepted int, limits Limits) error {
	limits = limits.normalize()

	if accepted >= limits.MaxPending {
		return &ValidationError{
			Name:   c.Name,
			Reason: fmt.Sprintf("You can only upload up to %d images.", limits.MaxPending),
		}
	}

	if c.Size > limits.MaxBytes {
		return &ValidationError{
			Name:   c.Name,
			Reason: fmt.Sprintf("%s: File size exceeds %dMB limit", c.Name, limits.MaxBytes/MiB),
		}
	}

	if !IsAllowed(c.MimeType) {
		return &ValidationError{
			Name:   c.Name,
			Reason: fmt.Sprintf("%s: Unsupported image type. Please upload a %s image.", c.Name, describeAllowed()),
		}
	}

	return nil
}

// ValidateImage is the server-side check for a single uploaded image.
func ValidateImage(mimeType string, size int64, limits Limits) error {
	limits = limits.normalize()
	if !IsAllowed(mimeType) {
		return ErrUnsupportedType
	}
	if size > limits.MaxBytes {
		return ErrTooLarge
	}
	return nil
}

// describeAllowed renders "JPEG, PNG, WEBP, HEIC, or HEIF".
func describeAllowed() string {
	names := []string{"JPEG", "PNG", "WEBP", "HEIC", "HEIF"}
	return strings.Join(names[:len(names)-1], ", ") + ", or " + names[len(names)-1]
}
