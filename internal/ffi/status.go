// Package ffi is the pure-Go half of the C library boundary. It maps errors
// to status codes, keeps the last error message of each calling thread,
// tracks buffers handed to the caller, and runs library operations with
// panic protection. The cgo exports in cmd/liblegacybridge are thin
// wrappers around it.
package ffi

import "github.com/FocuswithJustin/LegacyBridge/core/errors"

// Status codes returned across the boundary.
const (
	StatusOK               = 0
	StatusNullPointer      = -1
	StatusInvalidEncoding  = -2
	StatusConversionFailed = -3
	StatusAllocationFailed = -4
)

// StatusInvalid is returned by document validation when the document has
// structural errors.
const StatusInvalid = 1

// Version is the library version reported to hosts.
const (
	Version      = "1.0.0"
	VersionMajor = 1
	VersionMinor = 0
	VersionPatch = 0
)

// StatusFor maps an error to a status code. Encoding errors are
// StatusInvalidEncoding, allocation errors StatusAllocationFailed, and
// every other error StatusConversionFailed.
func StatusFor(err error) int {
	if err == nil {
		return StatusOK
	}
	switch {
	case errors.Is(err, ErrNullPointer):
		return StatusNullPointer
	case errors.Is(err, errors.ErrEncoding), errors.Is(err, ErrInvalidUTF8):
		return StatusInvalidEncoding
	case errors.Is(err, errors.ErrAllocation):
		return StatusAllocationFailed
	}
	return StatusConversionFailed
}

// Boundary errors that do not come from a conversion.
var (
	ErrNullPointer = errors.NewValidation("argument", "null pointer")
	ErrInvalidUTF8 = errors.NewValidation("argument", "string is not valid UTF-8")
)
