// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "github.com/cockroachdb/errors"

// package errors
var (
	ErrZeroAddress     = errors.New("device address is zero")
	ErrAddressOverflow = errors.New("device address offset overflows")

	ErrInvalidBufferInfo = errors.New("invalid buffer info")
	ErrOutOfMemory       = errors.New("out of device memory")
	ErrNotHostVisible    = errors.New("memory is not host visible")
	ErrReleased          = errors.New("resource already released")

	ErrAlreadyBuilt          = errors.New("acceleration structure already built")
	ErrNotBuilt              = errors.New("acceleration structure not built")
	ErrBlasIndexOutOfRange   = errors.New("blas index out of range")
	ErrNoGeometry            = errors.New("no geometry given")
	ErrGeometryMismatch      = errors.New("geometry does not match its build ranges")
	ErrUpdateNotAllowed      = errors.New("acceleration structure was not built with update allowed")
	ErrInstanceCountMismatch = errors.New("instance count differs from the built structure")

	ErrTimeout = errors.New("wait timed out")

	ErrUnsupportedLanguage = errors.New("unsupported shader language")
	ErrInvalidShaderCode   = errors.New("invalid spir-v code")
)
