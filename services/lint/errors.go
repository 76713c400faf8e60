// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lint

import (
	"errors"
	"fmt"
)

// Sentinel errors for the lint package.
var (
	// ErrUnsupportedPlatform indicates the host OS/architecture has no
	// tsqllint binary variant.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrDownloadFailed indicates the runtime archive could not be
	// fetched. Partial downloads are cleaned up before this is returned.
	ErrDownloadFailed = errors.New("runtime download failed")

	// ErrExecutionTimeout indicates the binary exceeded its timeout and
	// was killed.
	ErrExecutionTimeout = errors.New("linter execution timed out")

	// ErrSpawnFailed indicates the binary could not be started at all
	// (missing or not executable).
	ErrSpawnFailed = errors.New("linter failed to start")

	// ErrInvalidInput indicates invalid input to a lint function.
	ErrInvalidInput = errors.New("invalid input")
)

// PlatformError carries the raw OS/architecture strings for an
// unsupported host, for diagnostics.
//
// Thread Safety: Immutable after creation.
type PlatformError struct {
	// OS is the raw operating system identifier (runtime.GOOS).
	OS string

	// Arch is the raw architecture identifier (runtime.GOARCH).
	Arch string
}

// Error implements the error interface.
func (e *PlatformError) Error() string {
	return fmt.Sprintf("%v: %s/%s", ErrUnsupportedPlatform, e.OS, e.Arch)
}

// Unwrap returns ErrUnsupportedPlatform for errors.Is support.
func (e *PlatformError) Unwrap() error {
	return ErrUnsupportedPlatform
}

// DownloadError wraps a failed runtime download with context.
//
// Thread Safety: Immutable after creation.
type DownloadError struct {
	// URL is the release URL that was requested.
	URL string

	// Status is the HTTP status code, or 0 on a transport error.
	Status int

	// Detail holds the transport error text when Status is 0.
	Detail string
}

// Error implements the error interface.
func (e *DownloadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%v: %s: status %d", ErrDownloadFailed, e.URL, e.Status)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%v: %s: %s", ErrDownloadFailed, e.URL, e.Detail)
	}
	return fmt.Sprintf("%v: %s", ErrDownloadFailed, e.URL)
}

// Unwrap returns ErrDownloadFailed for errors.Is support.
func (e *DownloadError) Unwrap() error {
	return ErrDownloadFailed
}
