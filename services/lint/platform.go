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

import "runtime"

// =============================================================================
// PLATFORM
// =============================================================================

// Platform identifies one of the four supported tsqllint binary
// variants. The values match the upstream release artifact names and
// are used both for the download URL suffix and the on-disk cache
// directory.
type Platform string

const (
	// PlatformMacOS is the 64-bit macOS variant.
	PlatformMacOS Platform = "osx-x64"

	// PlatformLinux is the 64-bit Linux variant.
	PlatformLinux Platform = "linux-x64"

	// PlatformWindowsX86 is the 32-bit Windows variant.
	PlatformWindowsX86 Platform = "win-x86"

	// PlatformWindowsX64 is the 64-bit Windows variant.
	PlatformWindowsX64 Platform = "win-x64"
)

// ArchiveName returns the release archive filename for the platform.
func (p Platform) ArchiveName() string {
	return string(p) + ".tgz"
}

// ResolvePlatform maps the host OS and architecture to a supported
// binary variant.
//
// Description:
//
//	Pure function of runtime.GOOS and runtime.GOARCH. Cheap and
//	deterministic, so callers resolve fresh each time rather than
//	caching the result.
//
// Outputs:
//
//	Platform - The resolved variant
//	error - Non-nil if the host has no variant
//
// Errors:
//
//	ErrUnsupportedPlatform - No tsqllint binary exists for this host;
//	the error carries the raw OS/arch strings.
func ResolvePlatform() (Platform, error) {
	return resolvePlatform(runtime.GOOS, runtime.GOARCH)
}

// resolvePlatform is the testable core of ResolvePlatform.
func resolvePlatform(goos, goarch string) (Platform, error) {
	switch goos {
	case "darwin":
		return PlatformMacOS, nil
	case "linux":
		return PlatformLinux, nil
	case "windows":
		if is32Bit(goarch) {
			return PlatformWindowsX86, nil
		}
		return PlatformWindowsX64, nil
	default:
		return "", &PlatformError{OS: goos, Arch: goarch}
	}
}

func is32Bit(goarch string) bool {
	return goarch == "386" || goarch == "arm"
}

// consoleBinaryName returns the executable filename inside an unpacked
// runtime directory.
func consoleBinaryName(goos string) string {
	if goos == "windows" {
		return "TSQLLint.Console.exe"
	}
	return "TSQLLint.Console"
}
