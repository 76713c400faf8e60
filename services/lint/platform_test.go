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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePlatform_SupportedHosts(t *testing.T) {
	tests := []struct {
		goos   string
		goarch string
		want   Platform
	}{
		{"darwin", "amd64", PlatformMacOS},
		{"darwin", "arm64", PlatformMacOS},
		{"linux", "amd64", PlatformLinux},
		{"linux", "arm64", PlatformLinux},
		{"windows", "amd64", PlatformWindowsX64},
		{"windows", "arm64", PlatformWindowsX64},
		{"windows", "386", PlatformWindowsX86},
		{"windows", "arm", PlatformWindowsX86},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, err := resolvePlatform(tt.goos, tt.goarch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolvePlatform_UnsupportedHost(t *testing.T) {
	_, err := resolvePlatform("plan9", "amd64")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedPlatform))

	var perr *PlatformError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "plan9", perr.OS)
	assert.Equal(t, "amd64", perr.Arch)
}

func TestPlatform_ArchiveName(t *testing.T) {
	assert.Equal(t, "osx-x64.tgz", PlatformMacOS.ArchiveName())
	assert.Equal(t, "win-x86.tgz", PlatformWindowsX86.ArchiveName())
}

func TestConsoleBinaryName(t *testing.T) {
	assert.Equal(t, "TSQLLint.Console.exe", consoleBinaryName("windows"))
	assert.Equal(t, "TSQLLint.Console", consoleBinaryName("linux"))
	assert.Equal(t, "TSQLLint.Console", consoleBinaryName("darwin"))
}
