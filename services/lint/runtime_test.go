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
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// makeArchive builds a .tgz in memory from name/content pairs.
func makeArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for name, content := range files {
		header := &tar.Header{
			Name: name,
			Mode: 0o755,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatalf("write tar header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("write tar body: %v", err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	return buf.Bytes()
}

func archiveServer(t *testing.T, archive []byte, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if _, err := w.Write(archive); err != nil {
			t.Errorf("serve archive: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRuntimeAcquirer_EnsureRuntime_DownloadsAndExtracts(t *testing.T) {
	archive := makeArchive(t, map[string]string{
		"TSQLLint.Console": "#!/bin/sh\nexit 0\n",
		"rules/config":     "default",
	})
	server := archiveServer(t, archive, nil)

	root := t.TempDir()
	acquirer := NewRuntimeAcquirer(root,
		WithReleaseBase(server.URL),
		WithHTTPClient(server.Client()),
	)

	location, err := acquirer.EnsureRuntime(context.Background())
	if err != nil {
		t.Fatalf("EnsureRuntime: %v", err)
	}

	platform, err := ResolvePlatform()
	if err != nil {
		t.Fatalf("ResolvePlatform: %v", err)
	}
	if want := filepath.Join(root, string(platform)); location != want {
		t.Errorf("location = %q, want %q", location, want)
	}

	content, err := os.ReadFile(filepath.Join(location, "rules", "config"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(content) != "default" {
		t.Errorf("extracted content = %q", content)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(location, "TSQLLint.Console"))
		if err != nil {
			t.Fatalf("stat binary: %v", err)
		}
		if info.Mode().Perm()&0o100 == 0 {
			t.Error("binary should be executable after extraction")
		}
	}

	// Archive itself must not linger next to the installation.
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read install root: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tgz") {
			t.Errorf("archive not cleaned up: %s", entry.Name())
		}
	}
}

func TestRuntimeAcquirer_EnsureRuntime_Memoized(t *testing.T) {
	var hits atomic.Int64
	archive := makeArchive(t, map[string]string{"TSQLLint.Console": "bin"})
	server := archiveServer(t, archive, &hits)

	acquirer := NewRuntimeAcquirer(t.TempDir(),
		WithReleaseBase(server.URL),
		WithHTTPClient(server.Client()),
	)

	first, err := acquirer.EnsureRuntime(context.Background())
	if err != nil {
		t.Fatalf("first EnsureRuntime: %v", err)
	}
	second, err := acquirer.EnsureRuntime(context.Background())
	if err != nil {
		t.Fatalf("second EnsureRuntime: %v", err)
	}

	if first != second {
		t.Errorf("locations differ: %q vs %q", first, second)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, want 1", got)
	}
}

func TestRuntimeAcquirer_EnsureRuntime_ExistingInstallSkipsDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("download attempted despite existing installation")
	}))
	t.Cleanup(server.Close)

	root := t.TempDir()
	platform, err := ResolvePlatform()
	if err != nil {
		t.Fatalf("ResolvePlatform: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, string(platform)), 0o755); err != nil {
		t.Fatalf("seed install dir: %v", err)
	}

	acquirer := NewRuntimeAcquirer(root,
		WithReleaseBase(server.URL),
		WithHTTPClient(server.Client()),
	)
	if _, err := acquirer.EnsureRuntime(context.Background()); err != nil {
		t.Fatalf("EnsureRuntime: %v", err)
	}
}

func TestRuntimeAcquirer_EnsureRuntime_ConcurrentCallsCollapse(t *testing.T) {
	var hits atomic.Int64
	archive := makeArchive(t, map[string]string{"TSQLLint.Console": "bin"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		if _, err := w.Write(archive); err != nil {
			t.Errorf("serve archive: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	acquirer := NewRuntimeAcquirer(t.TempDir(),
		WithReleaseBase(server.URL),
		WithHTTPClient(server.Client()),
	)

	const callers = 8
	var wg sync.WaitGroup
	locations := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locations[i], errs[i] = acquirer.EnsureRuntime(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if locations[i] != locations[0] {
			t.Errorf("caller %d location %q differs from %q", i, locations[i], locations[0])
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, want 1", got)
	}
}

func TestRuntimeAcquirer_EnsureRuntime_HTTPErrorCleansUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	root := t.TempDir()
	acquirer := NewRuntimeAcquirer(root,
		WithReleaseBase(server.URL),
		WithHTTPClient(server.Client()),
	)

	_, err := acquirer.EnsureRuntime(context.Background())
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected *DownloadError, got %T", err)
	}
	if dlErr.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", dlErr.Status)
	}

	// No partial archive may survive the failure.
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read install root: %v", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			t.Errorf("partial file left behind: %s", entry.Name())
		}
	}
}

func TestRuntimeAcquirer_EnsureRuntime_RetryAfterFailure(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	archive := makeArchive(t, map[string]string{"TSQLLint.Console": "bin"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		if _, err := w.Write(archive); err != nil {
			t.Errorf("serve archive: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	acquirer := NewRuntimeAcquirer(t.TempDir(),
		WithReleaseBase(server.URL),
		WithHTTPClient(server.Client()),
	)

	if _, err := acquirer.EnsureRuntime(context.Background()); !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}

	fail.Store(false)
	if _, err := acquirer.EnsureRuntime(context.Background()); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

// makeTruncatedArchive builds a gzip-valid .tgz whose tar stream cuts
// off partway through its second entry.
func makeTruncatedArchive(t *testing.T) []byte {
	t.Helper()

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	if err := tw.WriteHeader(&tar.Header{Name: "TSQLLint.Console", Mode: 0o755, Size: 3}); err != nil {
		t.Fatalf("write tar header: %v", err)
	}
	if _, err := tw.Write([]byte("bin")); err != nil {
		t.Fatalf("write tar body: %v", err)
	}
	if err := tw.Flush(); err != nil {
		t.Fatalf("flush tar entry: %v", err)
	}
	intact := tarBuf.Len()
	if err := tw.WriteHeader(&tar.Header{Name: "rules/config", Mode: 0o644, Size: 4096}); err != nil {
		t.Fatalf("write tar header: %v", err)
	}
	if _, err := tw.Write(make([]byte, 4096)); err != nil {
		t.Fatalf("write tar body: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}

	// Keep the first entry and the second header, drop most of the
	// second body.
	truncated := tarBuf.Bytes()[:intact+512+16]

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(truncated); err != nil {
		t.Fatalf("gzip truncated tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	return buf.Bytes()
}

func TestRuntimeAcquirer_EnsureRuntime_FailedExtractionLeavesNoResidue(t *testing.T) {
	broken := makeTruncatedArchive(t)
	good := makeArchive(t, map[string]string{"TSQLLint.Console": "#!/bin/sh\nexit 0\n"})

	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := good
		if hits.Add(1) == 1 {
			body = broken
		}
		if _, err := w.Write(body); err != nil {
			t.Errorf("serve archive: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	root := t.TempDir()
	acquirer := NewRuntimeAcquirer(root,
		WithReleaseBase(server.URL),
		WithHTTPClient(server.Client()),
	)

	if _, err := acquirer.EnsureRuntime(context.Background()); err == nil {
		t.Fatal("expected extraction failure for truncated archive")
	}

	// A half-extracted tree must not be mistaken for an install.
	platform, err := ResolvePlatform()
	if err != nil {
		t.Fatalf("ResolvePlatform: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, string(platform))); !os.IsNotExist(err) {
		t.Fatalf("install dir exists after failed extraction (stat err = %v)", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read install root: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		t.Fatalf("install root not clean after failure: %v", names)
	}

	// The next call must re-download and install cleanly.
	location, err := acquirer.EnsureRuntime(context.Background())
	if err != nil {
		t.Fatalf("retry after failed extraction: %v", err)
	}
	if _, err := os.Stat(filepath.Join(location, "TSQLLint.Console")); err != nil {
		t.Errorf("binary missing after retried install: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want a second download", got)
	}
}

func TestRuntimeAcquirer_EnsureRuntime_NilContext(t *testing.T) {
	acquirer := NewRuntimeAcquirer(t.TempDir())
	_, err := acquirer.EnsureRuntime(nil) //nolint:staticcheck
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExtractArchive_RejectsTraversal(t *testing.T) {
	archive := makeArchive(t, map[string]string{
		"../escape": "malicious",
	})

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.tgz")
	if err := os.WriteFile(archivePath, archive, 0o600); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	err := extractArchive(archivePath, filepath.Join(dir, "target"))
	if err == nil {
		t.Fatal("expected traversal rejection")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "escape")); statErr == nil {
		t.Error("traversal entry was written outside target")
	}
}
