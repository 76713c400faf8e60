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
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DefaultToolVersion is the tsqllint release the acquirer downloads
// when no override is configured.
const DefaultToolVersion = "1.15.0"

// defaultReleaseBase is the upstream release download location.
const defaultReleaseBase = "https://github.com/tsqllint/tsqllint/releases/download"

// =============================================================================
// RUNTIME ACQUIRER
// =============================================================================

// RuntimeAcquirer ensures a versioned tsqllint installation exists
// locally, downloading and unpacking it on first use.
//
// Description:
//
//	The resolved location is memoized for the process lifetime: at
//	most one network round trip happens per process, and concurrent
//	first-time callers collapse into a single in-flight download.
//	Once resolved the location is never revalidated; deleting the
//	installation externally requires a restart (documented
//	limitation, not a bug).
//
//	No timeout wraps the download; a first run on a slow link is an
//	unbounded operation. No retry is attempted internally — failed
//	downloads clean up their partial state, so re-invocation is safe
//	and idempotent.
//
// Thread Safety: Safe for concurrent use.
type RuntimeAcquirer struct {
	installRoot string
	version     string
	releaseBase string
	client      *http.Client

	group singleflight.Group

	mu       sync.Mutex
	location string
}

// RuntimeOption configures the RuntimeAcquirer.
type RuntimeOption func(*RuntimeAcquirer)

// WithToolVersion overrides the tsqllint release version.
func WithToolVersion(version string) RuntimeOption {
	return func(a *RuntimeAcquirer) {
		a.version = version
	}
}

// WithReleaseBase overrides the release download base URL.
func WithReleaseBase(base string) RuntimeOption {
	return func(a *RuntimeAcquirer) {
		a.releaseBase = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient sets a custom HTTP client for downloads.
func WithHTTPClient(client *http.Client) RuntimeOption {
	return func(a *RuntimeAcquirer) {
		a.client = client
	}
}

// NewRuntimeAcquirer creates an acquirer rooted at installRoot.
//
// Inputs:
//
//	installRoot - Directory holding per-platform installations
//	opts - Optional configuration options
//
// Outputs:
//
//	*RuntimeAcquirer - The configured acquirer
func NewRuntimeAcquirer(installRoot string, opts ...RuntimeOption) *RuntimeAcquirer {
	a := &RuntimeAcquirer{
		installRoot: installRoot,
		version:     DefaultToolVersion,
		releaseBase: defaultReleaseBase,
		client:      http.DefaultClient,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// EnsureRuntime returns the installation directory for the host
// platform, acquiring it on first call.
//
// Description:
//
//	Fast path returns the memoized location. Otherwise resolves the
//	platform, checks <installRoot>/<platform-tag>, and if absent
//	downloads and unpacks the versioned release archive. Concurrent
//	callers before the first resolution share one download.
//
// Inputs:
//
//	ctx - Context for cancellation of the download
//
// Outputs:
//
//	string - Absolute installation directory path
//	error - Non-nil if resolution, download, or extraction failed
//
// Errors:
//
//	ErrUnsupportedPlatform - Host has no binary variant
//	ErrDownloadFailed - Archive fetch failed; partial state removed
//
// Thread Safety: Safe for concurrent use.
func (a *RuntimeAcquirer) EnsureRuntime(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("%w: ctx must not be nil", ErrInvalidInput)
	}

	a.mu.Lock()
	if a.location != "" {
		location := a.location
		a.mu.Unlock()
		return location, nil
	}
	a.mu.Unlock()

	v, err, _ := a.group.Do("runtime", func() (any, error) {
		return a.resolve(ctx)
	})
	if err != nil {
		return "", err
	}

	location := v.(string)
	a.mu.Lock()
	a.location = location
	a.mu.Unlock()
	return location, nil
}

// resolve performs the slow path: existence check, download, extract.
func (a *RuntimeAcquirer) resolve(ctx context.Context) (string, error) {
	platform, err := ResolvePlatform()
	if err != nil {
		return "", err
	}

	target := filepath.Join(a.installRoot, string(platform))
	if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
		slog.Debug("tsqllint runtime already installed",
			slog.String("path", target),
		)
		return target, nil
	}

	if err := os.MkdirAll(a.installRoot, 0o755); err != nil {
		return "", fmt.Errorf("create install root: %w", err)
	}

	archivePath, err := a.download(ctx, platform)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove runtime archive",
				slog.String("path", archivePath),
				slog.Any("error", err),
			)
		}
	}()

	// Unpack beside the target and rename into place. A failed
	// extraction must never leave a half-populated install that the
	// existence check above would accept on the next call.
	staging, err := os.MkdirTemp(a.installRoot, "tsqllint-unpack-*")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	if err := extractArchive(archivePath, staging); err != nil {
		removePartialInstall(staging)
		return "", fmt.Errorf("extract runtime archive: %w", err)
	}

	if err := os.Rename(staging, target); err != nil {
		removePartialInstall(staging)
		return "", fmt.Errorf("install runtime: %w", err)
	}

	slog.Info("tsqllint runtime installed",
		slog.String("version", a.version),
		slog.String("platform", string(platform)),
		slog.String("path", target),
	)
	return target, nil
}

// download streams the release archive to a temporary file under the
// install root and returns its path.
func (a *RuntimeAcquirer) download(ctx context.Context, platform Platform) (string, error) {
	url := fmt.Sprintf("%s/v%s/%s", a.releaseBase, a.version, platform.ArchiveName())
	slog.Info("Downloading tsqllint runtime", slog.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		recordDownload(ctx, false)
		return "", &DownloadError{URL: url, Detail: err.Error()}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close download body", slog.Any("error", err))
		}
	}()

	tmp, err := os.CreateTemp(a.installRoot, "tsqllint-*.tgz")
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	tmpPath := tmp.Name()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		closeAndRemovePartial(tmp, tmpPath)
		recordDownload(ctx, false)
		return "", &DownloadError{URL: url, Status: resp.StatusCode}
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		closeAndRemovePartial(tmp, tmpPath)
		recordDownload(ctx, false)
		return "", &DownloadError{URL: url, Detail: err.Error()}
	}

	if err := tmp.Close(); err != nil {
		closeAndRemovePartial(nil, tmpPath)
		recordDownload(ctx, false)
		return "", fmt.Errorf("finish archive write: %w", err)
	}

	recordDownload(ctx, true)
	return tmpPath, nil
}

// closeAndRemovePartial cleans up a partial download. Best effort:
// removal failure is logged, never allowed to mask the original error.
func closeAndRemovePartial(f *os.File, path string) {
	if f != nil {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close partial archive", slog.Any("error", err))
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove partial archive",
			slog.String("path", path),
			slog.Any("error", err),
		)
	}
}

// removePartialInstall discards an abandoned staging directory. Best
// effort: removal failure is logged, never allowed to mask the
// original error.
func removePartialInstall(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("failed to remove partial extraction",
			slog.String("path", dir),
			slog.Any("error", err),
		)
	}
}

// =============================================================================
// ARCHIVE EXTRACTION
// =============================================================================

// extractArchive unpacks a .tgz archive into targetDir.
func extractArchive(archivePath, targetDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close archive", slog.Any("error", err))
		}
	}()

	uncompressed, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gzip.NewReader failed: %w", err)
	}
	defer func() {
		if err := uncompressed.Close(); err != nil {
			slog.Warn("failed to close gzip reader", slog.Any("error", err))
		}
	}()

	tarReader := tar.NewReader(uncompressed)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := extractEntry(header, tarReader, targetDir); err != nil {
			return err
		}
	}
	return nil
}

// extractEntry writes one tar entry under targetDir, rejecting paths
// that would escape it.
func extractEntry(header *tar.Header, reader io.Reader, targetDir string) error {
	targetPath := filepath.Join(targetDir, filepath.FromSlash(header.Name))
	if !strings.HasPrefix(filepath.Clean(targetPath), filepath.Clean(targetDir)) {
		return fmt.Errorf("invalid file path: '%s'", header.Name)
	}

	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(targetPath, 0o755)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return err
		}
		outFile, err := os.Create(targetPath)
		if err != nil {
			return err
		}
		if _, err := io.Copy(outFile, reader); err != nil {
			if closeErr := outFile.Close(); closeErr != nil {
				slog.Warn("failed to close file after copy error",
					slog.String("path", targetPath),
					slog.Any("error", closeErr),
				)
			}
			return err
		}
		if err := outFile.Close(); err != nil {
			return err
		}
		return os.Chmod(targetPath, os.FileMode(header.Mode))
	default:
		return nil
	}
}
