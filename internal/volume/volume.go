//  Copyright 2025 The provme Authors
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Package volume allocates and formats the fixed-size backing file serving as
// an account's quota-limited storage volume. Allocation is done by copying
// zero-filled data with dd, formatting by mkfs with a journaling filesystem.
package volume

import (
	"context"
	"fmt"

	"github.com/GoogleCloudPlatform/galog"
	"github.com/SplittyDev/provme/internal/run"
)

// Volume represents a fully provisioned backing file: allocated with the
// requested size and formatted with a filesystem. A Volume value is only
// constructed once both steps succeeded.
type Volume struct {
	// Name is the logical name of the volume, it's the file name of the
	// backing file.
	Name string
	// Path is the absolute path of the backing file, always inside the owning
	// account's home directory.
	Path string
	// SizeMB is the size of the backing file in megabytes.
	SizeMB uint64
}

// Options represents the volume provisioning options.
type Options struct {
	// Name is the logical volume name, used as the backing file's name inside
	// the home directory.
	Name string
	// SizeMB is the requested size in megabytes.
	SizeMB uint64
	// Filesystem is the filesystem type the backing file is formatted with
	// (i.e. ext4).
	Filesystem string
	// SurfaceDiagnostics controls whether the external utilities' own
	// stdout/stderr is captured and logged. When false the output is
	// discarded and failures are reported through exit status alone.
	SurfaceDiagnostics bool
}

// AllocationError is the error returned when the raw-copy utility failed or
// could not be spawned. The partially written backing file, if any, is left
// in place.
type AllocationError struct {
	// Path is the backing file path the allocation was attempted at.
	Path string
	// err is the underlying run error.
	err error
}

// Error returns the error message.
func (e *AllocationError) Error() string {
	return fmt.Sprintf("failed to allocate volume at %q: %v", e.Path, e.err)
}

// Unwrap returns the underlying run error.
func (e *AllocationError) Unwrap() error {
	return e.err
}

// FormatError is the error returned when the filesystem-formatting utility
// failed or could not be spawned. The allocated backing file is left on disk
// unformatted.
type FormatError struct {
	// Path is the backing file path the formatting was attempted at.
	Path string
	// err is the underlying run error.
	err error
}

// Error returns the error message.
func (e *FormatError) Error() string {
	return fmt.Sprintf("failed to format volume at %q: %v", e.Path, e.err)
}

// Unwrap returns the underlying run error.
func (e *FormatError) Unwrap() error {
	return e.err
}

// Create provisions a volume inside homeDirectory: it first allocates the
// backing file with the requested size, then formats it. Formatting is never
// attempted if allocation failed, and no step cleans up the partial artifacts
// of a failed run - callers are expected to remove them manually.
func Create(ctx context.Context, homeDirectory string, opts Options) (*Volume, error) {
	path := homeDirectory + "/" + opts.Name

	if err := allocate(ctx, path, opts); err != nil {
		return nil, err
	}
	galog.Infof("Space created: %dM (%s)", opts.SizeMB, path)

	if err := format(ctx, path, opts); err != nil {
		return nil, err
	}
	galog.Infof("Space formatted: %s (%s)", opts.Filesystem, path)

	return &Volume{Name: opts.Name, Path: path, SizeMB: opts.SizeMB}, nil
}

// allocate creates the backing file at path by copying opts.SizeMB megabytes
// of zero-filled data from the null source in a single block operation.
func allocate(ctx context.Context, path string, opts Options) error {
	cmdopts := run.Options{
		OutputType: outputType(opts),
		Name:       "dd",
		Args: []string{
			"if=/dev/zero",
			fmt.Sprintf("of=%s", path),
			fmt.Sprintf("bs=%dM", opts.SizeMB),
			"count=1",
		},
	}

	res, err := run.WithContext(ctx, cmdopts)
	if err != nil {
		return &AllocationError{Path: path, err: err}
	}
	logDiagnostics(opts, "dd", res)
	return nil
}

// format initializes a filesystem on the allocated backing file.
func format(ctx context.Context, path string, opts Options) error {
	cmdopts := run.Options{
		OutputType: outputType(opts),
		Name:       fmt.Sprintf("mkfs.%s", opts.Filesystem),
		Args:       []string{path},
	}

	res, err := run.WithContext(ctx, cmdopts)
	if err != nil {
		return &FormatError{Path: path, err: err}
	}
	logDiagnostics(opts, "mkfs", res)
	return nil
}

func outputType(opts Options) run.OutputType {
	if opts.SurfaceDiagnostics {
		return run.OutputCombined
	}
	return run.OutputNone
}

func logDiagnostics(opts Options, utility string, res *run.Result) {
	if !opts.SurfaceDiagnostics || res == nil || res.Output == "" {
		return
	}
	galog.Debugf("%s output: %s", utility, res.Output)
}
