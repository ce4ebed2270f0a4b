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

// Package provision sequences the provisioning pipeline: resolve the request,
// create the OS account, then allocate and format its backing volume. Control
// flows strictly forward, the first failing stage aborts the run. Earlier
// stages are not compensated unless the caller opted into cleanup.
package provision

import (
	"context"
	"errors"
	"fmt"
	"os/user"

	"github.com/GoogleCloudPlatform/galog"
	"github.com/SplittyDev/provme/internal/accounts"
	"github.com/SplittyDev/provme/internal/cfg"
	"github.com/SplittyDev/provme/internal/volume"
)

// ErrMissingUsername is the error returned when no username was provided.
var ErrMissingUsername = errors.New("username must not be empty")

// Request is a fully resolved provisioning request. Immutable once
// constructed by Resolve.
type Request struct {
	// Username is the account name to create.
	Username string
	// BaseDirectory is the directory the account's home directory is created
	// under.
	BaseDirectory string
	// QuotaMegabytes is the size of the account's backing volume.
	QuotaMegabytes uint64
}

// Result is the terminal success value of a provisioning run.
type Result struct {
	// Account is the created OS account.
	Account *accounts.Account
	// Volume is the provisioned backing volume.
	Volume *volume.Volume
}

// Report returns the human readable confirmation record of a successful run.
func (r *Result) Report() string {
	return fmt.Sprintf("User %s, Volume %s, Size %d", r.Account.Username, r.Volume.Name, r.Volume.SizeMB)
}

// Resolve produces a fully resolved Request from raw configuration. An unset
// base directory resolves to the configured base directory root (/home by
// default) - the home directory always becomes base + "/" + username. An
// unset (zero) quota resolves to the configured default (1024 megabytes).
// Resolve has no side effects.
func Resolve(username, baseDirectory string, quotaMegabytes uint64) (*Request, error) {
	if username == "" {
		return nil, ErrMissingUsername
	}

	defaults := cfg.Retrieve().Provision

	if baseDirectory == "" {
		baseDirectory = defaults.BaseDirectory
	}

	if quotaMegabytes == 0 {
		quotaMegabytes = defaults.QuotaMegabytes
	}

	return &Request{
		Username:       username,
		BaseDirectory:  baseDirectory,
		QuotaMegabytes: quotaMegabytes,
	}, nil
}

// cleanupFc is a compensating action registered after a committed side
// effect, invoked only on failure and only when cleanup was requested.
type cleanupFc func(ctx context.Context) error

// Provisioner runs the provisioning pipeline.
type Provisioner struct {
	// CleanupOnFailure enables compensating actions: a failure after account
	// creation removes the created account (and its home directory, covering
	// the allocated backing file). When false - the default - partial
	// artifacts are left in place and must be removed manually.
	CleanupOnFailure bool
}

// Provision runs the pipeline for the given request. It fails fast: the first
// error is returned and later stages are never attempted.
func (p *Provisioner) Provision(ctx context.Context, req *Request) (*Result, error) {
	var cleanups []cleanupFc

	fail := func(err error) error {
		if !p.CleanupOnFailure {
			return err
		}
		for i := len(cleanups) - 1; i >= 0; i-- {
			if cerr := cleanups[i](ctx); cerr != nil {
				galog.Errorf("Cleanup after failed provisioning failed: %v", cerr)
			}
		}
		return err
	}

	if err := p.checkUsernameFree(ctx, req.Username); err != nil {
		return nil, err
	}

	account, err := accounts.Create(ctx, req.Username, req.BaseDirectory)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, func(ctx context.Context) error {
		return accounts.Delete(ctx, account.Username)
	})

	provisionCfg := cfg.Retrieve().Provision
	vol, err := volume.Create(ctx, account.HomeDirectory, volume.Options{
		Name:               provisionCfg.VolumeName,
		SizeMB:             req.QuotaMegabytes,
		Filesystem:         provisionCfg.Filesystem,
		SurfaceDiagnostics: provisionCfg.SurfaceDiagnostics,
	})
	if err != nil {
		return nil, fail(err)
	}

	return &Result{Account: account, Volume: vol}, nil
}

// checkUsernameFree fails fast with the username-in-use cause if the account
// already exists. The lookup is advisory: if it can't be performed at all the
// pipeline proceeds and relies on the user-creation utility's own collision
// detection.
func (p *Provisioner) checkUsernameFree(ctx context.Context, username string) error {
	existing, err := accounts.Find(ctx, username)
	if err != nil {
		var uerr user.UnknownUserError
		if !errors.As(err, &uerr) {
			galog.V(1).Debugf("Account lookup for %s failed, proceeding: %v", username, err)
		}
		return nil
	}
	if existing != nil {
		return &accounts.CreateError{Username: username, Cause: accounts.CauseUsernameInUse}
	}
	return nil
}
