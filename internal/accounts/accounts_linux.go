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

//go:build linux

package accounts

import (
	"context"
	"fmt"
	"os/user"
	"path"
	"strings"

	"github.com/GoogleCloudPlatform/galog"
	"github.com/SplittyDev/provme/internal/cfg"
	"github.com/SplittyDev/provme/internal/run"
)

const (
	// getentNoSuchKey is the exit code returned by getent when a key is not
	// found in the database.
	//
	// Per documentation, exit code 2: "One or more supplied key could not be
	// found in the database", see the man page:
	//
	// https://man7.org/linux/man-pages/man1/getent.1.html.
	getentNoSuchKey = 2

	// signaledExitCode is what exec.ExitError reports when the process was
	// terminated by a signal instead of exiting on its own.
	signaledExitCode = -1
)

// exitCodeCauses maps useradd exit codes to their documented causes.
var exitCodeCauses = map[int]Cause{
	1:  CausePasswdUpdate,
	2:  CauseInvalidSyntax,
	3:  CauseInvalidArgument,
	4:  CauseUIDInUse,
	6:  CauseGroupMissing,
	9:  CauseUsernameInUse,
	10: CauseGroupUpdate,
	12: CauseHomeDirCreation,
	13: CauseMailSpool,
	14: CauseSELinuxMapping,
}

// classifyRunError maps a run error to the documented failure cause. A
// non-exit error means the utility could not even be spawned.
func classifyRunError(err error) Cause {
	xerr, ok := run.AsExitError(err)
	if !ok {
		return CauseSpawnFailure
	}
	code := xerr.ExitCode()
	if code == signaledExitCode {
		return CauseSignaled
	}
	if cause, ok := exitCodeCauses[code]; ok {
		return cause
	}
	return CauseUnknown
}

// Create creates an account with the given username, its home directory is
// created under baseDirectory. The account gets a non-interactive shell and
// never expires. Not idempotent: creating an existing username fails with the
// username-in-use cause.
func Create(ctx context.Context, username, baseDirectory string) (*Account, error) {
	galog.V(1).Debugf("Creating account %s under %s", username, baseDirectory)

	opts := run.Options{
		OutputType: run.OutputNone,
		Name:       "useradd",
		Args: []string{
			"--base-dir", baseDirectory,
			"--comment", fmt.Sprintf("provme %s", username),
			"--inactive", "-1",
			"--shell", cfg.Retrieve().Provision.Shell,
			"--create-home",
			username,
		},
	}

	if _, err := run.WithContext(ctx, opts); err != nil {
		return nil, &CreateError{Username: username, Cause: classifyRunError(err), err: err}
	}

	res := &Account{
		Username:      username,
		BaseDirectory: baseDirectory,
		HomeDirectory: baseDirectory + "/" + username,
	}

	galog.Infof("User created: %s (%s)", username, res.HomeDirectory)
	return res, nil
}

// Find gets the information of the account, returning user.UnknownUserError
// if the user does not exist on the system or the wrapped run error if the
// user list could not be obtained.
func Find(ctx context.Context, username string) (*Account, error) {
	getent, err := run.WithContext(ctx, run.Options{
		OutputType: run.OutputStdout,
		Name:       "getent",
		Args:       []string{"passwd", username},
	})

	if err != nil {
		// No such key exit code is returned when the user does not exist.
		if err, ok := run.AsExitError(err); ok && err.ExitCode() == getentNoSuchKey {
			return nil, user.UnknownUserError(username)
		}
		return nil, fmt.Errorf("could not get user list: %w", err)
	}

	account, err := parsePasswdEntry(getent.Output, username)
	if err != nil {
		return nil, fmt.Errorf("could not parse user %s: %w", username, err)
	}

	return account, nil
}

// parsePasswdEntry parses /etc/passwd style input for the named user.
func parsePasswdEntry(line string, username string) (*Account, error) {
	line = strings.TrimSpace(strings.TrimSuffix(line, "\n"))
	prefix := username + ":"

	// Validate the correctness of the entry format, it should contain the
	// username followed by a colon as a prefix (i.e. "alice:").
	if !strings.HasPrefix(line, prefix) {
		return nil, fmt.Errorf("invalid passwd entry for %q, expected prefix %q", username, prefix)
	}

	// alice:x:1005:1006::/home/alice:/usr/sbin/nologin
	parts := strings.SplitN(line, ":", 7)
	if len(parts) < 7 {
		return nil, fmt.Errorf("invalid passwd entry for %s", username)
	}

	homeDirectory := parts[5]
	return &Account{
		Username:      parts[0],
		BaseDirectory: path.Dir(homeDirectory),
		HomeDirectory: homeDirectory,
	}, nil
}

// Delete removes the account and its home directory from the OS. Returns the
// wrapped run error if the command failed.
func Delete(ctx context.Context, username string) error {
	galog.V(1).Debugf("Deleting account %s", username)

	opts := run.Options{
		OutputType: run.OutputNone,
		Name:       "userdel",
		Args:       []string{"-r", username},
	}

	if _, err := run.WithContext(ctx, opts); err != nil {
		return fmt.Errorf("failed to delete account %q: %w", username, err)
	}

	galog.V(1).Debugf("Successfully deleted account %s", username)
	return nil
}
