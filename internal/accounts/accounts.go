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

// Package accounts creates and inspects OS-level user accounts by driving the
// system's account management utilities (useradd, userdel, getent).
package accounts

import (
	"fmt"
)

// Account represents a committed OS-level user account. Values are only
// constructed after the external user-creation call succeeded.
type Account struct {
	// Username is the account name.
	Username string
	// BaseDirectory is the directory the home directory was created under.
	BaseDirectory string
	// HomeDirectory is the account's home directory, always
	// BaseDirectory + "/" + Username.
	HomeDirectory string
}

// Cause enumerates the documented failure causes of the user-creation
// utility. The mapping follows the useradd exit codes, see the man page:
// https://linux.die.net/man/8/useradd.
type Cause int

const (
	// CauseUnknown is any nonzero exit code without a documented meaning.
	CauseUnknown Cause = iota
	// CausePasswdUpdate is exit code 1, can't update password file.
	CausePasswdUpdate
	// CauseInvalidSyntax is exit code 2, invalid command syntax.
	CauseInvalidSyntax
	// CauseInvalidArgument is exit code 3, invalid argument to option.
	CauseInvalidArgument
	// CauseUIDInUse is exit code 4, UID already in use.
	CauseUIDInUse
	// CauseGroupMissing is exit code 6, specified group doesn't exist.
	CauseGroupMissing
	// CauseUsernameInUse is exit code 9, username already in use.
	CauseUsernameInUse
	// CauseGroupUpdate is exit code 10, can't update group file.
	CauseGroupUpdate
	// CauseHomeDirCreation is exit code 12, can't create home directory.
	CauseHomeDirCreation
	// CauseMailSpool is exit code 13, can't create mail spool.
	CauseMailSpool
	// CauseSELinuxMapping is exit code 14, can't update SELinux user mapping.
	CauseSELinuxMapping
	// CauseSignaled covers a process terminated by a signal, there is no exit
	// code to interpret.
	CauseSignaled
	// CauseSpawnFailure covers the inability to even observe an exit status,
	// i.e. the utility could not be spawned.
	CauseSpawnFailure
)

// String implements fmt.Stringer, returning the human readable description of
// the cause.
func (c Cause) String() string {
	switch c {
	case CausePasswdUpdate:
		return "unable to update password file"
	case CauseInvalidSyntax:
		return "invalid command syntax"
	case CauseInvalidArgument:
		return "invalid argument to option"
	case CauseUIDInUse:
		return "UID already in use"
	case CauseGroupMissing:
		return "the specified group does not exist"
	case CauseUsernameInUse:
		return "username already in use"
	case CauseGroupUpdate:
		return "failed to update group file"
	case CauseHomeDirCreation:
		return "failed to create home directory"
	case CauseMailSpool:
		return "failed to create mail spool"
	case CauseSELinuxMapping:
		return "failed to update SELinux user mapping"
	case CauseSignaled:
		return "process terminated by signal"
	case CauseSpawnFailure:
		return "unable to determine outcome"
	default:
		return "unknown"
	}
}

// CreateError is the error returned when account creation fails. It carries
// the documented failure cause derived from the utility's exit status.
type CreateError struct {
	// Username is the account name the creation was attempted for.
	Username string
	// Cause is the documented failure cause.
	Cause Cause
	// err is the underlying run error, if any.
	err error
}

// Error returns the error message.
func (e *CreateError) Error() string {
	return fmt.Sprintf("failed to create account %q: %s", e.Username, e.Cause)
}

// Unwrap returns the underlying run error.
func (e *CreateError) Unwrap() error {
	return e.err
}
