//  Copyright 2025 The provme Authors
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Package cfg is the package responsible for loading and accessing the
// provisioning tool's configuration.
package cfg

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/GoogleCloudPlatform/galog"
	"gopkg.in/ini.v1"
)

var (
	// instance is the single instance of configuration sections, once loaded
	// this package should always return it.
	instance *Sections

	// dataSources is a pointer to a data source loading/defining function, unit
	// tests will want to change this pointer to whatever makes sense to its
	// implementation.
	dataSources = defaultDataSources

	// panicFc is a reference to panic(), it's overridden in unit tests.
	panicFc = panicWrapper

	// cfgMu protects the initialization and retrieval of config instance.
	cfgMu sync.RWMutex
)

const (
	// defaultConfigFile is the path to the config file overriding the built-in
	// defaults.
	defaultConfigFile = `/etc/provme.cfg`

	// defaultConfig is the built-in default configuration.
	defaultConfig = `
[Core]
log_level = 3
log_verbosity = 0
log_file =

[Provision]
base_directory = /home
quota_megabytes = 1024
volume_name = volume
shell = /usr/sbin/nologin
filesystem = ext4
surface_diagnostics = false
`
)

// Sections encapsulates all the configuration sections.
type Sections struct {
	// Core defines the core configuration entries/keys.
	Core *Core `ini:"Core,omitempty"`

	// Provision defines the defaults and commands driving account and volume
	// provisioning.
	Provision *Provision `ini:"Provision,omitempty"`
}

// Core contains the core configuration entries, all configurations not
// tied/specific to a subsystem are defined in here.
type Core struct {
	// LogLevel defines the log level of the tool. The CLI's flag takes
	// precedence over this configuration.
	LogLevel int `ini:"log_level,omitempty"`
	// LogVerbosity defines the log verbosity of the tool. The CLI's flag takes
	// precedence over this configuration.
	LogVerbosity int `ini:"log_verbosity,omitempty"`
	// LogFile defines the log file of the tool.
	LogFile string `ini:"log_file,omitempty"`
}

// Provision contains the configurations of the Provision section.
type Provision struct {
	// BaseDirectory is the directory under which the account's home directory
	// is created when no base directory is passed on the command line.
	BaseDirectory string `ini:"base_directory,omitempty"`
	// QuotaMegabytes is the volume size used when no quota is passed on the
	// command line.
	QuotaMegabytes uint64 `ini:"quota_megabytes,omitempty"`
	// VolumeName is the file name of the backing volume inside the account's
	// home directory.
	VolumeName string `ini:"volume_name,omitempty"`
	// Shell is the login shell assigned to created accounts. The default is a
	// non-interactive shell, web users are not supposed to log in.
	Shell string `ini:"shell,omitempty"`
	// Filesystem is the filesystem type the backing volume is formatted with.
	Filesystem string `ini:"filesystem,omitempty"`
	// SurfaceDiagnostics controls whether the stdout/stderr of the external
	// allocation and formatting utilities is captured and logged. When false
	// the utilities' own diagnostics are discarded.
	SurfaceDiagnostics bool `ini:"surface_diagnostics,omitempty"`
}

// panicWrapper is a wrapper over panic() to make it testable.
func panicWrapper(args ...any) {
	panic(args)
}

func defaultDataSources(extraDefaults []byte) []any {
	var res []any

	if len(extraDefaults) > 0 {
		res = append(res, extraDefaults)
	}

	return append(res, defaultConfigFile)
}

// Load loads default configuration and the configuration from the default
// config file.
func Load(extraDefaults []byte) error {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	opts := ini.LoadOptions{
		Loose:       true,
		Insensitive: true,
	}

	sources := dataSources(extraDefaults)
	galog.V(3).Debugf("Loading configuration from sources: %v", sources)
	cfg, err := ini.LoadSources(opts, []byte(defaultConfig), sources...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %+w", err)
	}

	sections := new(Sections)
	if err := cfg.MapTo(sections); err != nil {
		return fmt.Errorf("failed to map configuration to object: %w", err)
	}

	instance = sections
	return nil
}

// Retrieve returns the configuration's instance previously loaded with Load().
func Retrieve() *Sections {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	if instance == nil {
		panicFc("cfg package was not initialized, Load() should be called in the early initialization code path")
	}
	return instance
}

// ToString returns the configuration's instance previously loaded with Load()
// as a string.
func ToString() (string, error) {
	buffer := new(bytes.Buffer)

	// Marshal the configuration to ini.
	cfg := ini.Empty()
	if err := ini.ReflectFrom(cfg, instance); err != nil {
		return "", fmt.Errorf("failed to reflect configuration to object: %w", err)
	}

	// Write the configuration to a buffer.
	if _, err := cfg.WriteTo(buffer); err != nil {
		return "", fmt.Errorf("failed to write configuration to buffer: %w", err)
	}

	return strings.TrimSpace(buffer.String()), nil
}
