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

package cfg

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	if err := Load(nil); err != nil {
		t.Fatalf("Load(nil) failed: %+v", err)
	}

	cfg := Retrieve()

	if cfg.Provision.BaseDirectory != "/home" {
		t.Errorf("Expected Provision.base_directory to be: /home, got: %s", cfg.Provision.BaseDirectory)
	}

	if cfg.Provision.QuotaMegabytes != 1024 {
		t.Errorf("Expected Provision.quota_megabytes to be: 1024, got: %d", cfg.Provision.QuotaMegabytes)
	}

	if cfg.Provision.VolumeName != "volume" {
		t.Errorf("Expected Provision.volume_name to be: volume, got: %s", cfg.Provision.VolumeName)
	}

	if cfg.Provision.Shell != "/usr/sbin/nologin" {
		t.Errorf("Expected Provision.shell to be: /usr/sbin/nologin, got: %s", cfg.Provision.Shell)
	}

	if cfg.Provision.Filesystem != "ext4" {
		t.Errorf("Expected Provision.filesystem to be: ext4, got: %s", cfg.Provision.Filesystem)
	}

	if cfg.Provision.SurfaceDiagnostics {
		t.Errorf("Expected Provision.surface_diagnostics to be: false, got: true")
	}
}

func TestToString(t *testing.T) {
	if err := Load(nil); err != nil {
		t.Fatalf("Load(nil) failed: %+v", err)
	}

	got, err := ToString()
	if err != nil {
		t.Fatalf("ToString() failed: %+v", err)
	}

	for _, want := range []string{"base_directory", "quota_megabytes", "volume_name"} {
		if !strings.Contains(got, want) {
			t.Errorf("ToString() = %q, want it to contain %q", got, want)
		}
	}
}

func TestLoadExtraDefaults(t *testing.T) {
	extra := `
[Provision]
base_directory = /srv/users
quota_megabytes = 512
`
	if err := Load([]byte(extra)); err != nil {
		t.Fatalf("Load(extra) failed: %+v", err)
	}

	// Reload defaults after the test so other tests see the stock config.
	defer func() {
		if err := Load(nil); err != nil {
			t.Fatalf("Load(nil) failed: %+v", err)
		}
	}()

	cfg := Retrieve()
	if cfg.Provision.BaseDirectory != "/srv/users" {
		t.Errorf("Expected Provision.base_directory to be: /srv/users, got: %s", cfg.Provision.BaseDirectory)
	}
	if cfg.Provision.QuotaMegabytes != 512 {
		t.Errorf("Expected Provision.quota_megabytes to be: 512, got: %d", cfg.Provision.QuotaMegabytes)
	}
	// Keys not touched by the override keep their defaults.
	if cfg.Provision.VolumeName != "volume" {
		t.Errorf("Expected Provision.volume_name to be: volume, got: %s", cfg.Provision.VolumeName)
	}
}

func TestInvalidConfig(t *testing.T) {
	invalidConfig := `
[Section
key = value
`

	dataSources = func(extraDefaults []byte) []any {
		return []any{
			[]byte(invalidConfig),
		}
	}

	// After testing set it back to the default one.
	defer func() {
		dataSources = defaultDataSources
	}()

	if err := Load(nil); err == nil {
		t.Errorf("Load(nil) succeeded for invalid configuration, expected error")
	}
}

func TestRetrieveWithoutLoad(t *testing.T) {
	oldInstance := instance
	oldPanicFc := panicFc
	instance = nil

	var panicked bool
	panicFc = func(args ...any) {
		panicked = true
	}

	defer func() {
		instance = oldInstance
		panicFc = oldPanicFc
	}()

	Retrieve()
	if !panicked {
		t.Errorf("Retrieve() without Load() didn't panic, expected panic")
	}
}

func TestDefaultDataSources(t *testing.T) {
	tests := []struct {
		name          string
		wantSources   int
		extraDefaults []byte
	}{
		{
			name:        "empty_extra_defaults",
			wantSources: 1,
		},
		{
			name:          "extra_defaults",
			wantSources:   2,
			extraDefaults: []byte("test_sources"),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sources := dataSources(test.extraDefaults)
			if len(sources) != test.wantSources {
				t.Errorf("defaultDataSources(%s) returned %d sources, want: %d", string(test.extraDefaults), len(sources), test.wantSources)
			}
		})
	}
}
