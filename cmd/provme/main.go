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

// Package main is the implementation of the provme CLI. It provisions a web
// user account: an OS-level user with a locked-down shell plus a fixed-size,
// formatted backing file serving as the user's quota-limited storage volume.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/GoogleCloudPlatform/galog"
	"github.com/SplittyDev/provme/internal/cfg"
	"github.com/SplittyDev/provme/internal/logger"
	"github.com/SplittyDev/provme/internal/provision"
	"github.com/spf13/cobra"
)

const (
	// galogShutdownTimeout is the period of time we should wait for galog to
	// shutdown.
	galogShutdownTimeout = time.Second
)

// options groups the command line flag values.
type options struct {
	username string
	base     string
	quota    uint64
	cleanup  bool
	surface  bool
}

// newRootCommand generates the provme root command.
func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "provme",
		Short: "Provision a web user account.",
		Long: "Provision a web user account: creates an OS user with a " +
			"non-interactive shell and allocates a fixed-size, formatted backing " +
			"file as the user's storage volume.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return provisionWebUser(cmd, opts)
		},
	}

	root.Flags().StringVarP(&opts.username, "username", "u", "", "account name to create")
	root.Flags().StringVarP(&opts.base, "base", "b", "", "base directory the home directory is created under")
	root.Flags().Uint64VarP(&opts.quota, "quota", "q", 0, "volume size in megabytes")
	root.Flags().BoolVar(&opts.cleanup, "cleanup", false, "remove the created account if a later stage fails")
	root.Flags().BoolVar(&opts.surface, "surface-diagnostics", false, "log the output of the allocation and formatting utilities")
	root.MarkFlagRequired("username")

	return root
}

// provisionWebUser resolves the request and runs the provisioning pipeline.
func provisionWebUser(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()

	if opts.surface {
		cfg.Retrieve().Provision.SurfaceDiagnostics = true
	}

	req, err := provision.Resolve(opts.username, opts.base, opts.quota)
	if err != nil {
		return err
	}

	p := &provision.Provisioner{CleanupOnFailure: opts.cleanup}
	res, err := p.Provision(ctx, req)
	if err != nil {
		return err
	}

	cmd.Println(res.Report())
	return nil
}

func main() {
	ctx := context.Background()

	if err := cfg.Load(nil); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logOpts := logger.Options{
		Ident:       filepath.Base(os.Args[0]),
		LogToStderr: true,
		Level:       cfg.Retrieve().Core.LogLevel,
		Verbosity:   cfg.Retrieve().Core.LogVerbosity,
		LogFile:     cfg.Retrieve().Core.LogFile,
	}

	if err := logger.Init(ctx, logOpts); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer galog.Shutdown(galogShutdownTimeout)

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		galog.Fatalf("Failed to execute: %v", err)
	}
}
