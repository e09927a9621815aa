// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/turnwise-dev/turnwise/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a commented default config to the standard location",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, _ []string) error {
	log := newLogger(cmd)

	path, err := config.DefaultConfigPath()
	if err != nil {
		return err
	}

	if written := config.Bootstrap(path, log); written != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", written)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "config already exists at %s\n", path)
	}
	return nil
}
