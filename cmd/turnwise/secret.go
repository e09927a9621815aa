// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnwise Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/turnwise-dev/turnwise/internal/secrets"
	twerr "github.com/turnwise-dev/turnwise/pkg/errors"
)

// keyringService is the keyring service name under which turnwise stores
// secrets; keyring://turnwise/<key> references resolve against it.
const keyringService = "turnwise"

// secretStoreFactory is a package-level variable so tests can substitute an
// in-memory store.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets in the OS keyring",
		Long:  "Store provider API keys in the operating system keyring and reference them from config as keyring://turnwise/<name>.",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <name> [value]",
			Short: "Store a secret (reads the value from stdin when omitted)",
			Args:  cobra.RangeArgs(1, 2),
			RunE:  runSecretSet,
		},
		&cobra.Command{
			Use:   "get <name>",
			Short: "Print a stored secret",
			Args:  cobra.ExactArgs(1),
			RunE:  runSecretGet,
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a stored secret",
			Args:  cobra.ExactArgs(1),
			RunE:  runSecretDelete,
		},
	)

	return cmd
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	var value string
	if len(args) == 2 {
		value = args[1]
	} else {
		fmt.Fprint(cmd.OutOrStdout(), "value: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return twerr.Wrap(err, twerr.CodeCLIInputInvalid, "reading secret value")
		}
		value = strings.TrimRight(line, "\r\n")
	}
	if value == "" {
		return twerr.New(twerr.CodeCLIInputInvalid, "secret value must not be empty")
	}

	if err := secretStoreFactory().Set(keyringService, args[0], value); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "stored secret %s (reference it as keyring://%s/%s)\n",
		args[0], keyringService, args[0])
	return nil
}

func runSecretGet(cmd *cobra.Command, args []string) error {
	value, err := secretStoreFactory().Get(keyringService, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	if err := secretStoreFactory().Delete(keyringService, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted secret %s\n", args[0])
	return nil
}
