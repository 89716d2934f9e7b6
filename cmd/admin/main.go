// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Command admin is a one-shot operator CLI for generating the two pieces
// of long-term server key material this deployment needs before it can
// serve its first request: the token-sealing secret key and the OPAQUE
// server setup.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MKhiriev/cachou/internal/pake"
	"github.com/MKhiriev/cachou/internal/sealedbox"
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Generate server key material for cachou",
}

var genkeyCmd = &cobra.Command{
	Use:   "genkey [path]",
	Short: "Generate the session-token sealing key and write it to path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := sealedbox.GenerateKey()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		if err := sealedbox.SaveKey(args[0], key); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote secret key to %s\n", args[0])
		return nil
	},
}

var gensetupCmd = &cobra.Command{
	Use:   "gensetup [path]",
	Short: "Generate the OPAQUE server setup and write it to path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setup, err := pake.NewSetup()
		if err != nil {
			return fmt.Errorf("generate opaque setup: %w", err)
		}
		if err := pake.SaveSetup(args[0], setup); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote opaque setup to %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(genkeyCmd, gensetupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
