// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

package cmd

import (
	"github.com/spf13/cobra"
)

var requestCmd = &cobra.Command{
	Use:   "request <zone>",
	Short: "Create a Key Signing Request (KSR)",
	Long: `Create a Key Signing Request over the interval.

The KSR is a time-ordered sequence of bundles, one per instant at
which the zone's DNSKEY RRset changes, each listing the DNSKEY
records visible at that instant across all policy entries. The KSR is
written to stdout for hand-off to the KSK holder.

Examples:
  openksr request -l kasp.yaml -k default -e +90d example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, out, err := newRun(cmd, "request", args[0])
		if err != nil {
			return err
		}
		defer out.Flush()
		return run.Request()
	},
}
