// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

package cmd

import (
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen <zone>",
	Short: "Pregenerate ZSKs",
	Long: `Pregenerate the zone signing keys a zone will need over the interval.

For every ZSK entry in the policy, keygen produces the chain of keys
covering [start, end], reusing keys already present in the key
directory when their activation window fits. One filename per emitted
key is printed on stdout.

Examples:
  openksr keygen -l kasp.yaml -k default -e +1y example.com
  openksr keygen -l kasp.yaml -k default -i 2024-01-01 -e 2024-04-01 -K /etc/keys example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, out, err := newRun(cmd, "keygen", args[0])
		if err != nil {
			return err
		}
		defer out.Flush()
		return run.Keygen()
	},
}
