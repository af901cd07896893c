// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

// Package cmd implements CLI commands for openksr.
package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/loganrossus/OpenKSR/pkg/kasp"
	"github.com/loganrossus/OpenKSR/pkg/keystore"
	"github.com/loganrossus/OpenKSR/pkg/ksr"
	"github.com/loganrossus/OpenKSR/pkg/logging"
	"github.com/loganrossus/OpenKSR/pkg/timeutil"
	"github.com/loganrossus/OpenKSR/pkg/version"
	"github.com/miekg/dns"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	policyName string
	startStr   string
	endStr     string
	keyDir     string
	engine     string
	fipsMode   bool
	verbosity  int
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "openksr <command> <zone>",
	Short: "DNSSEC Key Signing Request generator",
	Long: `openksr turns a key and signing policy (KASP) into pregenerated zone
signing keys and Key Signing Requests for an offline KSK holder.

Commands:
  keygen   pregenerate ZSKs covering the interval
  request  create a Key Signing Request (KSR)

Keys are written into the key directory (-K); key filenames and KSR
bundles go to stdout, diagnostics to stderr.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "l", "", "file with the KASP policy configuration")
	pf.StringVarP(&policyName, "policy", "k", "", "name of a policy inside the configuration file")
	pf.StringVarP(&startStr, "start", "i", "", "start date or offset from now (default: now)")
	pf.StringVarP(&endStr, "end", "e", "", "end date or offset from now")
	pf.StringVarP(&keyDir, "key-dir", "K", ".", "directory to read and write keys")
	pf.StringVarP(&engine, "engine", "E", "", "name of a crypto engine to use")
	pf.BoolVarP(&fipsMode, "fips", "F", false, "FIPS mode: reject weak algorithms, raise the RSA minimum")
	pf.IntVarP(&verbosity, "verbose", "v", 0, "verbosity level")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(requestCmd)

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("openksr version %s\n", version.Version))
}

// newRun validates parameters, loads the policy and the inventory and
// assembles a run. Everything here fails before any key is written.
func newRun(cmd *cobra.Command, command, zone string) (*ksr.Run, *bufio.Writer, error) {
	if configFile == "" {
		return nil, nil, fmt.Errorf("%s requires a configuration file", command)
	}
	if policyName == "" {
		return nil, nil, fmt.Errorf("%s requires a dnssec-policy", command)
	}
	if endStr == "" {
		return nil, nil, fmt.Errorf("%s requires an end date", command)
	}
	if _, ok := dns.IsDomainName(zone); !ok {
		return nil, nil, fmt.Errorf("invalid zone name %s", zone)
	}

	now := timeutil.Now()
	start := now
	var err error
	if startStr != "" {
		start, err = timeutil.ParseWhen(startStr, now)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid start date: %w", err)
		}
	}
	end, err := timeutil.ParseWhen(endStr, now)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid end date: %w", err)
	}

	if cmd.Flags().Changed("key-dir") {
		if fi, err := os.Stat(keyDir); err != nil || !fi.IsDir() {
			return nil, nil, fmt.Errorf("cannot open directory %s", keyDir)
		}
	}

	logger, err := logging.NewLogger(logging.Config{Level: logging.LevelFromVerbosity(verbosity)})
	if err != nil {
		return nil, nil, err
	}
	if engine != "" {
		logger.Debug("crypto engine requested", "engine", engine)
	}

	policy, err := kasp.Load(configFile, policyName, zone, keyDir)
	if err != nil {
		return nil, nil, err
	}
	inventory, err := keystore.LoadInventory(keyDir, zone)
	if err != nil {
		return nil, nil, err
	}

	var progress keystore.ProgressFunc
	if verbosity > 0 {
		progress = keystore.Dots(os.Stderr)
	}

	out := bufio.NewWriter(os.Stdout)
	return &ksr.Run{
		Policy:    policy,
		Inventory: inventory,
		Generator: &keystore.Generator{
			Zone:     policy.Zone,
			Policy:   policyName,
			Dir:      keyDir,
			FIPS:     fipsMode,
			Now:      now,
			Timing:   policy.Timing(),
			Progress: progress,
			Log:      logger,
		},
		Start: start,
		End:   end,
		Out:   out,
	}, out, nil
}
