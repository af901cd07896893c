// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

// openksr pregenerates DNSSEC zone signing keys and produces Key
// Signing Requests (KSRs) from a declarative key and signing policy.
package main

import (
	"os"

	"github.com/loganrossus/OpenKSR/cmd/openksr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
