// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

// Package ksr implements the two KSR operations: pregenerating the
// ZSK chain for an interval (keygen) and emitting the DNSKEY bundle
// timeline (request).
package ksr

import (
	"io"

	"github.com/loganrossus/OpenKSR/pkg/kasp"
	"github.com/loganrossus/OpenKSR/pkg/keystore"
	"github.com/loganrossus/OpenKSR/pkg/timeutil"
)

// Run carries everything one keygen or request invocation needs. The
// interval is [Start, End]; Start defaults to Now at the CLI.
type Run struct {
	Policy    *kasp.Policy
	Inventory *keystore.Inventory
	Generator *keystore.Generator

	Start timeutil.Instant
	End   timeutil.Instant

	// Out receives the structured output: key file stems for keygen,
	// bundles for request. Diagnostics never go here.
	Out io.Writer
}

// flush pushes buffered output through so consumers can stream
// results line by line and bundle by bundle.
func (r *Run) flush() {
	if f, ok := r.Out.(interface{ Flush() error }); ok {
		f.Flush()
	}
}
