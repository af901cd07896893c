// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

package ksr

import (
	"fmt"

	"github.com/loganrossus/OpenKSR/pkg/kasp"
	"github.com/loganrossus/OpenKSR/pkg/keystore"
	"github.com/loganrossus/OpenKSR/pkg/timeutil"
	"github.com/miekg/dns"
)

// Request walks the interval one bundle at a time and emits the
// DNSKEY RRset visible at each change point, across all policy
// entries including KSKs. Bundle boundaries are the publication and
// withdrawal instants of matching keys; membership is the activation
// window. Every policy entry must have at least one eligible key at
// every bundle instant.
func (r *Run) Request() error {
	ttl := uint32(r.Policy.Timing().DNSKEYTTL)
	end := uint64(r.End)

	inception := r.Start
	for uint64(inception) <= end {
		fmt.Fprintf(r.Out, ";; KSR %s - bundle %s (%s)\n",
			r.Policy.Zone, inception.Compact(), inception.Ctime())

		// Sentinel one past the interval; any real change point
		// found below replaces it.
		next := end + 1
		for _, entry := range r.Policy.Keys() {
			n, err := r.emitEntry(entry, inception, next, ttl)
			if err != nil {
				return err
			}
			next = n
		}
		r.flush()

		if next > end {
			break
		}
		inception = timeutil.Instant(next)
	}
	return nil
}

// emitEntry prints the DNSKEY records of the entry's eligible keys at
// the inception instant and narrows next to the earliest publication
// or withdrawal event of a matching key after inception.
func (r *Run) emitEntry(entry kasp.KeyEntry, inception timeutil.Instant, next uint64, ttl uint32) (uint64, error) {
	class := dns.ClassToString[r.Policy.Class]
	found := false

	for _, rec := range r.Inventory.Records() {
		if !keystore.Match(entry, rec) {
			continue
		}
		// Determine the next bundle.
		if rec.Publish.IsSet() && rec.Publish > inception && uint64(rec.Publish) < next {
			next = uint64(rec.Publish)
		}
		if rec.Delete.IsSet() && rec.Delete > inception && uint64(rec.Delete) < next {
			next = uint64(rec.Delete)
		}
		if !keystore.EligibleAt(rec, inception) {
			continue
		}
		found = true
		fmt.Fprintf(r.Out, "%s %d %s DNSKEY %d %d %d %s\n",
			rec.Zone, ttl, class, rec.Flags(), 3, rec.Algorithm, rec.PublicKey)
	}

	if !found {
		return next, fmt.Errorf("no %s/%s %s key pair found for bundle %s",
			r.Policy.Zone, kasp.AlgorithmName(entry.Alg()), entry.Role, inception.Ctime())
	}
	return next, nil
}
