// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

package keystore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/loganrossus/OpenKSR/pkg/kasp"
	"github.com/loganrossus/OpenKSR/pkg/timeutil"
	"github.com/miekg/dns"
)

// Inventory holds the materialized keys of one zone, sorted ascending
// by key tag. Stable ordering makes every downstream walk
// deterministic across invocations.
type Inventory struct {
	records []*KeyRecord
}

// LoadInventory scans dir for the zone's key file triples. A missing
// directory yields an empty inventory, not an error.
func LoadInventory(dir, zone string) (*Inventory, error) {
	inv := &Inventory{}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return inv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory %s: %w", dir, err)
	}

	prefix := "K" + dns.CanonicalName(zone) + "+"
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, SuffixPublic) || !strings.HasPrefix(name, prefix) {
			continue
		}
		stem := strings.TrimSuffix(name, SuffixPublic)
		rec, err := ReadRecord(dir, stem)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing keys from %s: %w", dir, err)
		}
		inv.records = append(inv.records, rec)
	}
	inv.sort()
	return inv, nil
}

func (inv *Inventory) sort() {
	sort.SliceStable(inv.records, func(i, j int) bool {
		a, b := inv.records[i], inv.records[j]
		if a.KeyTag != b.KeyTag {
			return a.KeyTag < b.KeyTag
		}
		return a.Stem() < b.Stem()
	})
}

// Records returns the keys in key tag order.
func (inv *Inventory) Records() []*KeyRecord {
	return inv.records
}

// Len returns the number of keys.
func (inv *Inventory) Len() int {
	return len(inv.records)
}

// Insert adds a newly generated key, keeping the tag ordering.
func (inv *Inventory) Insert(rec *KeyRecord) {
	inv.records = append(inv.records, rec)
	inv.sort()
}

// Collides reports whether a candidate key with the given algorithm,
// tag and post-revocation tag would clash with any key already in the
// inventory, including after either side's revocation bit flip.
func (inv *Inventory) Collides(alg uint8, tag, revokedTag uint16) bool {
	for _, rec := range inv.records {
		if rec.Algorithm != alg {
			continue
		}
		if rec.KeyTag == tag || rec.KeyTag == revokedTag || rec.RevokedTag() == tag {
			return true
		}
	}
	return false
}

// Match reports whether a record satisfies a policy entry: the
// algorithm is equal and the role pair is identical (a CSK entry
// matches only records with both flags set).
func Match(e kasp.KeyEntry, rec *KeyRecord) bool {
	return e.Alg() == rec.Algorithm &&
		e.Role.IsKSK() == rec.KSK &&
		e.Role.IsZSK() == rec.ZSK
}

// EligibleAt reports whether a record is in its activation window at
// instant t: activate <= t and, when inactive is set, t < inactive.
func EligibleAt(rec *KeyRecord, t timeutil.Instant) bool {
	if rec.Activate > t {
		return false
	}
	if rec.Inactive.IsSet() && t >= rec.Inactive {
		return false
	}
	return true
}

// FindEligible returns the first record matching the entry that is
// eligible at t, in key tag order, or nil.
func (inv *Inventory) FindEligible(e kasp.KeyEntry, t timeutil.Instant) *KeyRecord {
	for _, rec := range inv.records {
		if Match(e, rec) && EligibleAt(rec, t) {
			return rec
		}
	}
	return nil
}
