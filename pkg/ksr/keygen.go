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
)

// Keygen walks the interval for every ZSK-bearing policy entry and
// pregenerates the chain of keys covering it, reusing keys already in
// the inventory when their activation window fits. Each emitted key
// (created or reused) is printed to Out as its file stem.
//
// Entries with a KSK role are skipped; a policy with nothing left to
// schedule is a configuration error.
func (r *Run) Keygen() error {
	planned := false
	for _, entry := range r.Policy.Keys() {
		if entry.Role.IsKSK() {
			// only ZSKs allowed
			continue
		}
		planned = true
		if err := r.planEntry(entry); err != nil {
			return err
		}
	}
	if !planned {
		return fmt.Errorf("policy %q has no zsks", r.Policy.Name)
	}
	return nil
}

// planEntry produces the successive key generations for one entry.
// Inceptions step by the entry lifetime from Start while they stay
// short of End; each generation's active instant continues where the
// previous key retires, so the activation intervals chain without
// overlap. An unlimited lifetime produces exactly one generation.
func (r *Run) planEntry(entry kasp.KeyEntry) error {
	ks, err := keystore.OpenStore(r.Policy, entry)
	if err != nil {
		return err
	}
	defer ks.Close()

	life := entry.Lifetime.Seconds()
	active := r.Start
	inception := r.Start
	for inception < r.End {
		rec := r.Inventory.FindEligible(entry, inception)
		if rec == nil {
			rec, err = r.Generator.Create(ks, r.Inventory, entry, active)
			if err != nil {
				return err
			}
		}
		// The next generation activates when this key goes
		// inactive; an unlimited key leaves the chain open.
		active = rec.Inactive

		fmt.Fprintln(r.Out, rec.Stem())
		r.flush()

		if life == 0 {
			// unlimited lifetime, but not an unlimited loop
			break
		}
		next, ok := inception.Add(life)
		if !ok {
			break
		}
		inception = next
	}
	return nil
}
