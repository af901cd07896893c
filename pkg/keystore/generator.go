// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

package keystore

import (
	"crypto"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/loganrossus/OpenKSR/pkg/kasp"
	"github.com/loganrossus/OpenKSR/pkg/timeutil"
	"github.com/miekg/dns"
)

// RSA key size limits. The minimum rises to 2048 bits in FIPS mode;
// size 0 in a policy entry selects the default.
const (
	MinRSABits     = 1024
	MinRSABitsFIPS = 2048
	MaxRSABits     = 4096
	DefaultRSABits = 2048
)

// Progress stages reported during key generation.
const (
	ProgressGenerating = iota
	ProgressGenerated
	ProgressPersisted
)

// ProgressFunc is an optional listener for generation progress. The
// default is silent.
type ProgressFunc func(stage int)

// Dots returns a listener that renders progress the classic way:
// a dot while generating, '+' when key material is ready, '*' when
// the key hit the disk.
func Dots(w io.Writer) ProgressFunc {
	return func(stage int) {
		c := byte('*')
		switch stage {
		case ProgressGenerating:
			c = '.'
		case ProgressGenerated:
			c = '+'
		case ProgressPersisted:
			c = '*'
		}
		w.Write([]byte{c})
	}
}

// Generator produces collision-free keys for one zone, stamped with
// policy timing metadata and persisted through a KeyStore backend.
type Generator struct {
	Zone     string // canonical owner name
	Policy   string
	Dir      string
	FIPS     bool
	Now      timeutil.Instant
	Timing   kasp.Timing
	Progress ProgressFunc
	Log      *slog.Logger
}

// ValidateEntry checks the entry's algorithm and size against the
// generator's constraints and returns the effective key size.
// Elliptic- and Edwards-curve algorithms have fixed sizes that
// override the policy; RSA sizes are range-checked.
func (g *Generator) ValidateEntry(e kasp.KeyEntry) (int, error) {
	algstr := kasp.AlgorithmName(e.Alg())
	switch e.Alg() {
	case dns.RSASHA1, dns.RSASHA1NSEC3SHA1:
		if g.FIPS {
			// verify-only in FIPS mode
			return 0, fmt.Errorf("unsupported algorithm: %s", algstr)
		}
		return g.rsaSize(e.Size)
	case dns.RSASHA256, dns.RSASHA512:
		return g.rsaSize(e.Size)
	case dns.ECDSAP256SHA256:
		return 256, nil
	case dns.ECDSAP384SHA384:
		return 384, nil
	case dns.ED25519:
		return 256, nil
	default:
		// ED448 lands here too: no supported implementation.
		return 0, fmt.Errorf("unsupported algorithm: %s", algstr)
	}
}

func (g *Generator) rsaSize(size int) (int, error) {
	if size == 0 {
		size = DefaultRSABits
	}
	min := MinRSABits
	if g.FIPS {
		min = MinRSABitsFIPS
	}
	if size < min || size > MaxRSABits {
		return 0, fmt.Errorf("RSA key size %d out of range", size)
	}
	return size, nil
}

// Create generates a fresh key for the policy entry, retrying until
// the candidate collides with nothing in the inventory or the key
// directory, stamps its timing metadata relative to the active
// instant, persists it through ks and inserts it into the inventory.
func (g *Generator) Create(ks KeyStore, inv *Inventory, e kasp.KeyEntry, active timeutil.Instant) (*KeyRecord, error) {
	size, err := g.ValidateEntry(e)
	if err != nil {
		return nil, err
	}

	var rec *KeyRecord
	var priv crypto.PrivateKey
	for {
		g.progress(ProgressGenerating)
		dnskey, candidate, err := ks.Generate(g.Zone, g.Policy, e.Alg(), size)
		if err != nil {
			return nil, fmt.Errorf("failed to generate key %s/%s: %w", g.Zone, kasp.AlgorithmName(e.Alg()), err)
		}
		g.progress(ProgressGenerated)

		rec = &KeyRecord{
			Zone:      g.Zone,
			Algorithm: e.Alg(),
			Size:      size,
			KSK:       false,
			ZSK:       true,
			KeyTag:    dnskey.KeyTag(),
			PublicKey: dnskey.PublicKey,
		}
		if !g.collides(inv, rec) {
			priv = candidate
			break
		}
		// Do not overwrite an existing key.
		if g.Log != nil {
			g.Log.Info("key already exists, or might collide with another key upon revokation; generating a new key",
				"stem", rec.Stem())
		}
	}

	prepub := g.Timing.DNSKEYTTL.Seconds() + g.Timing.PublishSafety.Seconds() + g.Timing.Propagation.Seconds()
	rec.TTL = uint32(g.Timing.DNSKEYTTL)
	rec.Lifetime = e.Lifetime.Seconds()
	rec.Created = g.Now
	rec.Publish = active.SubFloor(prepub)
	rec.Activate = active
	if e.Lifetime > 0 {
		inactive, ok := active.Add(e.Lifetime.Seconds())
		if !ok {
			return nil, fmt.Errorf("key inactive time out of range")
		}
		retire := g.Timing.MaxZoneTTL.Seconds() + g.Timing.Propagation.Seconds() +
			g.Timing.RetireSafety.Seconds() + g.Timing.SignDelay.Seconds()
		del, ok := inactive.Add(retire)
		if !ok {
			return nil, fmt.Errorf("key delete time out of range")
		}
		rec.Inactive = inactive
		rec.Delete = del
	}

	if err := ks.ToFiles(rec, priv, g.Dir); err != nil {
		return nil, fmt.Errorf("failed to write key %s: %w", rec.Stem(), err)
	}
	g.progress(ProgressPersisted)
	inv.Insert(rec)
	return rec, nil
}

// collides checks the candidate against the inventory and against any
// stray files already occupying the stem in the key directory.
func (g *Generator) collides(inv *Inventory, rec *KeyRecord) bool {
	if inv.Collides(rec.Algorithm, rec.KeyTag, rec.RevokedTag()) {
		return true
	}
	for _, suffix := range []string{SuffixPublic, SuffixPrivate, SuffixState} {
		if _, err := os.Stat(filepath.Join(g.Dir, rec.Stem()+suffix)); err == nil {
			return true
		}
	}
	return false
}

func (g *Generator) progress(stage int) {
	if g.Progress != nil {
		g.Progress(stage)
	}
}
