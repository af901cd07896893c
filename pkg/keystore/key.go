// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

// Package keystore manages materialized DNSSEC keys: the on-disk file
// triples, the sorted zone inventory, and collision-free generation of
// new keys against that inventory.
package keystore

import (
	"fmt"

	"github.com/loganrossus/OpenKSR/pkg/timeutil"
	"github.com/miekg/dns"
)

// KeyRecord is one materialized key for a zone. Timing fields use the
// zero Instant as "unset".
type KeyRecord struct {
	Zone      string // canonical owner name
	Algorithm uint8
	Size      int
	KSK       bool
	ZSK       bool
	KeyTag    uint16
	PublicKey string // base64, as it appears in the DNSKEY rdata
	TTL       uint32
	Lifetime  int64 // seconds; 0 = unlimited

	Created  timeutil.Instant
	Publish  timeutil.Instant
	Activate timeutil.Instant
	Inactive timeutil.Instant
	Delete   timeutil.Instant
}

// Stem is the canonical file stem shared by the key's three files:
// K<zone>+<alg3>+<keytag5>.
func (k *KeyRecord) Stem() string {
	return fmt.Sprintf("K%s+%03d+%05d", k.Zone, k.Algorithm, k.KeyTag)
}

// Flags returns the DNSKEY flags field implied by the role flags.
func (k *KeyRecord) Flags() uint16 {
	flags := uint16(dns.ZONE)
	if k.KSK {
		flags |= dns.SEP
	}
	return flags
}

// Role renders the role pair for diagnostics: zsk, ksk or csk.
func (k *KeyRecord) Role() string {
	switch {
	case k.KSK && k.ZSK:
		return "csk"
	case k.KSK:
		return "ksk"
	default:
		return "zsk"
	}
}

// DNSKEY builds the DNSKEY resource record for this key.
func (k *KeyRecord) DNSKEY() *dns.DNSKEY {
	return &dns.DNSKEY{
		Hdr: dns.RR_Header{
			Name:   k.Zone,
			Rrtype: dns.TypeDNSKEY,
			Class:  dns.ClassINET,
			Ttl:    k.TTL,
		},
		Flags:     k.Flags(),
		Protocol:  3,
		Algorithm: k.Algorithm,
		PublicKey: k.PublicKey,
	}
}

// RevokedTag is the key tag the key would carry after the revocation
// bit flip. Collision checks must consider it alongside the plain tag.
func (k *KeyRecord) RevokedTag() uint16 {
	rr := k.DNSKEY()
	rr.Flags |= dns.REVOKE
	return rr.KeyTag()
}
