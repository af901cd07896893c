// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

package kasp

import (
	"fmt"
	"strconv"

	"github.com/miekg/dns"
	"gopkg.in/yaml.v3"
)

// Role describes which signing role a policy key entry plays. A CSK
// plays both roles; a role-less key is not representable.
type Role uint8

const (
	// RoleKSK is a key-signing key.
	RoleKSK Role = iota + 1
	// RoleZSK is a zone-signing key.
	RoleZSK
	// RoleCSK is a combined signing key, both KSK and ZSK.
	RoleCSK
)

// IsKSK reports whether the role includes key signing.
func (r Role) IsKSK() bool {
	return r == RoleKSK || r == RoleCSK
}

// IsZSK reports whether the role includes zone signing.
func (r Role) IsZSK() bool {
	return r == RoleZSK || r == RoleCSK
}

func (r Role) String() string {
	switch r {
	case RoleKSK:
		return "ksk"
	case RoleZSK:
		return "zsk"
	case RoleCSK:
		return "csk"
	}
	return "unknown"
}

// UnmarshalYAML parses "ksk", "zsk" or "csk".
func (r *Role) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch s {
	case "ksk":
		*r = RoleKSK
	case "zsk":
		*r = RoleZSK
	case "csk":
		*r = RoleCSK
	default:
		return fmt.Errorf("unknown key role %q (expected ksk, zsk or csk)", s)
	}
	return nil
}

// KeyEntry is one key line of a policy: the role, algorithm, size and
// lifetime of the keys the policy wants, plus an optional reference to
// a named keystore. Entry order in the config is preserved end-to-end.
type KeyEntry struct {
	Role      Role     `yaml:"role"`
	Algorithm string   `yaml:"algorithm"`
	Size      int      `yaml:"size"`
	Lifetime  Duration `yaml:"lifetime"`
	KeyStore  string   `yaml:"key-store"`

	// alg is the resolved DNSSEC algorithm number, set during
	// policy validation.
	alg uint8
}

// Alg returns the resolved DNSSEC algorithm number.
func (e KeyEntry) Alg() uint8 {
	return e.alg
}

// NewKeyEntry builds a validated key entry outside the config file
// path.
func NewKeyEntry(role Role, alg uint8, size int, lifetime Duration) KeyEntry {
	return KeyEntry{
		Role:      role,
		Algorithm: AlgorithmName(alg),
		Size:      size,
		Lifetime:  lifetime,
		alg:       alg,
	}
}

// Timing holds the zone-wide safety margins and TTLs a policy carries,
// all in seconds.
type Timing struct {
	Propagation   Duration
	PublishSafety Duration
	RetireSafety  Duration
	SignDelay     Duration
	DNSKEYTTL     Duration
	MaxZoneTTL    Duration
}

// KeyStoreConfig names a key material backend. Backend "directory"
// keeps keys as files in the key directory; "bolt" additionally
// records key material in an embedded bolt database.
type KeyStoreConfig struct {
	Name    string `yaml:"name"`
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// PolicyConfig is the YAML shape of one policy in the config file.
type PolicyConfig struct {
	Name             string     `yaml:"name"`
	Keys             []KeyEntry `yaml:"keys"`
	PropagationDelay Duration   `yaml:"propagation-delay"`
	PublishSafety    Duration   `yaml:"publish-safety"`
	RetireSafety     Duration   `yaml:"retire-safety"`
	SignDelay        Duration   `yaml:"sign-delay"`
	DNSKEYTTL        Duration   `yaml:"dnskey-ttl"`
	MaxZoneTTL       Duration   `yaml:"max-zone-ttl"`
}

// Config is the root of the policy configuration file.
type Config struct {
	KeyStores []KeyStoreConfig `yaml:"key-stores"`
	Policies  []PolicyConfig   `yaml:"policies"`
}

// Policy is a validated, immutable view over one named policy, bound
// to a zone and a key directory.
type Policy struct {
	Name   string
	Zone   string // canonical owner name
	Class  uint16
	KeyDir string

	keys   []KeyEntry
	timing Timing
	stores map[string]KeyStoreConfig
}

// Keys returns the policy's key entries in config order.
func (p *Policy) Keys() []KeyEntry {
	return p.keys
}

// Timing returns the zone-wide timing parameters.
func (p *Policy) Timing() Timing {
	return p.timing
}

// Store resolves a named keystore reference.
func (p *Policy) Store(name string) (KeyStoreConfig, bool) {
	cfg, ok := p.stores[name]
	return cfg, ok
}

// algorithmNumbers maps config algorithm names to DNSSEC algorithm
// numbers. NSEC3RSASHA1 is accepted as an alias for the miekg/dns
// spelling.
var algorithmNumbers = map[string]uint8{
	"RSASHA1":            dns.RSASHA1,
	"NSEC3RSASHA1":       dns.RSASHA1NSEC3SHA1,
	"RSASHA1-NSEC3-SHA1": dns.RSASHA1NSEC3SHA1,
	"RSASHA256":          dns.RSASHA256,
	"RSASHA512":          dns.RSASHA512,
	"ECDSAP256SHA256":    dns.ECDSAP256SHA256,
	"ECDSAP384SHA384":    dns.ECDSAP384SHA384,
	"ED25519":            dns.ED25519,
	"ED448":              dns.ED448,
}

// AlgorithmName renders a DNSSEC algorithm number for diagnostics.
func AlgorithmName(alg uint8) string {
	if s, ok := dns.AlgorithmToString[alg]; ok {
		return s
	}
	return strconv.Itoa(int(alg))
}
