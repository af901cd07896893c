// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

// Package kasp loads and validates key-and-signing-policy (KASP)
// configuration files and exposes a read-only policy view.
package kasp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/miekg/dns"
	"gopkg.in/yaml.v3"
)

// Default timing values applied to policies that leave them unset.
const (
	DefaultPropagationDelay = Duration(300)
	DefaultPublishSafety    = Duration(3600)
	DefaultRetireSafety     = Duration(3600)
	DefaultDNSKEYTTL        = Duration(3600)
	DefaultMaxZoneTTL       = Duration(86400)
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// Load reads the configuration file at path and returns the named
// policy bound to zone and keydir. All failures are configuration
// errors and happen before any key I/O.
func Load(path, policy, zone, keydir string) (*Policy, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read policy config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy %q from %q: %w", policy, path, err)
	}
	return cfg.Policy(policy, zone, keydir)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	for i := range cfg.Policies {
		p := &cfg.Policies[i]
		if p.PropagationDelay == 0 {
			p.PropagationDelay = DefaultPropagationDelay
		}
		if p.PublishSafety == 0 {
			p.PublishSafety = DefaultPublishSafety
		}
		if p.RetireSafety == 0 {
			p.RetireSafety = DefaultRetireSafety
		}
		if p.DNSKEYTTL == 0 {
			p.DNSKEYTTL = DefaultDNSKEYTTL
		}
		if p.MaxZoneTTL == 0 {
			p.MaxZoneTTL = DefaultMaxZoneTTL
		}
	}
	for i := range cfg.KeyStores {
		if cfg.KeyStores[i].Backend == "" {
			cfg.KeyStores[i].Backend = "directory"
		}
	}
}

// Policy validates and returns the named policy bound to zone and
// keydir.
func (c *Config) Policy(name, zone, keydir string) (*Policy, error) {
	var pc *PolicyConfig
	for i := range c.Policies {
		if c.Policies[i].Name == name {
			pc = &c.Policies[i]
			break
		}
	}
	if pc == nil {
		return nil, fmt.Errorf("unknown policy %q", name)
	}
	if len(pc.Keys) == 0 {
		return nil, fmt.Errorf("policy %q has no keys configured", name)
	}

	stores := make(map[string]KeyStoreConfig, len(c.KeyStores))
	for _, ks := range c.KeyStores {
		if ks.Name == "" {
			return nil, &ValidationError{Field: "key-stores", Value: ks, Message: "keystore missing a name"}
		}
		switch ks.Backend {
		case "directory":
		case "bolt":
			if ks.Path == "" {
				return nil, &ValidationError{Field: "key-stores." + ks.Name, Value: ks.Path, Message: "bolt keystore requires a path"}
			}
		default:
			return nil, &ValidationError{Field: "key-stores." + ks.Name, Value: ks.Backend, Message: "unknown keystore backend"}
		}
		stores[ks.Name] = ks
	}

	keys := make([]KeyEntry, len(pc.Keys))
	copy(keys, pc.Keys)
	for i := range keys {
		e := &keys[i]
		field := fmt.Sprintf("policies.%s.keys[%d]", name, i)
		if e.Role == 0 {
			return nil, &ValidationError{Field: field, Value: nil, Message: "key entry missing a role"}
		}
		alg, ok := algorithmNumbers[strings.ToUpper(e.Algorithm)]
		if !ok {
			return nil, &ValidationError{Field: field, Value: e.Algorithm, Message: "unknown algorithm"}
		}
		e.alg = alg
		if e.Size < 0 {
			return nil, &ValidationError{Field: field, Value: e.Size, Message: "negative key size"}
		}
		if e.Lifetime < 0 {
			return nil, &ValidationError{Field: field, Value: e.Lifetime, Message: "negative lifetime"}
		}
		if e.KeyStore != "" {
			if _, ok := stores[e.KeyStore]; !ok {
				return nil, &ValidationError{Field: field, Value: e.KeyStore, Message: "reference to undefined keystore"}
			}
		}
	}

	return &Policy{
		Name:   name,
		Zone:   dns.CanonicalName(zone),
		Class:  dns.ClassINET,
		KeyDir: keydir,
		keys:   keys,
		timing: Timing{
			Propagation:   pc.PropagationDelay,
			PublishSafety: pc.PublishSafety,
			RetireSafety:  pc.RetireSafety,
			SignDelay:     pc.SignDelay,
			DNSKEYTTL:     pc.DNSKEYTTL,
			MaxZoneTTL:    pc.MaxZoneTTL,
		},
		stores: stores,
	}, nil
}
