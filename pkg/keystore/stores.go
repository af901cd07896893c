// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

package keystore

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loganrossus/OpenKSR/pkg/kasp"
	"github.com/loganrossus/OpenKSR/pkg/store"
	"github.com/miekg/dns"
)

// KeyStore is the capability surface of a key material backend: it
// produces fresh key pairs and persists finished records.
type KeyStore interface {
	// Generate produces a candidate key pair for the zone. The
	// caller owns the candidate; it is not persisted.
	Generate(zone, policy string, alg uint8, size int) (*dns.DNSKEY, crypto.PrivateKey, error)

	// ToFiles persists the record's file triple under dir.
	ToFiles(rec *KeyRecord, priv crypto.PrivateKey, dir string) error

	// Close releases backend resources.
	Close() error
}

// OpenStore builds the backend for a policy key entry. An entry
// without a keystore reference uses the local directory backend.
func OpenStore(p *kasp.Policy, e kasp.KeyEntry) (KeyStore, error) {
	if e.KeyStore == "" {
		return &DirectoryStore{}, nil
	}
	cfg, ok := p.Store(e.KeyStore)
	if !ok {
		return nil, fmt.Errorf("reference to undefined keystore %q", e.KeyStore)
	}
	switch cfg.Backend {
	case "directory":
		return &DirectoryStore{}, nil
	case "bolt":
		kv, err := store.NewBboltStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open keystore %q: %w", cfg.Name, err)
		}
		return &BoltStore{kv: kv}, nil
	}
	return nil, fmt.Errorf("keystore %q has unknown backend %q", cfg.Name, cfg.Backend)
}

// DirectoryStore keeps keys as plain file triples in the key
// directory. It is the default backend.
type DirectoryStore struct{}

// Generate produces a fresh zone key pair.
func (s *DirectoryStore) Generate(zone, policy string, alg uint8, size int) (*dns.DNSKEY, crypto.PrivateKey, error) {
	return generate(zone, alg, size)
}

// ToFiles writes the file triple.
func (s *DirectoryStore) ToFiles(rec *KeyRecord, priv crypto.PrivateKey, dir string) error {
	return WriteFiles(rec, priv, dir)
}

// Close is a no-op.
func (s *DirectoryStore) Close() error {
	return nil
}

// BoltStore mirrors every persisted key into an embedded bolt
// database in addition to the file triple, so a named keystore holds
// an authoritative copy of its key material.
type BoltStore struct {
	kv store.Store
}

// boltKey is the JSON value recorded per key.
type boltKey struct {
	Zone       string    `json:"zone"`
	Algorithm  uint8     `json:"algorithm"`
	KeyTag     uint16    `json:"key_tag"`
	PublicKey  string    `json:"public_key"`
	PrivateKey string    `json:"private_key"`
	CreatedAt  time.Time `json:"created_at"`
}

// Generate produces a fresh zone key pair.
func (s *BoltStore) Generate(zone, policy string, alg uint8, size int) (*dns.DNSKEY, crypto.PrivateKey, error) {
	return generate(zone, alg, size)
}

// ToFiles writes the file triple and records the key in the database.
func (s *BoltStore) ToFiles(rec *KeyRecord, priv crypto.PrivateKey, dir string) error {
	if err := WriteFiles(rec, priv, dir); err != nil {
		return err
	}
	data, err := json.Marshal(boltKey{
		Zone:       rec.Zone,
		Algorithm:  rec.Algorithm,
		KeyTag:     rec.KeyTag,
		PublicKey:  rec.PublicKey,
		PrivateKey: rec.DNSKEY().PrivateKeyString(priv),
		CreatedAt:  rec.Created.Time(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}
	if err := s.kv.Set(context.Background(), store.PrefixKeys+rec.Stem(), data); err != nil {
		return fmt.Errorf("failed to record key in keystore: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.kv.Close()
}

// generate is the shared crypto primitive: build the DNSKEY shell and
// let miekg/dns produce the key material.
func generate(zone string, alg uint8, size int) (*dns.DNSKEY, crypto.PrivateKey, error) {
	dnskey := &dns.DNSKEY{
		Hdr: dns.RR_Header{
			Name:   dns.CanonicalName(zone),
			Rrtype: dns.TypeDNSKEY,
			Class:  dns.ClassINET,
			Ttl:    3600,
		},
		Flags:     dns.ZONE,
		Protocol:  3,
		Algorithm: alg,
	}
	priv, err := dnskey.Generate(size)
	if err != nil {
		return nil, nil, err
	}
	return dnskey, priv, nil
}
