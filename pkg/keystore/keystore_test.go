// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

package keystore

import (
	"context"
	"crypto"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loganrossus/OpenKSR/pkg/kasp"
	"github.com/loganrossus/OpenKSR/pkg/store"
	"github.com/loganrossus/OpenKSR/pkg/timeutil"
	"github.com/miekg/dns"
)

// 2024-01-01T00:00:00Z
const jan2024 = timeutil.Instant(1704067200)

var testTiming = kasp.Timing{
	Propagation:   300,
	PublishSafety: 3600,
	RetireSafety:  3600,
	SignDelay:     0,
	DNSKEYTTL:     3600,
	MaxZoneTTL:    86400,
}

func testGenerator(t *testing.T, dir string) *Generator {
	t.Helper()
	return &Generator{
		Zone:   "example.com.",
		Policy: "default",
		Dir:    dir,
		Now:    jan2024,
		Timing: testTiming,
	}
}

func zskEntry(lifetime kasp.Duration) kasp.KeyEntry {
	return kasp.NewKeyEntry(kasp.RoleZSK, dns.ECDSAP256SHA256, 0, lifetime)
}

func TestKeyRecordStem(t *testing.T) {
	rec := &KeyRecord{Zone: "example.com.", Algorithm: dns.ECDSAP256SHA256, KeyTag: 42}
	if got := rec.Stem(); got != "Kexample.com.+013+00042" {
		t.Errorf("unexpected stem: %s", got)
	}
}

func TestKeyRecordFlags(t *testing.T) {
	tests := []struct {
		name string
		ksk  bool
		zsk  bool
		want uint16
	}{
		{name: "zsk", zsk: true, want: 256},
		{name: "ksk", ksk: true, want: 257},
		{name: "csk", ksk: true, zsk: true, want: 257},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &KeyRecord{KSK: tt.ksk, ZSK: tt.zsk}
			if got := rec.Flags(); got != tt.want {
				t.Errorf("expected flags %d, got %d", tt.want, got)
			}
		})
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	gen := testGenerator(t, dir)
	inv := &Inventory{}

	rec, err := gen.Create(&DirectoryStore{}, inv, zskEntry(30*86400), jan2024)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	loaded, err := ReadRecord(dir, rec.Stem())
	if err != nil {
		t.Fatalf("failed to read key back: %v", err)
	}

	if loaded.Zone != rec.Zone {
		t.Errorf("zone mismatch: %s vs %s", loaded.Zone, rec.Zone)
	}
	if loaded.Algorithm != rec.Algorithm || loaded.KeyTag != rec.KeyTag {
		t.Errorf("identity mismatch: %d/%d vs %d/%d", loaded.Algorithm, loaded.KeyTag, rec.Algorithm, rec.KeyTag)
	}
	if loaded.KSK != rec.KSK || loaded.ZSK != rec.ZSK {
		t.Errorf("role mismatch: %v/%v vs %v/%v", loaded.KSK, loaded.ZSK, rec.KSK, rec.ZSK)
	}
	if loaded.Lifetime != rec.Lifetime {
		t.Errorf("lifetime mismatch: %d vs %d", loaded.Lifetime, rec.Lifetime)
	}
	if loaded.TTL != rec.TTL {
		t.Errorf("ttl mismatch: %d vs %d", loaded.TTL, rec.TTL)
	}
	for _, f := range []struct {
		name string
		a, b timeutil.Instant
	}{
		{"created", loaded.Created, rec.Created},
		{"publish", loaded.Publish, rec.Publish},
		{"activate", loaded.Activate, rec.Activate},
		{"inactive", loaded.Inactive, rec.Inactive},
		{"delete", loaded.Delete, rec.Delete},
	} {
		if f.a != f.b {
			t.Errorf("%s mismatch: %d vs %d", f.name, f.a, f.b)
		}
	}
	if loaded.PublicKey != rec.PublicKey {
		t.Error("public key mismatch after round trip")
	}
}

func TestGeneratorTimingStamps(t *testing.T) {
	dir := t.TempDir()
	gen := testGenerator(t, dir)
	inv := &Inventory{}

	const lifetime = 30 * 86400
	rec, err := gen.Create(&DirectoryStore{}, inv, zskEntry(lifetime), jan2024)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	prepub := int64(3600 + 3600 + 300)
	retire := int64(86400 + 300 + 3600 + 0)

	if rec.Created != jan2024 {
		t.Errorf("expected created %d, got %d", jan2024, rec.Created)
	}
	if rec.Publish != jan2024.SubFloor(prepub) {
		t.Errorf("expected publish %d, got %d", jan2024.SubFloor(prepub), rec.Publish)
	}
	if rec.Activate != jan2024 {
		t.Errorf("expected activate %d, got %d", jan2024, rec.Activate)
	}
	wantInactive := jan2024 + lifetime
	if rec.Inactive != wantInactive {
		t.Errorf("expected inactive %d, got %d", wantInactive, rec.Inactive)
	}
	if rec.Delete != wantInactive+timeutil.Instant(retire) {
		t.Errorf("expected delete %d, got %d", wantInactive+timeutil.Instant(retire), rec.Delete)
	}
	if !rec.ZSK || rec.KSK {
		t.Errorf("expected a pure zsk, got ksk=%v zsk=%v", rec.KSK, rec.ZSK)
	}
}

func TestGeneratorUnlimitedLifetime(t *testing.T) {
	dir := t.TempDir()
	gen := testGenerator(t, dir)
	inv := &Inventory{}

	rec, err := gen.Create(&DirectoryStore{}, inv, zskEntry(0), jan2024)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}
	if rec.Inactive.IsSet() || rec.Delete.IsSet() {
		t.Errorf("expected open-ended key, got inactive=%d delete=%d", rec.Inactive, rec.Delete)
	}
}

func TestValidateEntry(t *testing.T) {
	tests := []struct {
		name     string
		alg      uint8
		size     int
		fips     bool
		want     int
		wantErr  string
	}{
		{name: "ecdsa256 overrides size", alg: dns.ECDSAP256SHA256, size: 1024, want: 256},
		{name: "ecdsa384", alg: dns.ECDSAP384SHA384, want: 384},
		{name: "ed25519", alg: dns.ED25519, want: 256},
		{name: "rsa default size", alg: dns.RSASHA256, size: 0, want: 2048},
		{name: "rsa explicit size", alg: dns.RSASHA512, size: 4096, want: 4096},
		{name: "rsa too small", alg: dns.RSASHA256, size: 512, wantErr: "out of range"},
		{name: "rsa too large", alg: dns.RSASHA256, size: 8192, wantErr: "out of range"},
		{name: "rsa small fips", alg: dns.RSASHA256, size: 1024, fips: true, wantErr: "out of range"},
		{name: "rsasha1", alg: dns.RSASHA1, size: 1024, want: 1024},
		{name: "rsasha1 fips", alg: dns.RSASHA1, fips: true, wantErr: "unsupported algorithm"},
		{name: "nsec3rsasha1 fips", alg: dns.RSASHA1NSEC3SHA1, fips: true, wantErr: "unsupported algorithm"},
		{name: "ed448 unsupported", alg: dns.ED448, wantErr: "unsupported algorithm"},
		{name: "unknown algorithm", alg: 250, wantErr: "unsupported algorithm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &Generator{Zone: "example.com.", FIPS: tt.fips, Timing: testTiming}
			entry := kasp.NewKeyEntry(kasp.RoleZSK, tt.alg, tt.size, 0)
			got, err := gen.ValidateEntry(entry)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected size %d, got %d", tt.want, got)
			}
		})
	}
}

func TestInventoryLoadSorted(t *testing.T) {
	dir := t.TempDir()
	gen := testGenerator(t, dir)
	inv := &Inventory{}

	for i := 0; i < 3; i++ {
		if _, err := gen.Create(&DirectoryStore{}, inv, zskEntry(0), jan2024); err != nil {
			t.Fatalf("failed to create key %d: %v", i, err)
		}
	}

	loaded, err := LoadInventory(dir, "example.com.")
	if err != nil {
		t.Fatalf("failed to load inventory: %v", err)
	}
	if loaded.Len() != 3 {
		t.Fatalf("expected 3 keys, got %d", loaded.Len())
	}
	recs := loaded.Records()
	for i := 1; i < len(recs); i++ {
		if recs[i-1].KeyTag > recs[i].KeyTag {
			t.Errorf("inventory not sorted by key tag: %d before %d", recs[i-1].KeyTag, recs[i].KeyTag)
		}
	}
}

func TestInventoryMissingDirectory(t *testing.T) {
	inv, err := LoadInventory(filepath.Join(t.TempDir(), "no-such-dir"), "example.com.")
	if err != nil {
		t.Fatalf("missing directory should not error: %v", err)
	}
	if inv.Len() != 0 {
		t.Errorf("expected empty inventory, got %d keys", inv.Len())
	}
}

func TestInventoryIgnoresOtherZones(t *testing.T) {
	dir := t.TempDir()
	gen := testGenerator(t, dir)
	inv := &Inventory{}
	if _, err := gen.Create(&DirectoryStore{}, inv, zskEntry(0), jan2024); err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	other := testGenerator(t, dir)
	other.Zone = "other.example.net."
	if _, err := other.Create(&DirectoryStore{}, &Inventory{}, zskEntry(0), jan2024); err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	loaded, err := LoadInventory(dir, "example.com.")
	if err != nil {
		t.Fatalf("failed to load inventory: %v", err)
	}
	if loaded.Len() != 1 {
		t.Fatalf("expected 1 key for example.com., got %d", loaded.Len())
	}
	if loaded.Records()[0].Zone != "example.com." {
		t.Errorf("wrong zone loaded: %s", loaded.Records()[0].Zone)
	}
}

func TestMatchPredicate(t *testing.T) {
	zsk := &KeyRecord{Algorithm: dns.ECDSAP256SHA256, ZSK: true}
	ksk := &KeyRecord{Algorithm: dns.ECDSAP256SHA256, KSK: true}
	csk := &KeyRecord{Algorithm: dns.ECDSAP256SHA256, KSK: true, ZSK: true}
	otherAlg := &KeyRecord{Algorithm: dns.ECDSAP384SHA384, ZSK: true}

	tests := []struct {
		name  string
		entry kasp.KeyEntry
		rec   *KeyRecord
		want  bool
	}{
		{name: "zsk matches zsk", entry: kasp.NewKeyEntry(kasp.RoleZSK, dns.ECDSAP256SHA256, 0, 0), rec: zsk, want: true},
		{name: "zsk rejects ksk", entry: kasp.NewKeyEntry(kasp.RoleZSK, dns.ECDSAP256SHA256, 0, 0), rec: ksk, want: false},
		{name: "zsk rejects csk", entry: kasp.NewKeyEntry(kasp.RoleZSK, dns.ECDSAP256SHA256, 0, 0), rec: csk, want: false},
		{name: "csk matches csk only", entry: kasp.NewKeyEntry(kasp.RoleCSK, dns.ECDSAP256SHA256, 0, 0), rec: csk, want: true},
		{name: "csk rejects zsk", entry: kasp.NewKeyEntry(kasp.RoleCSK, dns.ECDSAP256SHA256, 0, 0), rec: zsk, want: false},
		{name: "algorithm must equal", entry: kasp.NewKeyEntry(kasp.RoleZSK, dns.ECDSAP256SHA256, 0, 0), rec: otherAlg, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(tt.entry, tt.rec); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEligibleAt(t *testing.T) {
	tests := []struct {
		name     string
		activate timeutil.Instant
		inactive timeutil.Instant
		at       timeutil.Instant
		want     bool
	}{
		{name: "inside window", activate: 100, inactive: 200, at: 150, want: true},
		{name: "at activation", activate: 100, inactive: 200, at: 100, want: true},
		{name: "before activation", activate: 100, inactive: 200, at: 99, want: false},
		{name: "at inactive", activate: 100, inactive: 200, at: 200, want: false},
		{name: "open ended", activate: 100, at: 1 << 30, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &KeyRecord{Activate: tt.activate, Inactive: tt.inactive}
			if got := EligibleAt(rec, tt.at); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// scriptedStore feeds predetermined candidates to the generator so
// collision handling can be exercised deterministically.
type scriptedStore struct {
	keys  []*dns.DNSKEY
	privs []crypto.PrivateKey
	calls int
}

func (s *scriptedStore) Generate(zone, policy string, alg uint8, size int) (*dns.DNSKEY, crypto.PrivateKey, error) {
	if s.calls >= len(s.keys) {
		return nil, nil, fmt.Errorf("scripted store exhausted")
	}
	k, p := s.keys[s.calls], s.privs[s.calls]
	s.calls++
	return k, p, nil
}

func (s *scriptedStore) ToFiles(rec *KeyRecord, priv crypto.PrivateKey, dir string) error {
	return WriteFiles(rec, priv, dir)
}

func (s *scriptedStore) Close() error { return nil }

func TestGeneratorCollisionRetry(t *testing.T) {
	dir := t.TempDir()
	gen := testGenerator(t, dir)
	inv := &Inventory{}

	// Materialize one key normally; it occupies its tag and stem.
	existing, err := gen.Create(&DirectoryStore{}, inv, zskEntry(0), jan2024)
	if err != nil {
		t.Fatalf("failed to create existing key: %v", err)
	}

	// Script a second run whose first candidate collides with it.
	colliding, collidingPriv, err := (&DirectoryStore{}).Generate("example.com.", "default", dns.ECDSAP256SHA256, 256)
	if err != nil {
		t.Fatalf("failed to generate candidate: %v", err)
	}
	colliding.PublicKey = existing.PublicKey // same rdata, same tag
	fresh, freshPriv, err := (&DirectoryStore{}).Generate("example.com.", "default", dns.ECDSAP256SHA256, 256)
	if err != nil {
		t.Fatalf("failed to generate candidate: %v", err)
	}
	if fresh.KeyTag() == existing.KeyTag {
		t.Skip("fresh candidate happens to share the tag")
	}

	scripted := &scriptedStore{
		keys:  []*dns.DNSKEY{colliding, fresh},
		privs: []crypto.PrivateKey{collidingPriv, freshPriv},
	}
	rec, err := gen.Create(scripted, inv, zskEntry(0), jan2024)
	if err != nil {
		t.Fatalf("failed to create key after collision: %v", err)
	}
	if scripted.calls != 2 {
		t.Errorf("expected 2 generation attempts, got %d", scripted.calls)
	}
	if rec.KeyTag == existing.KeyTag {
		t.Error("collision was not avoided")
	}

	// Exactly one new file triple appeared.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) != 6 {
		t.Errorf("expected 6 files (2 triples), got %d", len(entries))
	}
}

func TestCollidesOnRevokedTag(t *testing.T) {
	dir := t.TempDir()
	gen := testGenerator(t, dir)
	inv := &Inventory{}
	rec, err := gen.Create(&DirectoryStore{}, inv, zskEntry(0), jan2024)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	if !inv.Collides(rec.Algorithm, rec.KeyTag, rec.RevokedTag()) {
		t.Error("expected plain tag collision")
	}
	if !inv.Collides(rec.Algorithm, rec.RevokedTag(), 0) {
		t.Error("expected collision against the existing key's revoked tag")
	}
	if inv.Collides(rec.Algorithm+1, rec.KeyTag, rec.RevokedTag()) {
		t.Error("different algorithm should not collide")
	}
}

func TestBoltStoreRecordsKeys(t *testing.T) {
	dir := t.TempDir()
	gen := testGenerator(t, dir)
	inv := &Inventory{}

	kv, err := store.NewBboltStore(filepath.Join(dir, "vault.db"))
	if err != nil {
		t.Fatalf("failed to open bolt store: %v", err)
	}
	bs := &BoltStore{kv: kv}
	defer bs.Close()

	rec, err := gen.Create(bs, inv, zskEntry(0), jan2024)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	// The triple is on disk and the key is recorded in the db.
	if _, err := os.Stat(filepath.Join(dir, rec.Stem()+SuffixPrivate)); err != nil {
		t.Errorf("expected private file: %v", err)
	}
	if _, err := kv.Get(context.Background(), store.PrefixKeys+rec.Stem()); err != nil {
		t.Errorf("expected key recorded in bolt store: %v", err)
	}
}
