// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

package keystore

import (
	"crypto"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loganrossus/OpenKSR/pkg/timeutil"
	"github.com/miekg/dns"
	"gopkg.in/yaml.v3"
)

// File suffixes of the per-key triple.
const (
	SuffixPublic  = ".key"
	SuffixPrivate = ".private"
	SuffixState   = ".state"
)

// stateFile is the colon-separated metadata format of the .state file.
// Comment lines (";") are stripped before parsing; what remains is
// valid YAML.
type stateFile struct {
	Algorithm uint8  `yaml:"Algorithm"`
	Length    int    `yaml:"Length"`
	Lifetime  int64  `yaml:"Lifetime"`
	KSK       string `yaml:"KSK"`
	ZSK       string `yaml:"ZSK"`
	TTL       uint32 `yaml:"TTL"`
	Generated string `yaml:"Generated"`
	Published string `yaml:"Published"`
	Active    string `yaml:"Active"`
	Retired   string `yaml:"Retired"`
	Removed   string `yaml:"Removed"`
}

// WriteFiles persists the key as its three sibling files under dir.
// Partial writes are removed on failure so a failed key leaves no
// artifacts behind.
func WriteFiles(rec *KeyRecord, priv crypto.PrivateKey, dir string) error {
	stem := filepath.Join(dir, rec.Stem())
	written := make([]string, 0, 3)
	fail := func(err error) error {
		for _, f := range written {
			os.Remove(f)
		}
		return err
	}

	privFile := stem + SuffixPrivate
	if err := os.WriteFile(privFile, []byte(rec.DNSKEY().PrivateKeyString(priv)), 0600); err != nil {
		return fail(fmt.Errorf("failed to write %s: %w", privFile, err))
	}
	written = append(written, privFile)

	pubFile := stem + SuffixPublic
	if err := os.WriteFile(pubFile, []byte(publicFileText(rec)), 0644); err != nil {
		return fail(fmt.Errorf("failed to write %s: %w", pubFile, err))
	}
	written = append(written, pubFile)

	statePath := stem + SuffixState
	if err := os.WriteFile(statePath, []byte(stateFileText(rec)), 0600); err != nil {
		return fail(fmt.Errorf("failed to write %s: %w", statePath, err))
	}
	return nil
}

func publicFileText(rec *KeyRecord) string {
	var b strings.Builder
	role := "zone-signing"
	if rec.KSK {
		role = "key-signing"
	}
	fmt.Fprintf(&b, "; This is a %s key, keyid %d, for %s\n", role, rec.KeyTag, rec.Zone)
	b.WriteString(rec.DNSKEY().String())
	b.WriteString("\n")
	return b.String()
}

func stateFileText(rec *KeyRecord) string {
	var b strings.Builder
	yesno := func(v bool) string {
		if v {
			return "yes"
		}
		return "no"
	}
	fmt.Fprintf(&b, "; This is the state of key %d, for %s\n", rec.KeyTag, rec.Zone)
	fmt.Fprintf(&b, "Algorithm: %d\n", rec.Algorithm)
	fmt.Fprintf(&b, "Length: %d\n", rec.Size)
	fmt.Fprintf(&b, "Lifetime: %d\n", rec.Lifetime)
	fmt.Fprintf(&b, "KSK: %s\n", yesno(rec.KSK))
	fmt.Fprintf(&b, "ZSK: %s\n", yesno(rec.ZSK))
	fmt.Fprintf(&b, "TTL: %d\n", rec.TTL)
	writeTime := func(field string, t timeutil.Instant) {
		if t.IsSet() {
			fmt.Fprintf(&b, "%s: %s\n", field, t.Compact())
		}
	}
	writeTime("Generated", rec.Created)
	writeTime("Published", rec.Publish)
	writeTime("Active", rec.Activate)
	writeTime("Retired", rec.Inactive)
	writeTime("Removed", rec.Delete)
	return b.String()
}

// ReadRecord loads one key from its .key and .state files under dir.
func ReadRecord(dir, stem string) (*KeyRecord, error) {
	pubFile := filepath.Join(dir, stem+SuffixPublic)
	pubData, err := os.ReadFile(pubFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", pubFile, err)
	}
	dnskey, err := parsePublicFile(string(pubData))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pubFile, err)
	}

	statePath := filepath.Join(dir, stem+SuffixState)
	stateData, err := os.ReadFile(statePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", statePath, err)
	}
	var st stateFile
	if err := yaml.Unmarshal([]byte(stripComments(string(stateData))), &st); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", statePath, err)
	}

	rec := &KeyRecord{
		Zone:      dns.CanonicalName(dnskey.Hdr.Name),
		Algorithm: dnskey.Algorithm,
		Size:      st.Length,
		KSK:       st.KSK == "yes",
		ZSK:       st.ZSK == "yes",
		KeyTag:    dnskey.KeyTag(),
		PublicKey: dnskey.PublicKey,
		TTL:       st.TTL,
		Lifetime:  st.Lifetime,
	}
	if rec.TTL == 0 {
		rec.TTL = dnskey.Hdr.Ttl
	}
	if st.Algorithm != 0 && st.Algorithm != rec.Algorithm {
		return nil, fmt.Errorf("%s: state algorithm %d does not match DNSKEY algorithm %d", statePath, st.Algorithm, rec.Algorithm)
	}
	for _, f := range []struct {
		value string
		dst   *timeutil.Instant
	}{
		{st.Generated, &rec.Created},
		{st.Published, &rec.Publish},
		{st.Active, &rec.Activate},
		{st.Retired, &rec.Inactive},
		{st.Removed, &rec.Delete},
	} {
		if f.value == "" {
			continue
		}
		t, err := timeutil.ParseCompact(f.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", statePath, err)
		}
		*f.dst = t
	}
	return rec, nil
}

func parsePublicFile(data string) (*dns.DNSKEY, error) {
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		rr, err := dns.NewRR(line)
		if err != nil {
			return nil, fmt.Errorf("bad resource record: %w", err)
		}
		dnskey, ok := rr.(*dns.DNSKEY)
		if !ok {
			return nil, fmt.Errorf("not a DNSKEY record: %s", line)
		}
		return dnskey, nil
	}
	return nil, fmt.Errorf("no DNSKEY record found")
}

func stripComments(data string) string {
	lines := strings.Split(data, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ";") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
