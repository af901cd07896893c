// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

package kasp

import (
	"fmt"

	"github.com/loganrossus/OpenKSR/pkg/timeutil"
	"gopkg.in/yaml.v3"
)

// Duration is a number of seconds. In YAML it may be written as a bare
// integer or as a number with a unit suffix ("30d", "1h", "2w").
type Duration int64

// Seconds returns the duration in seconds.
func (d Duration) Seconds() int64 {
	return int64(d)
}

// UnmarshalYAML accepts integers and unit-suffixed strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	secs, err := timeutil.ParseSeconds(s)
	if err != nil {
		return err
	}
	*d = Duration(secs)
	return nil
}
