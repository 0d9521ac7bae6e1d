// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caprpc

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ProtocolVersion is sent in Hello.
const ProtocolVersion = "1.0.0"

// compatibleVersions is the range of peer versions this package speaks.
var compatibleVersions = mustConstraint("^1")

func mustConstraint(c string) *semver.Constraints {
	cs, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return cs
}

// checkVersion reports whether a peer announcing v can be served.
func checkVersion(v string) error {
	pv, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("parse peer version %q: %w", v, err)
	}
	if !compatibleVersions.Check(pv) {
		return fmt.Errorf("peer version %s is not compatible with %s", pv, ProtocolVersion)
	}
	return nil
}
