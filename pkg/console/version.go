// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package console

import (
	"runtime/debug"

	"github.com/yeetrun/lycaon/pkg/caprpc"
)

// VersionCommit returns the short VCS revision the binary was built from,
// "dev" when the build carries none.
func VersionCommit() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	return commitFromSettings(bi.Settings)
}

func commitFromSettings(settings []debug.BuildSetting) string {
	var (
		commit string
		dirty  bool
	)
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if commit == "" {
		return "dev"
	}
	if len(commit) > 9 {
		commit = commit[:9]
	}
	if dirty {
		commit += "+dirty"
	}
	return commit
}

// Version describes the console build and the protocol it speaks.
func Version() string {
	return "lycaon " + VersionCommit() + " (protocol " + caprpc.ProtocolVersion + ")"
}
