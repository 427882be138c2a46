// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata embedded at link time:
//
//	go build -ldflags "-X github.com/PhysiologicAILab/mmrphys-live-sub000/pkg/build.buildName=mmrphys \
//	  -X .../pkg/build.buildVersion=0.3.0 -X .../pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	  -X .../pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds carry "unknown" for every linked field.
package build

import "fmt"

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Description is the one-line summary shown in CLI help.
const Description = "Live cardiac and respiratory rate engine for rPPG inference streams"

// Set with -ldflags -X.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var buildFlags = &ldFlags{
	Name:        "unknown",
	Description: Description,
	Time:        "unknown",
	Commit:      "unknown",
	Version:     "unknown",
}

// Initialize copies the linked values into the build information. It fails,
// leaving the defaults in place, when any of them is missing.
func Initialize() error {
	required := []struct{ flag, value string }{
		{"BuildName", buildName},
		{"BuildTime", buildTime},
		{"BuildCommit", buildCommit},
		{"BuildVersion", buildVersion},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.flag)
		}
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion
	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// ClientName identifies this process to peers such as the NATS server,
// e.g. "mmrphys/0.3.0". fallback replaces an unknown name.
func ClientName(fallback string) string {
	name := buildFlags.Name
	if name == "" || name == "unknown" {
		name = fallback
	}
	return name + "/" + buildFlags.Version
}

// String summarises the build for --version output.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", f.Version, f.Commit, f.Time)
}
