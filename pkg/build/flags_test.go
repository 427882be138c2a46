// SPDX-License-Identifier: MIT
package build

import "testing"

// setLinked replaces the link-time values and build information for the
// duration of the test.
func setLinked(t *testing.T, name, time, commit, version string) {
	t.Helper()
	saved := []string{buildName, buildTime, buildCommit, buildVersion}
	savedFlags := buildFlags
	t.Cleanup(func() {
		buildName, buildTime, buildCommit, buildVersion = saved[0], saved[1], saved[2], saved[3]
		buildFlags = savedFlags
	})

	buildName, buildTime, buildCommit, buildVersion = name, time, commit, version
	buildFlags = &ldFlags{Name: "unknown", Description: Description, Time: "unknown", Commit: "unknown", Version: "unknown"}
}

func TestInitializeRequiresEveryFlag(t *testing.T) {
	linked := [4]string{"vitals", "2025-04-13T09:30:00Z", "abc1234", "v0.3.0"}
	for i, flag := range []string{"BuildName", "BuildTime", "BuildCommit", "BuildVersion"} {
		t.Run(flag, func(t *testing.T) {
			v := linked
			v[i] = ""
			setLinked(t, v[0], v[1], v[2], v[3])

			err := Initialize()
			if err == nil || err.Error() != flag+" is required" {
				t.Fatalf("Initialize() error = %v, want %q", err, flag+" is required")
			}
			if got := GetBuildFlags(); got.Name != "unknown" || got.Version != "unknown" {
				t.Errorf("defaults overwritten on error: %+v", got)
			}
		})
	}
}

func TestInitialize(t *testing.T) {
	setLinked(t, "vitals", "2025-04-13T09:30:00Z", "abc1234", "v0.3.0")
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() unexpected error: %v", err)
	}

	want := ldFlags{Name: "vitals", Description: Description, Time: "2025-04-13T09:30:00Z", Commit: "abc1234", Version: "v0.3.0"}
	if got := *GetBuildFlags(); got != want {
		t.Errorf("GetBuildFlags() = %+v, want %+v", got, want)
	}
	if got, want := GetBuildFlags().String(), "v0.3.0 (commit abc1234, built 2025-04-13T09:30:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestClientName(t *testing.T) {
	tests := []struct {
		name, linkedName, version string
		want                      string
	}{
		{"development build", "", "", "mmrphys/unknown"},
		{"linked name", "vitals", "v0.3.0", "vitals/v0.3.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setLinked(t, tt.linkedName, "2025-04-13T09:30:00Z", "abc1234", tt.version)
			_ = Initialize()
			if got := ClientName("mmrphys"); got != tt.want {
				t.Errorf("ClientName() = %q, want %q", got, tt.want)
			}
		})
	}
}
