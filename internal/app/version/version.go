package version

import "runtime/debug"

// Overridden at build time via -ldflags "-X .../internal/app/version.buildVersion=...".
var (
	buildVersion = "dev"
	builtAt      = "unknown"
)

type Info struct {
	BuildVersion string `json:"buildVersion"`
	BuiltAt      string `json:"builtAt"`
	GoVersion    string `json:"goVersion,omitempty"`
}

// Get returns the build metadata, falling back to the module version when
// ldflags were not set.
func Get() Info {
	info := Info{BuildVersion: buildVersion, BuiltAt: builtAt}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
		if info.BuildVersion == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.BuildVersion = bi.Main.Version
		}
	}
	return info
}

func (i Info) String() string {
	if i.BuiltAt == "" || i.BuiltAt == "unknown" {
		return i.BuildVersion
	}
	return i.BuildVersion + " (built " + i.BuiltAt + ")"
}
