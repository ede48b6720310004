package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
)

var (
	// Version is the version of the CLI, overridden by the module version when
	// the binary was built with go install
	Version = "0.1.0"
	// BuildDate is the build date
	BuildDate = "unknown"
	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// drivers maps the database driver modules linked into the binary to the
// provider names they serve
var drivers = map[string]string{
	"github.com/go-sql-driver/mysql": "mysql",
	"github.com/lib/pq":              "postgres",
	"github.com/mattn/go-sqlite3":    "sqlite3",
	"modernc.org/sqlite":             "sqlite",
}

// Info holds version information
type Info struct {
	Version   string            `json:"version" yaml:"version"`
	BuildDate string            `json:"build_date" yaml:"build_date"`
	GitCommit string            `json:"git_commit" yaml:"git_commit"`
	GoVersion string            `json:"go_version" yaml:"go_version"`
	Platform  string            `json:"platform" yaml:"platform"`
	Drivers   map[string]string `json:"drivers,omitempty" yaml:"drivers,omitempty"`
}

// Get returns version information, completed from the embedded build info
func Get() Info {
	bi, _ := debug.ReadBuildInfo()
	return fromBuildInfo(bi)
}

func fromBuildInfo(bi *debug.BuildInfo) Info {
	info := Info{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if bi == nil {
		return info
	}

	if v := bi.Main.Version; v != "" && v != "(devel)" {
		info.Version = strings.TrimPrefix(v, "v")
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.GitCommit == "unknown":
			info.GitCommit = s.Value
		case s.Key == "vcs.time" && info.BuildDate == "unknown":
			info.BuildDate = s.Value
		}
	}
	for _, dep := range bi.Deps {
		if dep.Replace != nil {
			dep = dep.Replace
		}
		if name, ok := drivers[dep.Path]; ok {
			if info.Drivers == nil {
				info.Drivers = make(map[string]string)
			}
			info.Drivers[name] = dep.Version
		}
	}
	return info
}

// String returns a formatted version string
func (i Info) String() string {
	return fmt.Sprintf("querybuilder version %s (%s %s)", i.Version, i.Platform, i.GoVersion)
}

// FullString returns a detailed version string
func (i Info) FullString() string {
	var b strings.Builder
	fmt.Fprintf(&b, `querybuilder version %s
Build Date: %s
Git Commit: %s
Platform: %s
Go Version: %s`, i.Version, i.BuildDate, i.GitCommit, i.Platform, i.GoVersion)

	names := make([]string, 0, len(i.Drivers))
	for name := range i.Drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "\nDriver %s: %s", name, i.Drivers[name])
	}
	return b.String()
}
