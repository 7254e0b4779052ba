package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"runtime/debug"
)

type buildInfo struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// newBuildInfo fills blanks left by -ldflags, using the VCS stamp the Go
// toolchain embeds when available.
func newBuildInfo(version, gitCommit, buildDate string) buildInfo {
	info := buildInfo{
		Service:   "breederhq",
		Version:   version,
		GitCommit: gitCommit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.GitCommit == "":
				info.GitCommit = s.Value
			case s.Key == "vcs.time" && info.BuildDate == "":
				info.BuildDate = s.Value
			}
		}
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.GitCommit == "" {
		info.GitCommit = "unknown"
	}
	if info.BuildDate == "" {
		info.BuildDate = "unknown"
	}
	return info
}

// VersionHandler serves build metadata. Only GET is routed here.
func VersionHandler(version, gitCommit, buildDate string) http.Handler {
	body, _ := json.Marshal(newBuildInfo(version, gitCommit, buildDate))
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(body)
	})
}
