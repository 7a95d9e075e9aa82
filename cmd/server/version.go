package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
)

// Set at link time, e.g. -ldflags "-X main.GitCommit=$(git rev-parse --short HEAD)".
var (
	Version   = constants.AppVersion
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// BuildInfo describes the running server binary.
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func currentBuildInfo() BuildInfo {
	return BuildInfo{
		Name:      constants.AppName,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (b BuildInfo) print(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", b.Name, b.Version)
	fmt.Fprintf(w, "  commit:   %s\n", b.GitCommit)
	fmt.Fprintf(w, "  built:    %s\n", b.BuildDate)
	fmt.Fprintf(w, "  go:       %s\n", b.GoVersion)
	fmt.Fprintf(w, "  platform: %s\n", b.Platform)
}
