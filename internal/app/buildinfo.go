package app

import (
	"runtime/debug"
	"strings"
	"time"
)

// Set through -ldflags "-X" by release builds.
var (
	Version   = "dev"
	BuildDate = ""
	Commit    = ""
)

const (
	dateLayout     = "2006-01-02"
	shortCommitLen = 7
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version string
	Date    string
	Commit  string
}

func CurrentBuild() BuildInfo {
	info := BuildInfo{
		Version: strings.TrimSpace(Version),
		Date:    normalizeBuildDate(BuildDate),
		Commit:  shortCommit(Commit),
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			info.Commit = revisionFromSettings(bi.Settings)
		}
	}

	return info
}

// String renders "1.2.0 (2026-01-30, 0a1b2c3)", leaving out unknown parts.
func (b BuildInfo) String() string {
	var extra []string
	if b.Date != "" {
		extra = append(extra, b.Date)
	}
	if b.Commit != "" {
		extra = append(extra, b.Commit)
	}
	if len(extra) == 0 {
		return b.Version
	}

	return b.Version + " (" + strings.Join(extra, ", ") + ")"
}

func BuildVersion() string {
	return CurrentBuild().Version
}

func BuildDateYMD() string {
	return normalizeBuildDate(BuildDate)
}

func BuildVersionWithDate() string {
	return CurrentBuild().String()
}

func normalizeBuildDate(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case len(raw) >= len(dateLayout):
		if _, err := time.Parse(dateLayout, raw[:len(dateLayout)]); err == nil {
			return raw[:len(dateLayout)]
		}
	}
	if ts, err := time.Parse(time.RFC1123Z, raw); err == nil {
		return ts.UTC().Format(dateLayout)
	}

	return raw
}

func revisionFromSettings(settings []debug.BuildSetting) string {
	var revision string
	modified := false
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			revision = shortCommit(setting.Value)
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if revision != "" && modified {
		revision += "-dirty"
	}

	return revision
}

func shortCommit(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > shortCommitLen {
		return raw[:shortCommitLen]
	}

	return raw
}
