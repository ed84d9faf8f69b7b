// Package jvm locates and probes Java VMs.
package jvm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/blang/semver/v4"
)

// Info describes a probed Java VM.
type Info struct {
	// Home is the VM installation directory.
	Home string

	// Version is the normalized runtime version, e.g. 1.8.0 or 11.0.2.
	Version semver.Version

	// Vendor is the first word of the version banner, e.g. "openjdk" or "java".
	Vendor string

	// Raw is the complete banner printed by java -version.
	Raw string
}

// versionLine matches the first line of java -version output.
var versionLine = regexp.MustCompile(`(?m)^(\S+) version "([^"]+)"`)

// Executable returns the path of the java launcher under home.
func Executable(home string) string {
	name := "java"
	if runtime.GOOS == "windows" {
		name = "java.exe"
	}
	return filepath.Join(home, "bin", name)
}

// Exists reports whether home contains a java launcher.
func Exists(home string) bool {
	if home == "" {
		return false
	}
	st, err := os.Stat(Executable(home))
	return err == nil && !st.IsDir()
}

// Probe runs java -version under home and parses its banner.
func Probe(ctx context.Context, home string) (*Info, error) {
	cmd := exec.CommandContext(ctx, Executable(home), "-version")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to run %s -version: %w", Executable(home), err)
	}
	info, err := ParseBanner(out.String())
	if err != nil {
		return nil, err
	}
	info.Home = home
	return info, nil
}

// ParseBanner parses the output of java -version.
func ParseBanner(banner string) (*Info, error) {
	m := versionLine.FindStringSubmatch(banner)
	if m == nil {
		return nil, fmt.Errorf("unrecognized java -version output: %q", firstLine(banner))
	}
	v, err := ParseVersion(m[2])
	if err != nil {
		return nil, err
	}
	return &Info{Version: v, Vendor: m[1], Raw: banner}, nil
}

// ParseVersion normalizes a Java version string. Update and build suffixes
// such as "_202" or "+7" are dropped.
func ParseVersion(s string) (semver.Version, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "_+-"); i >= 0 {
		s = s[:i]
	}
	v, err := semver.ParseTolerant(s)
	if err != nil {
		return semver.Version{}, fmt.Errorf("invalid java version %q: %w", s, err)
	}
	return v, nil
}

// AtLeast reports whether the VM version is at least min. Versions in the
// legacy 1.x scheme compare by their minor number, so 1.8 equals 8.
func (i *Info) AtLeast(min semver.Version) bool {
	return Feature(i.Version) >= Feature(min)
}

// Feature returns the feature release: 8 for 1.8.0, 11 for 11.0.2.
func Feature(v semver.Version) uint64 {
	if v.Major == 1 {
		return v.Minor
	}
	return v.Major
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
