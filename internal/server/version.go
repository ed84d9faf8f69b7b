package server

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a known server release. Values are ordered by release.
type Version int

// Known releases.
const (
	VersionUnknown Version = iota
	GF1
	GF2
	GF2_1
	GF2_1_1
	GF3
	GF3_0_1
	GF3_1
	GF3_1_1
	GF3_1_2
	GF3_1_2_2
	GF3_1_2_3
	GF3_1_2_4
	GF3_1_2_5
	GF4
	GF4_0_1
	GF4_1
	GF4_1_1
	GF4_1_2
	GF5
	GF5_0_1
	GF5_1
	GF6
	GF6_1
	GF6_2
	GF7
	versionEnd
)

// MinimumSupported is the oldest release the administration client can talk to.
const MinimumSupported = GF3

// FirstREST is the first release whose DAS speaks the REST interface.
const FirstREST = GF4

// versionNumbers lists the dotted components of every known release.
var versionNumbers = map[Version][]int{
	GF1:       {1},
	GF2:       {2},
	GF2_1:     {2, 1},
	GF2_1_1:   {2, 1, 1},
	GF3:       {3},
	GF3_0_1:   {3, 0, 1},
	GF3_1:     {3, 1},
	GF3_1_1:   {3, 1, 1},
	GF3_1_2:   {3, 1, 2},
	GF3_1_2_2: {3, 1, 2, 2},
	GF3_1_2_3: {3, 1, 2, 3},
	GF3_1_2_4: {3, 1, 2, 4},
	GF3_1_2_5: {3, 1, 2, 5},
	GF4:       {4},
	GF4_0_1:   {4, 0, 1},
	GF4_1:     {4, 1},
	GF4_1_1:   {4, 1, 1},
	GF4_1_2:   {4, 1, 2},
	GF5:       {5},
	GF5_0_1:   {5, 0, 1},
	GF5_1:     {5, 1},
	GF6:       {6},
	GF6_1:     {6, 1},
	GF6_2:     {6, 2},
	GF7:       {7},
}

// Known reports whether v is a recognized release.
func (v Version) Known() bool {
	_, ok := versionNumbers[v]
	return ok
}

// Supported reports whether v is recent enough to administer.
func (v Version) Supported() bool {
	return v.Known() && v >= MinimumSupported
}

// AdminInterface returns the interface a server of version v speaks: the
// legacy HTTP interface before FirstREST, REST from then on. Unknown
// versions yield InterfaceUnset.
func (v Version) AdminInterface() AdminInterface {
	switch {
	case !v.Known():
		return InterfaceUnset
	case v < FirstREST:
		return InterfaceHTTP
	default:
		return InterfaceREST
	}
}

// Major returns the major release number, or 0 for unknown versions.
func (v Version) Major() int {
	n, ok := versionNumbers[v]
	if !ok {
		return 0
	}
	return n[0]
}

// String returns the dotted form, e.g. "4.1.2".
func (v Version) String() string {
	n, ok := versionNumbers[v]
	if !ok {
		if v == VersionUnknown {
			return "unknown"
		}
		return fmt.Sprintf("Version(%d)", int(v))
	}
	parts := make([]string, len(n))
	for i, x := range n {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ".")
}

// ParseVersion maps a dotted version string to the closest known release.
// Trailing zero components are ignored ("4.0.0" is GF4). A version between
// known releases maps to the newest known release not newer than it within
// the same major line.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "v"))
	if s == "" {
		return VersionUnknown, fmt.Errorf("empty version")
	}
	// Drop build qualifiers such as "4.1.2-b12" or "5.1 (build 3)".
	if idx := strings.IndexAny(s, " -_("); idx > 0 {
		s = s[:idx]
	}

	fields := strings.Split(s, ".")
	nums := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return VersionUnknown, fmt.Errorf("invalid version %q", s)
		}
		nums = append(nums, n)
	}
	nums = trimZeros(nums)

	best := VersionUnknown
	for v := GF1; v < versionEnd; v++ {
		known := versionNumbers[v]
		if known[0] != nums[0] {
			continue
		}
		if compareNumbers(known, nums) <= 0 {
			best = v
		}
	}
	if best == VersionUnknown {
		return VersionUnknown, fmt.Errorf("unrecognized version %q", s)
	}
	return best, nil
}

func trimZeros(n []int) []int {
	for len(n) > 1 && n[len(n)-1] == 0 {
		n = n[:len(n)-1]
	}
	return n
}

func compareNumbers(a, b []int) int {
	for i := 0; i < len(a) || i < len(b); i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}
