package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Version identifies a management model version. It is comparable and can
// be used as a map key.
type Version struct {
	Major int
	Minor int
	Micro int
}

// NewVersion builds a version from its three components.
func NewVersion(major, minor, micro int) Version {
	return Version{Major: major, Minor: minor, Micro: micro}
}

// ParseVersion accepts "major", "major.minor" or "major.minor.micro".
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 0 || len(parts) > 3 || parts[0] == "" {
		return Version{}, fmt.Errorf("model: invalid version %q", s)
	}
	var nums [3]int
	for idx, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("model: invalid version %q", s)
		}
		nums[idx] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Micro: nums[2]}, nil
}

// MustParseVersion panics when s is not a valid version.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return sign(v.Major - other.Major)
	case v.Minor != other.Minor:
		return sign(v.Minor - other.Minor)
	default:
		return sign(v.Micro - other.Micro)
	}
}

func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

func (v Version) IsZero() bool {
	return v == Version{}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
