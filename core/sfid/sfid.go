// Package sfid defines the typed record identifier used throughout the
// store. An identifier is a lowercase, type-prefixed string such as
// "p_m3x10" (part), "l_a1" (location), or "b_proto7" (build). The syntax is
// deliberately restrictive so an identifier is always safe to use as a
// directory name inside the working tree.
package sfid

import (
	"regexp"
	"strings"

	"github.com/smallfab/smallfab/core/sferr"
)

const (
	// MinLen and MaxLen bound the total identifier length.
	MinLen = 3
	MaxLen = 64

	// TypePart is the prefix for part records, the only type that may
	// carry a BOM or revision snapshots.
	TypePart = "p"

	// TypeLocation is the prefix for location records.
	TypeLocation = "l"

	// TypeBuild is the prefix for build records.
	TypeBuild = "b"
)

var pattern = regexp.MustCompile(`^[a-z]+_[a-z0-9_-]*[a-z0-9]$`)

// ID is a validated record identifier. Construct with Parse; the zero value
// is invalid.
type ID string

// Parse validates s and returns it as an ID. The syntax forbids path
// separators, dots, and uppercase, so a valid ID can never traverse outside
// its entities/<id>/ directory.
func Parse(s string) (ID, error) {
	if s == "" {
		return "", sferr.Validation("sfid is required")
	}
	if len(s) < MinLen || len(s) > MaxLen {
		return "", sferr.Validation("sfid %q must be between %d and %d characters", s, MinLen, MaxLen)
	}
	if !pattern.MatchString(s) {
		return "", sferr.Validation("sfid %q must be lowercase and match %s", s, pattern.String())
	}
	return ID(s), nil
}

// MustParse is Parse for identifiers known valid at compile time. Panics on
// invalid input.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) String() string {
	return string(id)
}

// Type returns the prefix before the first underscore ("p", "l", "b", ...).
func (id ID) Type() string {
	s := string(id)
	if i := strings.IndexByte(s, '_'); i > 0 {
		return s[:i]
	}
	return ""
}

// IsPart reports whether the identifier names a part record.
func (id ID) IsPart() bool {
	return id.Type() == TypePart
}
