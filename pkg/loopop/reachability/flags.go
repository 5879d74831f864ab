package reachability

import (
	"strings"

	"github.com/samber/lo"
)

// Flags describe how reachable a host is
type Flags uint32

const (
	// FlagResolved is set when the host name resolved to at least one address
	FlagResolved Flags = 1 << iota
	// FlagReachable is set when a connection to the host could be opened
	FlagReachable
	// FlagLocalAddress is set when the host resolved to a loopback or
	// link-local address
	FlagLocalAddress
)

type flagName struct {
	flag Flags
	name string
}

var flagNames = []flagName{
	{FlagResolved, "resolved"},
	{FlagReachable, "reachable"},
	{FlagLocalAddress, "local"},
}

// String returns the set flags joined with "|", or "none"
func (f Flags) String() string {
	names := lo.FilterMap(flagNames, func(n flagName, _ int) (string, bool) {
		return n.name, f&n.flag != 0
	})
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Matches reports whether f&mask == value
func (f Flags) Matches(mask, value Flags) bool {
	return f&mask == value
}

// ParseFlags parses a "|" or "," separated list of flag names
func ParseFlags(s string) (Flags, error) {
	var f Flags
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.TrimSpace(part)
		if part == "" || part == "none" {
			continue
		}
		entry, ok := lo.Find(flagNames, func(n flagName) bool {
			return n.name == part
		})
		if !ok {
			return 0, &UnknownFlagError{Name: part}
		}
		f |= entry.flag
	}
	return f, nil
}

// UnknownFlagError is returned by ParseFlags for unknown names
type UnknownFlagError struct {
	Name string
}

func (e *UnknownFlagError) Error() string {
	return "unknown reachability flag: " + e.Name
}
