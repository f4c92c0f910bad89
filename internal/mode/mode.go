package mode

import (
	"fmt"
	"strings"
)

// Mode is the build environment selector. It is created once per build
// invocation and never changes afterwards.
type Mode string

const (
	Development Mode = "development"
	Production  Mode = "production"
)

// FromEnv maps an environment value to a Mode. Only the exact value
// "development" selects development; anything else, including an empty
// value, is production.
func FromEnv(value string) Mode {
	if value == string(Development) {
		return Development
	}
	return Production
}

// Parse is the strict form of FromEnv used for explicit configuration.
func Parse(value string) (Mode, error) {
	switch Mode(strings.TrimSpace(value)) {
	case Development:
		return Development, nil
	case Production:
		return Production, nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected %q or %q)", value, Development, Production)
	}
}

func (m Mode) IsDevelopment() bool {
	return m == Development
}

// IsProduction is always the negation of IsDevelopment, so the zero value
// behaves as production.
func (m Mode) IsProduction() bool {
	return !m.IsDevelopment()
}

func (m Mode) String() string {
	if m.IsDevelopment() {
		return string(Development)
	}
	return string(Production)
}
