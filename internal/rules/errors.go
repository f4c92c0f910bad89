package rules

import (
	"errors"
	"fmt"
)

// ErrNoRuleMatched is returned (wrapped) when no entry of a table applies to
// a path. It is fatal for the build.
var ErrNoRuleMatched = errors.New("no rule matched")

// NoRuleMatchedError carries the path that could not be resolved.
type NoRuleMatchedError struct {
	Path string
}

func (e *NoRuleMatchedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNoRuleMatched, e.Path)
}

func (e *NoRuleMatchedError) Is(target error) bool {
	return target == ErrNoRuleMatched
}
