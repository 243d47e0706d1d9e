package cursor

import (
	"fmt"
	"strings"
)

// State filters records by their processed flag.
type State int

const (
	// Any accepts every record.
	Any State = iota
	// Processed accepts records already tagged by the pipeline.
	Processed
	// Unprocessed accepts records not yet tagged.
	Unprocessed
)

// ParseState accepts "all"/"any", "tagged"/"processed" and
// "untagged"/"unprocessed".
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "any", "":
		return Any, nil
	case "tagged", "processed":
		return Processed, nil
	case "untagged", "unprocessed":
		return Unprocessed, nil
	}
	return Any, fmt.Errorf("unknown state %q (want all, tagged or untagged)", s)
}

func (s State) String() string {
	switch s {
	case Processed:
		return "tagged"
	case Unprocessed:
		return "untagged"
	default:
		return "all"
	}
}

// Matches reports whether a record with the given flag passes the filter.
func (s State) Matches(processed bool) bool {
	switch s {
	case Processed:
		return processed
	case Unprocessed:
		return !processed
	default:
		return true
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
