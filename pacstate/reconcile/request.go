package reconcile

import (
	"fmt"
	"strings"
)

// DesiredState is the target state of the requested packages.
type DesiredState int

const (
	StatePresent DesiredState = iota
	StateAbsent
	StateLatest
)

func (s DesiredState) String() string {
	switch s {
	case StatePresent:
		return "present"
	case StateAbsent:
		return "absent"
	case StateLatest:
		return "latest"
	default:
		return fmt.Sprintf("DesiredState(%d)", int(s))
	}
}

// ParseState normalizes the user-facing state names. An empty string means present.
func ParseState(s string) (DesiredState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "present", "installed":
		return StatePresent, nil
	case "absent", "removed":
		return StateAbsent, nil
	case "latest":
		return StateLatest, nil
	default:
		return StatePresent, fmt.Errorf("%w: unsupported state %q (choose from present, installed, latest, absent, removed)", ErrUsage, s)
	}
}

// Request is the desired state for one reconciliation run.
type Request struct {
	Names       []string
	State       DesiredState
	Recurse     bool
	Force       bool
	UpdateCache bool
	Upgrade     bool
}

func (r Request) Validate() error {
	if len(r.Names) == 0 && !r.UpdateCache && !r.Upgrade {
		return fmt.Errorf("%w: one of name, update_cache or upgrade is required", ErrUsage)
	}
	for _, name := range r.Names {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty package name", ErrUsage)
		}
	}
	return nil
}

func (r Request) hasPackageWork() bool {
	return len(r.Names) > 0 || r.Upgrade
}

// Config holds the execution mode of a Reconciler.
type Config struct {
	// CheckMode predicts the outcome without running any mutating command.
	CheckMode bool
	// Diff enables the before/after package listing in results.
	Diff bool
}
