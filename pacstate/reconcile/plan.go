package reconcile

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/steelcutops/pacstate/pacstate/packagemanager"
)

// PackageRef is a requested package. File is set for references to a local
// package archive; Name is always the canonical package name.
type PackageRef struct {
	Name string
	File string
}

func (r PackageRef) IsFile() bool {
	return r.File != ""
}

// Classify resolves every reference to its canonical name.
func Classify(refs []string) []PackageRef {
	classified := make([]PackageRef, 0, len(refs))
	for _, ref := range refs {
		if packagemanager.IsPackageFile(ref) {
			classified = append(classified, PackageRef{Name: packagemanager.CanonicalName(ref), File: ref})
			continue
		}
		classified = append(classified, PackageRef{Name: ref})
	}
	return classified
}

type Action int

const (
	ActionSkip Action = iota
	ActionInstall
	ActionInstallFromFile
	ActionRemove
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionInstall:
		return "install"
	case ActionInstallFromFile:
		return "install-file"
	case ActionRemove:
		return "remove"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Decide maps a desired state and a query result to an action.
func Decide(state DesiredState, q packagemanager.QueryResult) Action {
	switch state {
	case StateAbsent:
		if q.Installed {
			return ActionRemove
		}
		return ActionSkip
	case StateLatest:
		if q.Installed && q.UpToDate {
			return ActionSkip
		}
		return ActionInstall
	default:
		if q.Installed {
			return ActionSkip
		}
		return ActionInstall
	}
}

// Step is the planned action for one package.
type Step struct {
	Ref    PackageRef
	Action Action
	Query  packagemanager.QueryResult
}

// stale reports that freshness of an installed package could not be confirmed.
func (s Step) stale(state DesiredState) bool {
	return state == StateLatest && s.Query.RemoteLookupFailed
}

func (r *Reconciler) planStep(ctx context.Context, ref PackageRef, state DesiredState) (Step, error) {
	q, err := r.PackageManager.Query(ctx, ref.Name)
	if err != nil {
		return Step{}, &PackageError{Kind: ErrQuery, Packages: []string{ref.Name}, Err: err}
	}

	action := Decide(state, q)
	if action == ActionInstall && ref.IsFile() {
		action = ActionInstallFromFile
	}

	r.log().WithFields(logrus.Fields{
		"package":   ref.Name,
		"installed": q.Installed,
		"action":    action.String(),
	}).Debug("Planned package")

	return Step{Ref: ref, Action: action, Query: q}, nil
}

func (r *Reconciler) plan(ctx context.Context, refs []PackageRef, state DesiredState) ([]Step, error) {
	steps := make([]Step, 0, len(refs))
	for _, ref := range refs {
		step, err := r.planStep(ctx, ref, state)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}
