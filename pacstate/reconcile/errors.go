package reconcile

import (
	"errors"
	"strings"
)

var (
	// ErrUsage is returned for invalid requests, before any command runs.
	ErrUsage = errors.New("invalid request")

	// ErrQuery is returned when a read-only lookup could not be run at all.
	ErrQuery = errors.New("package query failed")

	ErrMetadataRefresh     = errors.New("could not update package db")
	ErrInstall             = errors.New("failed to install")
	ErrRemove              = errors.New("failed to remove")
	ErrUpgrade             = errors.New("could not upgrade")
	ErrUpgradePreviewParse = errors.New("could not parse upgrade preview")
)

// PackageError attributes a fatal failure to the packages it concerns.
// errors.Is matches both Kind and the underlying cause.
type PackageError struct {
	Kind     error
	Packages []string
	Err      error
}

func (e *PackageError) Error() string {
	msg := e.Kind.Error()
	if len(e.Packages) > 0 {
		msg += " " + strings.Join(e.Packages, " ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PackageError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
