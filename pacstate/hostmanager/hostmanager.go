package hostmanager

import (
	"context"
	"errors"
)

// ErrNotFound is returned by LookPath when the binary is not on the host's PATH.
var ErrNotFound = errors.New("executable not found")

type HostInfo struct {
	Hostname      string
	OSID          string
	OSLike        []string
	PrettyName    string
	KernelVersion string
}

// IsArch reports whether the host is Arch Linux or an Arch derivative.
func (i HostInfo) IsArch() bool {
	if i.OSID == "arch" {
		return true
	}
	for _, like := range i.OSLike {
		if like == "arch" {
			return true
		}
	}
	return false
}

// HostManager gathers the facts needed before packages are touched.
type HostManager interface {
	Info(ctx context.Context) (HostInfo, error)
	Hostname(ctx context.Context) (string, error)
	LookPath(ctx context.Context, name string) (string, error)
}
