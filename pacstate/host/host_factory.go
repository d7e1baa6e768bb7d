package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/steelcutops/pacstate/logger"
	"github.com/steelcutops/pacstate/pacstate/commandmanager"
	"github.com/steelcutops/pacstate/pacstate/hostmanager"
	"github.com/steelcutops/pacstate/pacstate/packagemanager"
)

// ErrBinaryNotFound is returned when the package manager binary is missing
// on the host. No package command is attempted in that case.
var ErrBinaryNotFound = errors.New("package manager binary not found")

// NewHost connects the host's managers and resolves the package manager
// binary on it.
func NewHost(ctx context.Context, hostname string, options ...HostOption) (*Host, error) {
	ch := &Host{Hostname: hostname}

	for _, option := range options {
		option(ch)
	}

	if ch.Logger == nil {
		ch.Logger = logger.Discard()
	}
	ch.Logger = ch.Logger.WithField("host", hostname)

	if ch.Binary == "" {
		ch.Binary = packagemanager.DefaultBinary
	}

	if ch.CommandManager == nil {
		ch.CommandManager = &commandmanager.UnixCommandManager{
			Hostname:       hostname,
			SSHClient:      ch.SSHClient,
			Credentials:    ch.Credentials,
			KnownHostsFile: ch.KnownHostsFile,
			Logger:         ch.Logger,
		}
	}
	ch.HostManager = &hostmanager.UnixHostManager{CommandManager: ch.CommandManager}

	path, err := ch.HostManager.LookPath(ctx, ch.Binary)
	if err != nil {
		if errors.Is(err, hostmanager.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s on %s", ErrBinaryNotFound, ch.Binary, hostname)
		}
		return nil, fmt.Errorf("could not locate %s on %s: %w", ch.Binary, hostname, err)
	}
	ch.Binary = path

	ch.gatherFacts(ctx)

	ch.PackageManager = &packagemanager.PacmanPackageManager{
		CommandManager: ch.CommandManager,
		Binary:         ch.Binary,
		Sudo:           ch.Sudo,
		Logger:         ch.Logger,
	}

	return ch, nil
}

// gatherFacts is best effort: a host that cannot report its distribution is
// still managed.
func (ch *Host) gatherFacts(ctx context.Context) {
	info, err := ch.HostManager.Info(ctx)
	if err != nil {
		ch.Logger.WithError(err).Warn("Could not gather host facts")
		return
	}
	ch.Info = info

	log := ch.Logger.WithFields(logrus.Fields{"os": info.OSID, "kernel": info.KernelVersion, "binary": ch.Binary})
	if !info.IsArch() {
		log.Warn("Host does not look like Arch Linux")
		return
	}
	log.Debug("Host facts gathered")
}
