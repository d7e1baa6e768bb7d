package host

import (
	"github.com/sirupsen/logrus"

	"github.com/steelcutops/pacstate/pacstate/commandmanager"
)

type HostOption func(*Host)

// WithUser returns a HostOption that sets the user for a Host.
func WithUser(user string) HostOption {
	return func(host *Host) {
		host.User = user
	}
}

// WithPassword returns a HostOption that sets the password for a Host.
func WithPassword(password string) HostOption {
	return func(host *Host) {
		host.Password = password
	}
}

// WithKeyPassphrase returns a HostOption that sets the key passphrase for a Host.
func WithKeyPassphrase(keyPassphrase string) HostOption {
	return func(host *Host) {
		host.KeyPassphrase = keyPassphrase
	}
}

// WithSudoPassword returns a HostOption that sets the sudo password for a Host.
func WithSudoPassword(password string) HostOption {
	return func(host *Host) {
		host.SudoPassword = password
	}
}

func WithSSHClient(client commandmanager.SSHDialer) HostOption {
	return func(host *Host) {
		host.SSHClient = client
	}
}

func WithKnownHostsFile(path string) HostOption {
	return func(host *Host) {
		host.KnownHostsFile = path
	}
}

// WithBinary selects the package manager front end, e.g. yaourt.
func WithBinary(binary string) HostOption {
	return func(host *Host) {
		host.Binary = binary
	}
}

// WithSudo runs mutating package commands through sudo.
func WithSudo(sudo bool) HostOption {
	return func(host *Host) {
		host.Sudo = sudo
	}
}

func WithLogger(logger logrus.FieldLogger) HostOption {
	return func(host *Host) {
		host.Logger = logger
	}
}

// WithCommandManager replaces the SSH/local command runner.
func WithCommandManager(manager commandmanager.CommandManager) HostOption {
	return func(host *Host) {
		host.CommandManager = manager
	}
}
