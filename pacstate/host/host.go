package host

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/steelcutops/pacstate/common"
	"github.com/steelcutops/pacstate/pacstate/commandmanager"
	"github.com/steelcutops/pacstate/pacstate/hostmanager"
	"github.com/steelcutops/pacstate/pacstate/packagemanager"
	"github.com/steelcutops/pacstate/pacstate/reconcile"
)

// Host is one machine whose packages are managed, either the local one or a
// remote one reached over SSH.
type Host struct {
	Hostname string
	common.Credentials

	SSHClient      commandmanager.SSHDialer
	KnownHostsFile string

	// Binary is the pacman-compatible front end to drive. It is resolved
	// on the host when the Host is built.
	Binary string
	Sudo   bool
	Logger logrus.FieldLogger

	Info hostmanager.HostInfo

	CommandManager commandmanager.CommandManager
	HostManager    hostmanager.HostManager
	PackageManager packagemanager.PackageManager
}

// Reconciler returns a reconciler bound to this host's package manager.
func (h *Host) Reconciler(cfg reconcile.Config) *reconcile.Reconciler {
	return reconcile.New(h.PackageManager, cfg, h.Logger)
}

type RealSSHClient struct{}

func (RealSSHClient) Dial(network, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error) {
	cfg := *config
	cfg.Timeout = timeout
	return ssh.Dial(network, addr, &cfg)
}
