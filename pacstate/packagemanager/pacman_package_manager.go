package packagemanager

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/steelcutops/pacstate/logger"
	cm "github.com/steelcutops/pacstate/pacstate/commandmanager"
)

// DefaultBinary is used when no binary path has been resolved.
const DefaultBinary = "pacman"

// PacmanPackageManager drives pacman, or a pacman-compatible front end such
// as yaourt, through a CommandManager. Read-only queries never use sudo.
type PacmanPackageManager struct {
	CommandManager cm.CommandManager
	Binary         string
	Sudo           bool
	Logger         logrus.FieldLogger
}

func (p *PacmanPackageManager) bin() string {
	if p.Binary == "" {
		return DefaultBinary
	}
	return p.Binary
}

func (p *PacmanPackageManager) log() logrus.FieldLogger {
	if p.Logger == nil {
		return logger.Discard()
	}
	return p.Logger
}

func (p *PacmanPackageManager) query(ctx context.Context, args ...string) (cm.CommandResult, error) {
	return p.CommandManager.Run(ctx, cm.CommandConfig{
		Command: p.bin(),
		Args:    args,
		Env:     []string{"LC_ALL=C"},
	})
}

// mutate runs a state-changing command and turns a nonzero exit into a *cm.CommandError.
func (p *PacmanPackageManager) mutate(ctx context.Context, args ...string) (cm.CommandResult, error) {
	result, err := p.CommandManager.Run(ctx, cm.CommandConfig{
		Command: p.bin(),
		Args:    args,
		Sudo:    p.Sudo,
		Env:     []string{"LC_ALL=C"},
	})
	if err != nil {
		return result, err
	}
	if result.Failed() {
		return result, cm.NewCommandError(result)
	}
	return result, nil
}

func (p *PacmanPackageManager) ListPackages(ctx context.Context) ([]string, error) {
	output, err := p.query(ctx, "-Qq")
	if err != nil {
		return nil, err
	}
	if output.Failed() {
		return nil, cm.NewCommandError(output)
	}

	return ParseGroupMembers(output.STDOUT), nil
}

// Query looks the package up locally (-Qi) and, when installed, in the
// repositories (-Si). A package that is not installed is a normal outcome.
func (p *PacmanPackageManager) Query(ctx context.Context, name string) (QueryResult, error) {
	local, err := p.query(ctx, "-Qi", name)
	if err != nil {
		return QueryResult{}, err
	}
	if local.Failed() {
		p.log().WithField("package", name).Debug("Package is not installed")
		return QueryResult{}, nil
	}

	localVersion, localFound := ParseVersion(local.STDOUT)

	remote, err := p.query(ctx, "-Si", name)
	if err != nil {
		return QueryResult{}, err
	}
	if remote.Failed() {
		p.log().WithField("package", name).Debug("Remote version lookup failed")
		return QueryResult{
			Installed:          true,
			UpToDate:           true,
			RemoteLookupFailed: true,
			LocalVersion:       localVersion,
		}, nil
	}

	remoteVersion, remoteFound := ParseVersion(remote.STDOUT)

	return QueryResult{
		Installed:     true,
		UpToDate:      localFound && remoteFound && localVersion == remoteVersion,
		LocalVersion:  localVersion,
		RemoteVersion: remoteVersion,
	}, nil
}

// ExpandGroups replaces every group name with its members. Names that are not
// groups pass through unchanged. Order and duplicates are preserved.
func (p *PacmanPackageManager) ExpandGroups(ctx context.Context, names []string) ([]string, error) {
	expanded := make([]string, 0, len(names))

	for _, name := range names {
		output, err := p.query(ctx, "-Sgq", name)
		if err != nil {
			return nil, err
		}

		var members []string
		if !output.Failed() {
			members = ParseGroupMembers(output.STDOUT)
		}
		if len(members) == 0 {
			expanded = append(expanded, name)
			continue
		}

		p.log().WithFields(logrus.Fields{"group": name, "members": len(members)}).Debug("Expanded package group")
		expanded = append(expanded, members...)
	}

	return expanded, nil
}

func (p *PacmanPackageManager) RefreshDatabase(ctx context.Context, force bool) error {
	arg := "-Sy"
	if force {
		arg = "-Syy"
	}
	_, err := p.mutate(ctx, arg)
	return err
}

// UpgradePreview lists pending upgrades. pacman -Qu exits nonzero when there
// is nothing to upgrade, which yields an empty preview.
func (p *PacmanPackageManager) UpgradePreview(ctx context.Context) ([]Upgrade, error) {
	output, err := p.query(ctx, "-Qu")
	if err != nil {
		return nil, err
	}
	if output.Failed() {
		return nil, nil
	}
	return ParseUpgradePreview(output.STDOUT)
}

func (p *PacmanPackageManager) UpgradeAll(ctx context.Context) error {
	_, err := p.mutate(ctx, "-Suq", "--noconfirm")
	return err
}

func (p *PacmanPackageManager) InstallFromRepos(ctx context.Context, names []string) ([]string, error) {
	return p.install(ctx, "-S", names)
}

func (p *PacmanPackageManager) InstallFromFiles(ctx context.Context, paths []string) ([]string, error) {
	return p.install(ctx, "-U", paths)
}

func (p *PacmanPackageManager) install(ctx context.Context, op string, targets []string) ([]string, error) {
	args := append([]string{op}, targets...)
	args = append(args, "--noconfirm", "--noprogressbar", "--needed")

	output, err := p.mutate(ctx, args...)
	if err != nil {
		return nil, err
	}

	installed := ParseTransactionPackages(output.STDOUT, installHeaderLine)
	if len(installed) == 0 {
		p.log().WithField("targets", strings.Join(targets, " ")).Warn("Could not read package list from install output")
	}
	return installed, nil
}

func (p *PacmanPackageManager) Remove(ctx context.Context, name string, opts RemoveOptions) ([]string, error) {
	output, err := p.mutate(ctx, removeFlag(opts), name, "--noconfirm", "--noprogressbar")
	if err != nil {
		return nil, err
	}

	removed := ParseTransactionPackages(output.STDOUT, removeHeaderLine)
	if len(removed) == 0 {
		p.log().WithField("package", name).Warn("Could not read package list from removal output")
	}
	return removed, nil
}

func removeFlag(opts RemoveOptions) string {
	switch {
	case opts.Recurse && opts.Force:
		return "-Rdds"
	case opts.Force:
		return "-Rdd"
	case opts.Recurse:
		return "-Rs"
	default:
		return "-R"
	}
}
