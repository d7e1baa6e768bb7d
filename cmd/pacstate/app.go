package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/steelcutops/pacstate/logger"
	"github.com/steelcutops/pacstate/pacstate/config"
	"github.com/steelcutops/pacstate/pacstate/host"
	"github.com/steelcutops/pacstate/pacstate/hostgroup"
	"github.com/steelcutops/pacstate/pacstate/reconcile"
)

type flags struct {
	Names       []string
	State       string
	Recurse     bool
	Force       bool
	UpdateCache bool
	Upgrade     bool
	Check       bool
	Diff        bool
	TaskPath    string

	Binary             string
	Hostnames          []string
	IniFilePath        string
	Username           string
	PasswordPrompt     bool
	KeyPassPrompt      bool
	Sudo               bool
	SudoPasswordPrompt bool
	KnownHostsFile     string
	Concurrency        int

	Debug     bool
	LogFormat string
	Output    string
}

type app struct {
	flags flags
	out   io.Writer
	log   *logrus.Logger

	newHost func(ctx context.Context, hostname string, options ...host.HostOption) (*host.Host, error)
}

func newApp(out io.Writer) *app {
	return &app{
		out:     out,
		log:     logger.Discard(),
		newHost: host.NewHost,
	}
}

func (a *app) newRootCmd() *cobra.Command {
	f := &a.flags

	rootCmd := &cobra.Command{
		Use:   "pacstate [flags] [package...]",
		Short: "Bring pacman packages on one or more hosts into a desired state",
		Long: `pacstate installs, upgrades and removes packages with pacman (or a
pacman-compatible front end) so that each host matches the requested state.
Packages may be repository names, group names or paths to package archives.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.configureLogger,
		RunE:              a.runReconcile,
	}

	rootCmd.Flags().StringSliceVarP(&f.Names, "name", "n", nil, "Package, group or package file (repeatable, comma separated)")
	rootCmd.Flags().StringVarP(&f.State, "state", "s", "", "Desired state: present, latest or absent")
	rootCmd.Flags().BoolVar(&f.Recurse, "recurse", false, "Also remove dependencies not required by other packages")
	rootCmd.Flags().BoolVar(&f.Force, "force", false, "Skip dependency checks on removal; force a full database refresh")
	rootCmd.Flags().BoolVar(&f.UpdateCache, "update-cache", false, "Refresh the package database first")
	rootCmd.Flags().BoolVar(&f.Upgrade, "upgrade", false, "Upgrade all packages")
	rootCmd.Flags().BoolVar(&f.Check, "check", false, "Report what would change without changing anything")
	rootCmd.Flags().BoolVar(&f.Diff, "diff", false, "Include the list of changed packages")
	rootCmd.Flags().StringVar(&f.TaskPath, "task", "", "Path to a YAML task file describing the request")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.Binary, "bin", "", "Package manager binary (default pacman)")
	pf.StringArrayVar(&f.Hostnames, "hostname", nil, "Hostname to connect to (repeatable)")
	pf.StringVar(&f.IniFilePath, "ini", "", "Path to INI file with host groups")
	pf.StringVar(&f.Username, "username", "", "Username to use for SSH connection")
	pf.BoolVar(&f.PasswordPrompt, "password", false, "Prompt for the SSH password")
	pf.BoolVar(&f.KeyPassPrompt, "keypass", false, "Prompt for the SSH key passphrase")
	pf.BoolVar(&f.Sudo, "sudo", false, "Run mutating commands through sudo")
	pf.BoolVar(&f.SudoPasswordPrompt, "sudo-password", false, "Prompt for the sudo password (implies --sudo)")
	pf.StringVar(&f.KnownHostsFile, "known-hosts", "", "known_hosts file used to verify remote host keys")
	pf.IntVar(&f.Concurrency, "concurrency", hostgroup.DefaultConcurrency, "Maximum number of concurrent host connections")
	pf.BoolVar(&f.Debug, "debug", false, "Enable debug log level")
	pf.StringVar(&f.LogFormat, "log-format", "text", "Log format: text or json")
	pf.StringVarP(&f.Output, "output", "o", "json", "Output format: json or text")

	rootCmd.AddCommand(a.newListCmd())
	rootCmd.AddCommand(a.newUpgradableCmd())

	return rootCmd
}

func (a *app) configureLogger(cmd *cobra.Command, _ []string) error {
	switch a.flags.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", reconcile.ErrUsage, a.flags.LogFormat)
	}
	switch a.flags.Output {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown output format %q", reconcile.ErrUsage, a.flags.Output)
	}

	a.log = logger.New(logger.Options{
		Debug:  a.flags.Debug,
		JSON:   a.flags.LogFormat == "json",
		Output: cmd.ErrOrStderr(),
	})
	a.log.WithField("debug", a.flags.Debug).Debug("Logger configured")
	return nil
}

// buildRequest merges the task file, if any, with the command line. Command
// line names are appended and boolean flags can only switch options on.
func (a *app) buildRequest(cmd *cobra.Command, args []string) (reconcile.Request, error) {
	f := a.flags
	var req reconcile.Request

	if f.TaskPath != "" {
		task, err := config.LoadTask(f.TaskPath)
		if err != nil {
			return reconcile.Request{}, err
		}
		req = task
	}

	for _, name := range append(append([]string(nil), f.Names...), args...) {
		req.Names = append(req.Names, config.SplitNames(name)...)
	}

	if f.TaskPath == "" || cmd.Flags().Changed("state") {
		state, err := reconcile.ParseState(f.State)
		if err != nil {
			return reconcile.Request{}, err
		}
		req.State = state
	}

	req.Recurse = req.Recurse || f.Recurse
	req.Force = req.Force || f.Force
	req.UpdateCache = req.UpdateCache || f.UpdateCache
	req.Upgrade = req.Upgrade || f.Upgrade

	if err := req.Validate(); err != nil {
		return reconcile.Request{}, err
	}
	return req, nil
}

type hostSettings struct {
	hostnames   []string
	options     []host.HostOption
	concurrency int
}

// resolveHosts combines the inventory with the command line. Flags given
// explicitly win over inventory defaults.
func (a *app) resolveHosts(cmd *cobra.Command) (hostSettings, error) {
	f := a.flags
	flagSet := cmd.Flags()
	settings := hostSettings{concurrency: f.Concurrency}

	binary, sudo, user := f.Binary, f.Sudo || f.SudoPasswordPrompt, f.Username

	if f.IniFilePath != "" {
		inv, err := config.LoadInventory(f.IniFilePath)
		if err != nil {
			return hostSettings{}, err
		}
		for group, hosts := range inv.Groups {
			a.log.WithFields(logrus.Fields{"group": group, "hosts": len(hosts)}).Debug("Adding hosts from group")
		}
		settings.hostnames = append(settings.hostnames, inv.Hosts()...)

		d := inv.Defaults
		if binary == "" {
			binary = d.Binary
		}
		if !flagSet.Changed("sudo") && !f.SudoPasswordPrompt {
			sudo = d.Sudo
		}
		if user == "" {
			user = d.User
		}
		if !flagSet.Changed("concurrency") && d.Concurrency > 0 {
			settings.concurrency = d.Concurrency
		}
	}

	settings.hostnames = appendUnique(settings.hostnames, f.Hostnames...)
	if len(settings.hostnames) == 0 {
		settings.hostnames = []string{"localhost"}
	}

	opts := []host.HostOption{
		host.WithLogger(a.log),
		host.WithSudo(sudo),
		host.WithSSHClient(host.RealSSHClient{}),
	}
	if binary != "" {
		opts = append(opts, host.WithBinary(binary))
	}
	if user != "" {
		opts = append(opts, host.WithUser(user))
	}
	if f.KnownHostsFile != "" {
		opts = append(opts, host.WithKnownHostsFile(f.KnownHostsFile))
	}

	prompted, err := a.readPasswords()
	if err != nil {
		return hostSettings{}, err
	}
	settings.options = append(opts, prompted...)

	return settings, nil
}

func appendUnique(list []string, values ...string) []string {
	seen := make(map[string]bool, len(list))
	for _, v := range list {
		seen[v] = true
	}
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			list = append(list, v)
		}
	}
	return list
}

func (a *app) readPasswords() ([]host.HostOption, error) {
	var opts []host.HostOption

	prompts := []struct {
		enabled bool
		label   string
		option  func(string) host.HostOption
	}{
		{a.flags.PasswordPrompt, "Enter the password: ", host.WithPassword},
		{a.flags.KeyPassPrompt, "Enter the key passphrase: ", host.WithKeyPassphrase},
		{a.flags.SudoPasswordPrompt, "Enter the sudo password: ", host.WithSudoPassword},
	}

	for _, p := range prompts {
		if !p.enabled {
			continue
		}
		fmt.Fprint(os.Stderr, p.label)
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", strings.TrimSuffix(strings.ToLower(p.label), ": "), err)
		}
		if len(secret) > 0 {
			opts = append(opts, p.option(string(secret)))
		}
	}
	return opts, nil
}

// buildHostGroup connects every host. A host that cannot be set up is
// reported as a failed result and left out of the group.
func (a *app) buildHostGroup(ctx context.Context, settings hostSettings) (*hostgroup.HostGroup, []hostgroup.HostResult, error) {
	hg := hostgroup.NewHostGroup()
	var failures []hostgroup.HostResult
	var errs *multierror.Error

	for _, hostname := range settings.hostnames {
		a.log.WithField("host", hostname).Debug("Adding host")
		h, err := a.newHost(ctx, hostname, settings.options...)
		if err != nil {
			a.log.WithField("host", hostname).WithError(err).Error("Failed to set up host")
			failures = append(failures, hostgroup.HostResult{
				Hostname: hostname,
				Result:   reconcile.Result{Failed: true, Msg: err.Error()},
				Err:      err,
			})
			errs = multierror.Append(errs, fmt.Errorf("host %s: %w", hostname, err))
			continue
		}
		hg.AddHost(h)
	}

	return hg, failures, errs.ErrorOrNil()
}

func (a *app) runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	req, err := a.buildRequest(cmd, args)
	if err != nil {
		return err
	}

	settings, err := a.resolveHosts(cmd)
	if err != nil {
		return err
	}

	hg, results, setupErr := a.buildHostGroup(ctx, settings)

	cfg := reconcile.Config{CheckMode: a.flags.Check, Diff: a.flags.Diff}
	a.log.WithFields(logrus.Fields{
		"hosts":       hg.Len(),
		"state":       req.State.String(),
		"check_mode":  cfg.CheckMode,
		"concurrency": settings.concurrency,
	}).Info("Reconciling packages")

	reconciled, runErr := hg.Reconcile(ctx, req, cfg, settings.concurrency)
	results = append(results, reconciled...)
	sort.Slice(results, func(i, j int) bool { return results[i].Hostname < results[j].Hostname })

	if err := a.writeResults(results); err != nil {
		return err
	}

	return multierror.Append(setupErr, runErr).ErrorOrNil()
}
