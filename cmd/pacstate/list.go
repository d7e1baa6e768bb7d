package main

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/cobra"

	"github.com/steelcutops/pacstate/pacstate/host"
	"github.com/steelcutops/pacstate/pacstate/packagemanager"
)

type inventoryReport struct {
	Host     string                   `json:"host"`
	Packages []string                 `json:"packages,omitempty"`
	Upgrades []packagemanager.Upgrade `json:"upgrades,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

func (a *app) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.inventory(cmd, func(ctx context.Context, h *host.Host, r *inventoryReport) error {
				packages, err := h.PackageManager.ListPackages(ctx)
				if err != nil {
					return fmt.Errorf("failed to list packages: %w", err)
				}
				r.Packages = packages
				return nil
			})
		},
	}
}

func (a *app) newUpgradableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upgradable",
		Short: "List packages with a pending upgrade",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.inventory(cmd, func(ctx context.Context, h *host.Host, r *inventoryReport) error {
				upgrades, err := h.PackageManager.UpgradePreview(ctx)
				if err != nil {
					return fmt.Errorf("failed to check upgrades: %w", err)
				}
				r.Upgrades = upgrades
				return nil
			})
		},
	}
}

// inventory runs a read-only action on every host and prints one report per host.
func (a *app) inventory(cmd *cobra.Command, action func(ctx context.Context, h *host.Host, r *inventoryReport) error) error {
	ctx := cmd.Context()

	settings, err := a.resolveHosts(cmd)
	if err != nil {
		return err
	}

	hg, failures, setupErr := a.buildHostGroup(ctx, settings)

	var mu sync.Mutex
	reports := make([]inventoryReport, 0, len(settings.hostnames))
	for _, f := range failures {
		reports = append(reports, inventoryReport{Host: f.Hostname, Error: f.Result.Msg})
	}

	runErr := hg.Each(ctx, settings.concurrency, func(ctx context.Context, h *host.Host) error {
		report := inventoryReport{Host: h.Hostname}
		err := action(ctx, h, &report)
		if err != nil {
			report.Error = err.Error()
		}

		mu.Lock()
		reports = append(reports, report)
		mu.Unlock()
		return err
	})

	sort.Slice(reports, func(i, j int) bool { return reports[i].Host < reports[j].Host })

	if a.flags.Output == "text" {
		for _, r := range reports {
			a.writeInventoryText(r)
		}
	} else if err := writeJSON(a.out, reports); err != nil {
		return err
	}

	if setupErr != nil {
		return setupErr
	}
	return runErr
}

func (a *app) writeInventoryText(r inventoryReport) {
	if r.Error != "" {
		fmt.Fprintf(a.out, "%s: [%s] %s\n", r.Host, statusFailed.Sprint("failed"), r.Error)
		return
	}
	fmt.Fprintf(a.out, "%s:\n", r.Host)
	for _, p := range r.Packages {
		fmt.Fprintf(a.out, "  %s\n", p)
	}
	for _, u := range r.Upgrades {
		fmt.Fprintf(a.out, "  %s %s -> %s\n", u.Name, u.OldVersion, u.NewVersion)
	}
}
