package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/steelcutops/pacstate/logger"
	"github.com/steelcutops/pacstate/pacstate/packagemanager"
)

// Reconciler brings one host's packages into the requested state. It runs
// every command sequentially and keeps no state between runs.
type Reconciler struct {
	PackageManager packagemanager.PackageManager
	Config         Config
	Logger         logrus.FieldLogger
}

func New(pm packagemanager.PackageManager, cfg Config, log logrus.FieldLogger) *Reconciler {
	return &Reconciler{PackageManager: pm, Config: cfg, Logger: log}
}

func (r *Reconciler) log() logrus.FieldLogger {
	if r.Logger == nil {
		return logger.Discard()
	}
	return r.Logger
}

// Run executes the request. On a fatal error the returned Result has Failed
// set and Changed reports whether any mutation completed before the failure.
func (r *Reconciler) Run(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return fail(Result{}, err)
	}

	log := r.log().WithFields(logrus.Fields{"state": req.State.String(), "check_mode": r.Config.CheckMode})

	if req.UpdateCache {
		if r.Config.CheckMode {
			if !req.hasPackageWork() {
				return Result{Changed: true, Msg: "Would have updated the package cache"}, nil
			}
		} else {
			log.WithField("force", req.Force).Info("Refreshing package database")
			if err := r.PackageManager.RefreshDatabase(ctx, req.Force); err != nil {
				return fail(Result{}, &PackageError{Kind: ErrMetadataRefresh, Err: err})
			}
			if !req.hasPackageWork() {
				return Result{Changed: true, Msg: "Updated the package master lists"}, nil
			}
		}
	}

	var result Result
	if req.Upgrade {
		upgraded, err := r.upgrade(ctx)
		if err != nil {
			return upgraded, err
		}
		result = upgraded
	}

	if len(req.Names) > 0 {
		packages, err := r.reconcilePackages(ctx, req)
		result = result.merge(packages)
		if err != nil {
			result.Failed = true
			return result, err
		}
	}

	log.WithFields(logrus.Fields{"changed": result.Changed, "msg": result.Msg}).Info("Reconciliation finished")
	return result, nil
}

func fail(partial Result, err error) (Result, error) {
	partial.Failed = true
	partial.Msg = err.Error()
	return partial, err
}

func (r *Reconciler) reconcilePackages(ctx context.Context, req Request) (Result, error) {
	names, err := r.PackageManager.ExpandGroups(ctx, req.Names)
	if err != nil {
		return fail(Result{}, &PackageError{Kind: ErrQuery, Packages: req.Names, Err: err})
	}
	refs := Classify(names)

	if req.State == StateAbsent && !r.Config.CheckMode {
		return r.remove(ctx, refs, packagemanager.RemoveOptions{Recurse: req.Recurse, Force: req.Force})
	}

	steps, err := r.plan(ctx, refs, req.State)
	if err != nil {
		return fail(Result{}, err)
	}

	var warnings []Warning
	for _, step := range steps {
		if step.stale(req.State) {
			r.log().WithField("package", step.Ref.Name).Warn("Remote version could not be fetched")
			warnings = append(warnings, Warning{Package: step.Ref.Name, Message: "remote version could not be fetched"})
		}
	}

	if r.Config.CheckMode {
		return r.predict(steps, req.State, warnings), nil
	}
	return r.install(ctx, steps, warnings)
}

// predict reports the planned actions as if they had been executed.
func (r *Reconciler) predict(steps []Step, state DesiredState, warnings []Warning) Result {
	var changing []string
	for _, step := range steps {
		if step.Action != ActionSkip {
			changing = append(changing, step.Ref.Name)
		}
	}

	diff := &diffLines{}
	if len(changing) == 0 {
		return Result{
			Msg:      joinMessages(fmt.Sprintf("package(s) already %s", state), staleAdvisory(warnings)),
			Diff:     diff.render(r.Config.Diff),
			Warnings: warnings,
		}
	}

	verb := "installed"
	if state == StateAbsent {
		verb = "removed"
		diff.beforeHeader = "removed"
		diff.before = changing
	} else {
		diff.afterHeader = "installed"
		diff.after = changing
	}

	return Result{
		Changed:  true,
		Msg:      joinMessages(fmt.Sprintf("%d package(s) would be %s", len(changing), verb), staleAdvisory(warnings)),
		Count:    len(changing),
		Packages: changing,
		Diff:     diff.render(r.Config.Diff),
		Warnings: warnings,
	}
}

// install runs all repository installs as one transaction, then all file
// installs as a second one. A failed transaction stops the run.
func (r *Reconciler) install(ctx context.Context, steps []Step, warnings []Warning) (Result, error) {
	var repoNames, repoRefs, files, fileRefs []string
	for _, step := range steps {
		switch step.Action {
		case ActionInstall:
			repoNames = append(repoNames, step.Ref.Name)
			repoRefs = append(repoRefs, step.Ref.Name)
		case ActionInstallFromFile:
			files = append(files, step.Ref.File)
			fileRefs = append(fileRefs, step.Ref.Name)
		}
	}

	diff := &diffLines{}
	var packages []string
	count := 0

	partial := func() Result {
		return Result{
			Changed:  count > 0,
			Count:    count,
			Packages: packages,
			Diff:     diff.render(r.Config.Diff),
			Warnings: warnings,
		}
	}

	if len(repoNames) > 0 {
		r.log().WithField("packages", strings.Join(repoNames, " ")).Info("Installing packages from repositories")
		installed, err := r.PackageManager.InstallFromRepos(ctx, repoNames)
		if err != nil {
			return fail(partial(), &PackageError{Kind: ErrInstall, Packages: repoNames, Err: err})
		}
		diff.after = append(diff.after, installed...)
		packages = append(packages, repoRefs...)
		count += len(repoNames)
	}

	if len(files) > 0 {
		r.log().WithField("files", strings.Join(files, " ")).Info("Installing packages from files")
		installed, err := r.PackageManager.InstallFromFiles(ctx, files)
		if err != nil {
			return fail(partial(), &PackageError{Kind: ErrInstall, Packages: files, Err: err})
		}
		diff.after = append(diff.after, installed...)
		packages = append(packages, fileRefs...)
		count += len(files)
	}

	result := partial()
	if count > 0 {
		result.Msg = joinMessages(fmt.Sprintf("installed %d package(s).", count), staleAdvisory(warnings))
	} else {
		result.Msg = joinMessages("package(s) already installed.", staleAdvisory(warnings))
	}
	return result, nil
}

// remove handles one package at a time so that a failure names its package.
// Each package is queried right before its removal because an earlier
// recursive removal may already have taken it. A failure reports no package
// list: what a cascade took before it is not known reliably.
func (r *Reconciler) remove(ctx context.Context, refs []PackageRef, opts packagemanager.RemoveOptions) (Result, error) {
	diff := &diffLines{}
	var packages []string

	for _, ref := range refs {
		step, err := r.planStep(ctx, ref, StateAbsent)
		if err != nil {
			return fail(Result{Changed: len(packages) > 0}, err)
		}
		if step.Action != ActionRemove {
			continue
		}

		r.log().WithFields(logrus.Fields{"package": ref.Name, "recurse": opts.Recurse, "force": opts.Force}).Info("Removing package")
		removed, err := r.PackageManager.Remove(ctx, ref.Name, opts)
		if err != nil {
			return fail(Result{Changed: len(packages) > 0}, &PackageError{Kind: ErrRemove, Packages: []string{ref.Name}, Err: err})
		}
		diff.before = append(diff.before, removed...)
		packages = append(packages, ref.Name)
	}

	result := Result{
		Changed:  len(packages) > 0,
		Count:    len(packages),
		Packages: packages,
		Diff:     diff.render(r.Config.Diff),
	}
	if result.Count > 0 {
		result.Msg = fmt.Sprintf("removed %d package(s)", result.Count)
	} else {
		result.Msg = "package(s) already absent"
	}
	return result, nil
}

// upgrade performs, or in check mode predicts, a full-system upgrade.
func (r *Reconciler) upgrade(ctx context.Context) (Result, error) {
	upgrades, err := r.PackageManager.UpgradePreview(ctx)
	if err != nil {
		if errors.Is(err, packagemanager.ErrMalformedUpgradeLine) {
			return fail(Result{}, &PackageError{Kind: ErrUpgradePreviewParse, Err: err})
		}
		return fail(Result{}, &PackageError{Kind: ErrQuery, Err: err})
	}

	if len(upgrades) == 0 {
		return Result{Msg: "Nothing to upgrade"}, nil
	}

	diff := &diffLines{}
	packages := make([]string, 0, len(upgrades))
	for _, u := range upgrades {
		packages = append(packages, u.Name)
		diff.before = append(diff.before, u.Name+"-"+u.OldVersion)
		diff.after = append(diff.after, u.Name+"-"+u.NewVersion)
	}

	result := Result{
		Changed:  true,
		Count:    len(upgrades),
		Packages: packages,
		Diff:     diff.render(r.Config.Diff),
	}

	if r.Config.CheckMode {
		result.Msg = fmt.Sprintf("%d package(s) would be upgraded", len(upgrades))
		return result, nil
	}

	r.log().WithField("count", len(upgrades)).Info("Upgrading system")
	if err := r.PackageManager.UpgradeAll(ctx); err != nil {
		return fail(Result{}, &PackageError{Kind: ErrUpgrade, Err: err})
	}

	result.Msg = "System upgraded"
	return result, nil
}
