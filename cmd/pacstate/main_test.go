package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steelcutops/pacstate/pacstate/host"
	"github.com/steelcutops/pacstate/pacstate/hostgroup"
	"github.com/steelcutops/pacstate/pacstate/packagemanager"
	"github.com/steelcutops/pacstate/pacstate/reconcile"
)

// fakePackageManager has "vim" installed and "git" available.
type fakePackageManager struct {
	mu        sync.Mutex
	installed map[string]bool
}

func newFakePackageManager() *fakePackageManager {
	return &fakePackageManager{installed: map[string]bool{"vim": true}}
}

func (f *fakePackageManager) ListPackages(ctx context.Context) ([]string, error) {
	return []string{"vim"}, nil
}

func (f *fakePackageManager) Query(ctx context.Context, name string) (packagemanager.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.installed[name] {
		return packagemanager.QueryResult{Installed: true, UpToDate: true}, nil
	}
	return packagemanager.QueryResult{}, nil
}

func (f *fakePackageManager) ExpandGroups(ctx context.Context, names []string) ([]string, error) {
	return names, nil
}

func (f *fakePackageManager) RefreshDatabase(ctx context.Context, force bool) error { return nil }

func (f *fakePackageManager) UpgradePreview(ctx context.Context) ([]packagemanager.Upgrade, error) {
	return []packagemanager.Upgrade{{Name: "vim", OldVersion: "9.0-1", NewVersion: "9.1-1"}}, nil
}

func (f *fakePackageManager) UpgradeAll(ctx context.Context) error { return nil }

func (f *fakePackageManager) InstallFromRepos(ctx context.Context, names []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		f.installed[n] = true
	}
	return names, nil
}

func (f *fakePackageManager) InstallFromFiles(ctx context.Context, paths []string) ([]string, error) {
	return nil, errors.New("not supported")
}

func (f *fakePackageManager) Remove(ctx context.Context, name string, opts packagemanager.RemoveOptions) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.installed, name)
	return []string{name}, nil
}

type testHarness struct {
	app     *app
	out     *bytes.Buffer
	mu      sync.Mutex
	created map[string]*host.Host
	failing map[string]error
}

func newHarness() *testHarness {
	out := &bytes.Buffer{}
	h := &testHarness{
		app:     newApp(out),
		out:     out,
		created: map[string]*host.Host{},
		failing: map[string]error{},
	}
	h.app.newHost = func(ctx context.Context, hostname string, options ...host.HostOption) (*host.Host, error) {
		if err, ok := h.failing[hostname]; ok {
			return nil, err
		}
		hst := &host.Host{Hostname: hostname}
		for _, option := range options {
			option(hst)
		}
		hst.PackageManager = newFakePackageManager()

		h.mu.Lock()
		h.created[hostname] = hst
		h.mu.Unlock()
		return hst, nil
	}
	return h
}

func (h *testHarness) run(args ...string) error {
	cmd := h.app.newRootCmd()
	cmd.SetArgs(args)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}

func decodeReports(t *testing.T, data []byte) []hostReport {
	t.Helper()
	var reports []hostReport
	require.NoError(t, json.Unmarshal(data, &reports))
	return reports
}

func TestReconcileJSONOutput(t *testing.T) {
	h := newHarness()

	err := h.run("--hostname", "b", "--hostname", "a", "-n", "vim,git", "--diff")
	require.NoError(t, err)

	reports := decodeReports(t, h.out.Bytes())
	require.Len(t, reports, 2)
	assert.Equal(t, "a", reports[0].Host)
	assert.Equal(t, "b", reports[1].Host)
	assert.True(t, reports[0].Changed)
	assert.Equal(t, "installed 1 package(s).", reports[0].Msg)
	assert.Equal(t, []string{"git"}, reports[0].Packages)
	require.NotNil(t, reports[0].Diff)
	assert.Equal(t, "git\n", reports[0].Diff.After)
}

func TestReconcileDefaultsToLocalhost(t *testing.T) {
	h := newHarness()

	require.NoError(t, h.run("vim"))

	reports := decodeReports(t, h.out.Bytes())
	require.Len(t, reports, 1)
	assert.Equal(t, "localhost", reports[0].Host)
	assert.False(t, reports[0].Changed)
}

func TestReconcileHostSetupFailure(t *testing.T) {
	h := newHarness()
	h.failing["broken"] = host.ErrBinaryNotFound

	err := h.run("--hostname", "ok", "--hostname", "broken", "-n", "git")
	require.Error(t, err)
	assert.True(t, errors.Is(err, host.ErrBinaryNotFound))

	reports := decodeReports(t, h.out.Bytes())
	require.Len(t, reports, 2)
	assert.Equal(t, "broken", reports[0].Host)
	assert.True(t, reports[0].Failed)
	assert.Equal(t, "ok", reports[1].Host)
	assert.True(t, reports[1].Changed)
}

func TestReconcileUsageError(t *testing.T) {
	h := newHarness()

	err := h.run("--state", "absent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, reconcile.ErrUsage))
	assert.Empty(t, h.created)

	err = h.run("-n", "vim", "--state", "purged")
	assert.True(t, errors.Is(err, reconcile.ErrUsage))

	err = h.run("-n", "vim", "--output", "yaml")
	assert.True(t, errors.Is(err, reconcile.ErrUsage))
}

func TestReconcileCheckMode(t *testing.T) {
	h := newHarness()

	require.NoError(t, h.run("-n", "vim", "--state", "absent", "--check"))

	reports := decodeReports(t, h.out.Bytes())
	require.Len(t, reports, 1)
	assert.Equal(t, "1 package(s) would be removed", reports[0].Msg)

	pm := h.created["localhost"].PackageManager.(*fakePackageManager)
	assert.True(t, pm.installed["vim"])
}

func TestReconcileTextOutput(t *testing.T) {
	color.NoColor = true
	h := newHarness()

	require.NoError(t, h.run("-n", "git", "--diff", "-o", "text"))

	out := h.out.String()
	assert.Contains(t, out, "localhost: [changed] installed 1 package(s).")
	assert.Contains(t, out, "+git")
	assert.Contains(t, out, "+++ after")
}

func TestInventoryDefaults(t *testing.T) {
	dir := t.TempDir()
	ini := filepath.Join(dir, "hosts.ini")
	require.NoError(t, os.WriteFile(ini, []byte("[defaults]\nbinary = yaourt\nsudo = true\nuser = admin\n\n[arch]\nbox = archbox\n"), 0o644))

	h := newHarness()
	require.NoError(t, h.run("--ini", ini, "-n", "vim"))

	hst := h.created["archbox"]
	require.NotNil(t, hst)
	assert.Equal(t, "yaourt", hst.Binary)
	assert.True(t, hst.Sudo)
	assert.Equal(t, "admin", hst.User)
	assert.NotContains(t, h.created, "localhost")

	h = newHarness()
	require.NoError(t, h.run("--ini", ini, "-n", "vim", "--bin", "pacman", "--sudo=false", "--username", "root"))
	hst = h.created["archbox"]
	assert.Equal(t, "pacman", hst.Binary)
	assert.False(t, hst.Sudo)
	assert.Equal(t, "root", hst.User)
}

func TestTaskFile(t *testing.T) {
	task := filepath.Join(t.TempDir(), "task.yaml")
	require.NoError(t, os.WriteFile(task, []byte("name: [vim]\nstate: absent\nrecurse: true\n"), 0o644))

	h := newHarness()
	cmd := h.app.newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--task", task, "--force"}))

	req, err := h.app.buildRequest(cmd, []string{"git"})
	require.NoError(t, err)
	assert.Equal(t, reconcile.Request{
		Names:   []string{"vim", "git"},
		State:   reconcile.StateAbsent,
		Recurse: true,
		Force:   true,
	}, req)

	require.NoError(t, cmd.ParseFlags([]string{"--state", "latest"}))
	req, err = h.app.buildRequest(cmd, nil)
	require.NoError(t, err)
	assert.Equal(t, reconcile.StateLatest, req.State)
}

func TestListCommand(t *testing.T) {
	h := newHarness()
	h.failing["down"] = errors.New("dial tcp: connection refused")

	err := h.run("list", "--hostname", "up", "--hostname", "down")
	require.Error(t, err)

	var reports []inventoryReport
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &reports))
	require.Len(t, reports, 2)
	assert.Equal(t, "down", reports[0].Host)
	assert.Contains(t, reports[0].Error, "connection refused")
	assert.Equal(t, []string{"vim"}, reports[1].Packages)
}

func TestUpgradableCommandText(t *testing.T) {
	color.NoColor = true
	h := newHarness()

	require.NoError(t, h.run("upgradable", "-o", "text"))
	assert.Equal(t, "localhost:\n  vim 9.0-1 -> 9.1-1\n", h.out.String())
}

func TestWriteTextWarningsAndFailure(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer

	writeText(&out, hostgroup.HostResult{
		Hostname: "a",
		Result: reconcile.Result{
			Msg:      "package(s) already latest",
			Warnings: []reconcile.Warning{{Package: "foo", Message: "remote version could not be fetched"}},
		},
	})
	writeText(&out, hostgroup.HostResult{Hostname: "b", Result: reconcile.Result{Failed: true, Msg: "failed to remove foo"}})

	assert.Equal(t, "a: [ok] package(s) already latest\n"+
		"  warning foo: remote version could not be fetched\n"+
		"b: [failed] failed to remove foo\n", out.String())
}

func TestColorizeDiffLine(t *testing.T) {
	color.NoColor = true
	assert.Equal(t, "+foo", colorizeDiffLine("+foo"))
	assert.Equal(t, "--- removed", colorizeDiffLine("--- removed"))
}
