package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/steelcutops/pacstate/pacstate/packagemanager"
)

// MockPackageManager is a testify mock; ctx is not part of the expectations.
type MockPackageManager struct {
	mock.Mock
}

func stringsArg(args mock.Arguments, i int) []string {
	if v := args.Get(i); v != nil {
		return v.([]string)
	}
	return nil
}

func (m *MockPackageManager) ListPackages(ctx context.Context) ([]string, error) {
	args := m.Called()
	return stringsArg(args, 0), args.Error(1)
}

func (m *MockPackageManager) Query(ctx context.Context, name string) (packagemanager.QueryResult, error) {
	args := m.Called(name)
	return args.Get(0).(packagemanager.QueryResult), args.Error(1)
}

func (m *MockPackageManager) ExpandGroups(ctx context.Context, names []string) ([]string, error) {
	args := m.Called(names)
	return stringsArg(args, 0), args.Error(1)
}

func (m *MockPackageManager) RefreshDatabase(ctx context.Context, force bool) error {
	return m.Called(force).Error(0)
}

func (m *MockPackageManager) UpgradePreview(ctx context.Context) ([]packagemanager.Upgrade, error) {
	args := m.Called()
	var upgrades []packagemanager.Upgrade
	if v := args.Get(0); v != nil {
		upgrades = v.([]packagemanager.Upgrade)
	}
	return upgrades, args.Error(1)
}

func (m *MockPackageManager) UpgradeAll(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *MockPackageManager) InstallFromRepos(ctx context.Context, names []string) ([]string, error) {
	args := m.Called(names)
	return stringsArg(args, 0), args.Error(1)
}

func (m *MockPackageManager) InstallFromFiles(ctx context.Context, paths []string) ([]string, error) {
	args := m.Called(paths)
	return stringsArg(args, 0), args.Error(1)
}

func (m *MockPackageManager) Remove(ctx context.Context, name string, opts packagemanager.RemoveOptions) ([]string, error) {
	args := m.Called(name, opts)
	return stringsArg(args, 0), args.Error(1)
}

// fakePacman is an in-memory package database that records every mutation.
type fakePacman struct {
	installed      map[string]string
	repo           map[string]string
	groups         map[string][]string
	remoteDown     map[string]bool
	upgrades       []packagemanager.Upgrade
	previewErr     error
	failRefresh    bool
	failRemove     map[string]bool
	mutations      []string
	queries        []string
	refreshedFirst bool
}

func newFakePacman() *fakePacman {
	return &fakePacman{
		installed:  map[string]string{},
		repo:       map[string]string{},
		groups:     map[string][]string{},
		remoteDown: map[string]bool{},
		failRemove: map[string]bool{},
	}
}

func (f *fakePacman) ListPackages(ctx context.Context) ([]string, error) {
	var names []string
	for name := range f.installed {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakePacman) Query(ctx context.Context, name string) (packagemanager.QueryResult, error) {
	f.queries = append(f.queries, name)
	local, ok := f.installed[name]
	if !ok {
		return packagemanager.QueryResult{}, nil
	}
	if f.remoteDown[name] {
		return packagemanager.QueryResult{Installed: true, UpToDate: true, RemoteLookupFailed: true, LocalVersion: local}, nil
	}
	remote, ok := f.repo[name]
	if !ok {
		return packagemanager.QueryResult{Installed: true, UpToDate: true, RemoteLookupFailed: true, LocalVersion: local}, nil
	}
	return packagemanager.QueryResult{Installed: true, UpToDate: local == remote, LocalVersion: local, RemoteVersion: remote}, nil
}

func (f *fakePacman) ExpandGroups(ctx context.Context, names []string) ([]string, error) {
	var expanded []string
	for _, name := range names {
		if members, ok := f.groups[name]; ok {
			expanded = append(expanded, members...)
			continue
		}
		expanded = append(expanded, name)
	}
	return expanded, nil
}

func (f *fakePacman) RefreshDatabase(ctx context.Context, force bool) error {
	f.mutations = append(f.mutations, fmt.Sprintf("refresh force=%t", force))
	if len(f.queries) == 0 {
		f.refreshedFirst = true
	}
	if f.failRefresh {
		return fmt.Errorf("error: failed to synchronize all databases")
	}
	return nil
}

func (f *fakePacman) UpgradePreview(ctx context.Context) ([]packagemanager.Upgrade, error) {
	return f.upgrades, f.previewErr
}

func (f *fakePacman) UpgradeAll(ctx context.Context) error {
	f.mutations = append(f.mutations, "upgrade")
	for _, u := range f.upgrades {
		f.installed[u.Name] = u.NewVersion
	}
	f.upgrades = nil
	return nil
}

func (f *fakePacman) InstallFromRepos(ctx context.Context, names []string) ([]string, error) {
	f.mutations = append(f.mutations, "install "+strings.Join(names, " "))
	for _, name := range names {
		if _, ok := f.repo[name]; !ok {
			return nil, fmt.Errorf("error: target not found: %s", name)
		}
	}
	for _, name := range names {
		f.installed[name] = f.repo[name]
	}
	return names, nil
}

func (f *fakePacman) InstallFromFiles(ctx context.Context, paths []string) ([]string, error) {
	f.mutations = append(f.mutations, "install-file "+strings.Join(paths, " "))
	var names []string
	for _, path := range paths {
		name := packagemanager.CanonicalName(path)
		f.installed[name] = "file"
		names = append(names, name)
	}
	return names, nil
}

func (f *fakePacman) Remove(ctx context.Context, name string, opts packagemanager.RemoveOptions) ([]string, error) {
	f.mutations = append(f.mutations, "remove "+name)
	if f.failRemove[name] {
		return nil, fmt.Errorf("error: failed to prepare transaction (could not satisfy dependencies)")
	}
	delete(f.installed, name)
	return []string{name}, nil
}
