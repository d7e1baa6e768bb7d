package packagemanager

import "context"

// QueryResult is the installation status of one package on the host.
//
// RemoteLookupFailed is only meaningful when Installed is true; UpToDate is
// then optimistically true because the repository version is unknown.
type QueryResult struct {
	Installed          bool
	UpToDate           bool
	RemoteLookupFailed bool
	LocalVersion       string
	RemoteVersion      string
}

// Upgrade is one entry of a full-system upgrade preview.
type Upgrade struct {
	Name       string `json:"name"`
	OldVersion string `json:"old_version"`
	NewVersion string `json:"new_version"`
}

// RemoveOptions selects the cascade policy of a removal.
type RemoveOptions struct {
	Recurse bool
	Force   bool
}

type PackageManager interface {
	ListPackages(ctx context.Context) ([]string, error)
	Query(ctx context.Context, name string) (QueryResult, error)
	ExpandGroups(ctx context.Context, names []string) ([]string, error)

	RefreshDatabase(ctx context.Context, force bool) error
	UpgradePreview(ctx context.Context) ([]Upgrade, error)
	UpgradeAll(ctx context.Context) error

	// Install methods return the package names reported by the transaction.
	InstallFromRepos(ctx context.Context, names []string) ([]string, error)
	InstallFromFiles(ctx context.Context, paths []string) ([]string, error)
	Remove(ctx context.Context, name string, opts RemoveOptions) ([]string, error)
}
