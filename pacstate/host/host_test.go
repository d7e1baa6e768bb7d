package host

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cm "github.com/steelcutops/pacstate/pacstate/commandmanager"
	"github.com/steelcutops/pacstate/pacstate/packagemanager"
	"github.com/steelcutops/pacstate/pacstate/reconcile"
)

type MockCommandManager struct {
	Outputs map[string]string
	Err     error
	Calls   []cm.CommandConfig
}

func (m *MockCommandManager) Run(ctx context.Context, config cm.CommandConfig) (cm.CommandResult, error) {
	m.Calls = append(m.Calls, config)
	if m.Err != nil {
		return cm.CommandResult{}, m.Err
	}
	if output, exists := m.Outputs[config.String()]; exists {
		return cm.CommandResult{Command: config.String(), STDOUT: output}, nil
	}
	return cm.CommandResult{Command: config.String(), ExitCode: 1}, nil
}

func (m *MockCommandManager) RunLocal(ctx context.Context, config cm.CommandConfig) (cm.CommandResult, error) {
	return m.Run(ctx, config)
}

func (m *MockCommandManager) RunRemote(ctx context.Context, config cm.CommandConfig) (cm.CommandResult, error) {
	return m.Run(ctx, config)
}

func archHost() map[string]string {
	return map[string]string{
		"sh -c command -v pacman": "/usr/bin/pacman\n",
		"hostname":                "archbox\n",
		"uname -r":                "6.9.1-arch1-1\n",
		"cat /etc/os-release":     "ID=arch\n",
	}
}

func TestNewHost(t *testing.T) {
	mockCmd := &MockCommandManager{Outputs: archHost()}

	h, err := NewHost(context.Background(), "archbox",
		WithCommandManager(mockCmd),
		WithUser("admin"),
		WithSudo(true),
	)
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/pacman", h.Binary)
	assert.Equal(t, "admin", h.User)
	assert.Equal(t, "arch", h.Info.OSID)

	pm, ok := h.PackageManager.(*packagemanager.PacmanPackageManager)
	require.True(t, ok)
	assert.Equal(t, "/usr/bin/pacman", pm.Binary)
	assert.True(t, pm.Sudo)
}

func TestNewHostBinaryNotFound(t *testing.T) {
	mockCmd := &MockCommandManager{Outputs: archHost()}

	_, err := NewHost(context.Background(), "archbox", WithCommandManager(mockCmd), WithBinary("yaourt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBinaryNotFound))
	assert.Len(t, mockCmd.Calls, 1, "nothing runs after a failed lookup")
}

func TestNewHostUnreachable(t *testing.T) {
	mockCmd := &MockCommandManager{Err: errors.New("dial tcp: i/o timeout")}

	_, err := NewHost(context.Background(), "archbox", WithCommandManager(mockCmd))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBinaryNotFound))
	assert.Contains(t, err.Error(), "i/o timeout")
}

func TestNewHostWithoutFacts(t *testing.T) {
	mockCmd := &MockCommandManager{Outputs: map[string]string{
		"sh -c command -v yaourt": "/usr/bin/yaourt\n",
	}}

	h, err := NewHost(context.Background(), "archbox", WithCommandManager(mockCmd), WithBinary("yaourt"))
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/yaourt", h.Binary)
	assert.Empty(t, h.Info.OSID)
}

func TestNewHostDefaultCommandManager(t *testing.T) {
	h := &Host{Hostname: "remote"}
	WithPassword("secret")(h)
	WithKeyPassphrase("phrase")(h)
	WithSudoPassword("sudo")(h)
	WithKnownHostsFile("/tmp/known_hosts")(h)
	WithSSHClient(RealSSHClient{})(h)

	assert.Equal(t, "secret", h.Password)
	assert.Equal(t, "phrase", h.KeyPassphrase)
	assert.Equal(t, "sudo", h.SudoPassword)
	assert.Equal(t, "/tmp/known_hosts", h.KnownHostsFile)
	assert.NotNil(t, h.SSHClient)
}

func TestHostReconciler(t *testing.T) {
	mockCmd := &MockCommandManager{Outputs: archHost()}
	mockCmd.Outputs["/usr/bin/pacman -Qi vim"] = "Name : vim\nVersion : 9.1-1\n"

	h, err := NewHost(context.Background(), "archbox", WithCommandManager(mockCmd))
	require.NoError(t, err)

	result, err := h.Reconciler(reconcile.Config{}).Run(context.Background(), reconcile.Request{Names: []string{"vim"}})
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, "package(s) already installed.", result.Msg)
}
