package hostmanager

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"

	cm "github.com/steelcutops/pacstate/pacstate/commandmanager"
)

const osReleasePath = "/etc/os-release"

type UnixHostManager struct {
	CommandManager cm.CommandManager
}

// Info gathers the hostname, kernel and distribution of the host.
func (uhm *UnixHostManager) Info(ctx context.Context) (HostInfo, error) {
	hostname, err := uhm.Hostname(ctx)
	if err != nil {
		return HostInfo{}, err
	}

	kernel, err := uhm.output(ctx, cm.CommandConfig{Command: "uname", Args: []string{"-r"}})
	if err != nil {
		return HostInfo{}, err
	}

	osRelease, err := uhm.CommandManager.Run(ctx, cm.CommandConfig{Command: "cat", Args: []string{osReleasePath}})
	if err != nil {
		return HostInfo{}, err
	}

	info := parseOSRelease(osRelease.STDOUT)
	info.Hostname = hostname
	info.KernelVersion = kernel
	return info, nil
}

func (uhm *UnixHostManager) Hostname(ctx context.Context) (string, error) {
	return uhm.output(ctx, cm.CommandConfig{Command: "hostname"})
}

// LookPath resolves name through the login shell of the host, which works
// the same way locally and over SSH.
func (uhm *UnixHostManager) LookPath(ctx context.Context, name string) (string, error) {
	result, err := uhm.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "sh",
		Args:    []string{"-c", "command -v " + shellquote.Join(name)},
	})
	if err != nil {
		return "", err
	}

	path := strings.TrimSpace(result.STDOUT)
	if result.Failed() || path == "" {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return path, nil
}

func (uhm *UnixHostManager) output(ctx context.Context, config cm.CommandConfig) (string, error) {
	result, err := uhm.CommandManager.Run(ctx, config)
	if err != nil {
		return "", err
	}
	if result.Failed() {
		return "", cm.NewCommandError(result)
	}
	return strings.TrimSpace(result.STDOUT), nil
}

// parseOSRelease reads the KEY=value lines of os-release(5). Missing keys
// leave the fields empty.
func parseOSRelease(content string) HostInfo {
	var info HostInfo
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || strings.HasPrefix(key, "#") {
			continue
		}
		if words, err := shellquote.Split(value); err == nil {
			value = strings.Join(words, " ")
		}

		switch key {
		case "ID":
			info.OSID = strings.ToLower(value)
		case "ID_LIKE":
			info.OSLike = strings.Fields(strings.ToLower(value))
		case "PRETTY_NAME":
			info.PrettyName = value
		}
	}
	return info
}
