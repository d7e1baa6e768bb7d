package commandmanager

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/steelcutops/pacstate/common"
	"github.com/steelcutops/pacstate/logger"
)

const defaultDialTimeout = 15 * time.Minute

type SSHDialer interface {
	Dial(network, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error)
}

type UnixCommandManager struct {
	Hostname  string
	SSHClient SSHDialer
	common.Credentials

	// KnownHostsFile enables host key verification for remote hosts.
	// When empty, host keys are not checked.
	KnownHostsFile string
	Logger         logrus.FieldLogger
}

func (u *UnixCommandManager) log() logrus.FieldLogger {
	if u.Logger == nil {
		return logger.Discard()
	}
	return u.Logger
}

func (u *UnixCommandManager) RunLocal(ctx context.Context, config CommandConfig) (CommandResult, error) {
	start := time.Now()

	name, args, stdin := u.localCommand(config)
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	if len(config.Env) > 0 {
		cmd.Env = append(os.Environ(), config.Env...)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := CommandResult{
		Command:   config.String(),
		STDOUT:    stdout.String(),
		STDERR:    stderr.String(),
		ExitCode:  getExitCode(err),
		Duration:  time.Since(start),
		Timestamp: start,
	}

	u.log().WithFields(logrus.Fields{
		"command":   result.Command,
		"exit_code": result.ExitCode,
		"duration":  result.Duration,
	}).Debug("Local command finished")

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	if sudoErr := checkSudoOutput(config, result); sudoErr != nil {
		return result, sudoErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return result, nil
	}
	return result, err
}

func (u *UnixCommandManager) localCommand(config CommandConfig) (string, []string, io.Reader) {
	if !config.Sudo {
		return config.Command, config.Args, nil
	}

	var args []string
	var stdin io.Reader
	if u.SudoPassword != "" {
		args = []string{"-S", "-p", ""}
		stdin = strings.NewReader(u.SudoPassword + "\n")
	} else {
		args = []string{"-n"}
	}
	// sudo resets the environment, so the command's variables go through env(1).
	if len(config.Env) > 0 {
		args = append(args, "env")
		args = append(args, config.Env...)
	}
	args = append(args, config.Command)
	args = append(args, config.Args...)
	return "sudo", args, stdin
}

func (u *UnixCommandManager) remoteCommand(config CommandConfig) (string, io.Reader) {
	var parts []string
	var stdin io.Reader

	if config.Sudo {
		if u.SudoPassword != "" {
			parts = append(parts, "sudo", "-S", "-p", "")
			stdin = strings.NewReader(u.SudoPassword + "\n")
		} else {
			parts = append(parts, "sudo", "-n")
		}
	}
	if len(config.Env) > 0 {
		parts = append(parts, "env")
		parts = append(parts, config.Env...)
	}
	parts = append(parts, config.Command)
	parts = append(parts, config.Args...)

	return shellquote.Join(parts...), stdin
}

func (u *UnixCommandManager) getSSHConfig() (*ssh.ClientConfig, error) {
	var authMethod ssh.AuthMethod

	if u.Password != "" {
		u.log().WithField("hostname", u.Hostname).Debug("Using password authentication")
		authMethod = ssh.Password(u.Password)
	} else {
		u.log().WithField("hostname", u.Hostname).Debug("Using public key authentication")
		var keyManager SSHKeyManager
		if u.KeyPassphrase != "" {
			keyManager = FileSSHKeyManager{}
		} else {
			keyManager = AgentSSHKeyManager{}
		}

		keys, err := keyManager.ReadPrivateKeys(u.KeyPassphrase)
		if err != nil && u.KeyPassphrase == "" {
			// No agent available, fall back to unencrypted key files.
			keys, err = FileSSHKeyManager{}.ReadPrivateKeys("")
		}
		if err != nil {
			return nil, err
		}

		authMethod = ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			return keys, nil
		})
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if u.KnownHostsFile != "" {
		cb, err := knownhosts.New(u.KnownHostsFile)
		if err != nil {
			return nil, err
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            u.User,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: hostKeyCallback,
	}, nil
}

func (u *UnixCommandManager) RunRemote(ctx context.Context, config CommandConfig) (CommandResult, error) {
	u.log().WithFields(logrus.Fields{"hostname": u.Hostname, "command": config.String()}).Debug("Executing remote command")

	if u.SSHClient == nil {
		return CommandResult{}, errors.New("SSHClient is not initialized")
	}

	sshConfig, err := u.getSSHConfig()
	if err != nil {
		return CommandResult{}, err
	}

	dialTimeout := defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		dialTimeout = time.Until(deadline)
	}

	client, err := u.SSHClient.Dial("tcp", sshAddress(u.Hostname), sshConfig, dialTimeout)
	if err != nil {
		return CommandResult{}, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return CommandResult{}, err
	}
	defer session.Close()

	cmdStr, stdin := u.remoteCommand(config)
	if stdin != nil {
		session.Stdin = stdin
	}

	var stdout, stderr strings.Builder
	session.Stdout = &stdout
	session.Stderr = &stderr

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmdStr)
	}()

	select {
	case runErr := <-done:
		result := CommandResult{
			Command:   config.String(),
			STDOUT:    stdout.String(),
			STDERR:    stderr.String(),
			ExitCode:  getExitCode(runErr),
			Duration:  time.Since(start),
			Timestamp: start,
		}

		u.log().WithFields(logrus.Fields{
			"hostname":  u.Hostname,
			"command":   result.Command,
			"exit_code": result.ExitCode,
		}).Debug("Remote command finished")

		if sudoErr := checkSudoOutput(config, result); sudoErr != nil {
			return result, sudoErr
		}

		var exitErr *ssh.ExitError
		if runErr != nil && !errors.As(runErr, &exitErr) {
			return result, runErr
		}
		return result, nil

	case <-ctx.Done():
		u.log().WithFields(logrus.Fields{"hostname": u.Hostname, "command": cmdStr}).Error("Command over SSH timed out")
		_ = session.Signal(ssh.SIGKILL)
		return CommandResult{Command: config.String()}, ctx.Err()
	}
}

func (u *UnixCommandManager) Run(ctx context.Context, config CommandConfig) (CommandResult, error) {
	if u.isLocal() {
		return u.RunLocal(ctx, config)
	}
	return u.RunRemote(ctx, config)
}

func (u *UnixCommandManager) isLocal() bool {
	switch u.Hostname {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func sshAddress(hostname string) string {
	if _, _, err := net.SplitHostPort(hostname); err == nil {
		return hostname
	}
	return net.JoinHostPort(hostname, "22")
}

// checkSudoOutput looks for sudo's own diagnostics, which it writes to stderr.
func checkSudoOutput(config CommandConfig, result CommandResult) error {
	if !config.Sudo {
		return nil
	}
	output := result.STDERR
	if strings.Contains(output, "incorrect password") {
		return errors.New("sudo: incorrect password provided")
	}
	if strings.Contains(output, "is not in the sudoers file") {
		return errors.New("sudo: user is not in the sudoers file")
	}
	if strings.Contains(output, "a password is required") {
		return errors.New("sudo: a password is required")
	}
	return nil
}

func getExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	var sshExitErr *ssh.ExitError
	if errors.As(err, &sshExitErr) {
		return sshExitErr.ExitStatus()
	}

	return -1
}
