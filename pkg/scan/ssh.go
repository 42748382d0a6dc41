package scan

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	sshagent "github.com/xanzy/ssh-agent"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sidkik/turbosync/pkg/config"
	"github.com/sidkik/turbosync/pkg/errors"
)

const (
	defaultDialTimeout = 5 * time.Second

	// defaultCommandTimeout bounds a remote search, including connecting.
	defaultCommandTimeout = 2 * time.Minute

	// connectionTestTimeout bounds the whole connection test, including the
	// remote command.
	connectionTestTimeout = 5 * time.Second
)

// defaultIdentityFiles are tried when no identity file is configured.
var defaultIdentityFiles = []string{"~/.ssh/id_ed25519", "~/.ssh/id_ecdsa", "~/.ssh/id_rsa"}

// Mocked for unit testing.
var (
	readFile   = os.ReadFile
	newAgent   = sshagent.New
	expandPath = homedir.Expand
)

// SSHLister runs `find` on the remote host.
type SSHLister struct {
	User           string
	Address        string
	IdentityFile   string
	KnownHostsFile string
	// DialTimeout bounds the TCP connect and the SSH handshake.
	DialTimeout time.Duration

	// CommandTimeout bounds a call to ListMarkerDirs.
	CommandTimeout time.Duration

	log logrus.FieldLogger
}

// NewSSHLister creates a lister for the remote configured in `cfg`.
func NewSSHLister(cfg config.App, log logrus.FieldLogger) *SSHLister {
	return &SSHLister{
		User:           cfg.Remote.User,
		Address:        cfg.SSHAddress(),
		IdentityFile:   cfg.Remote.IdentityFile,
		KnownHostsFile: cfg.Remote.KnownHostsFile,
		DialTimeout:    defaultDialTimeout,
		CommandTimeout: defaultCommandTimeout,
		log:            log,
	}
}

// ListMarkerDirs implements RemoteLister.
func (l *SSHLister) ListMarkerDirs(ctx context.Context, base, marker string) ([]string, error) {
	if l.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.CommandTimeout)
		defer cancel()
	}

	cmd := findCommand(base, marker)
	l.log.WithField("command", cmd).Debug("Searching remote tree for markers")

	stdout, stderr, err := l.run(ctx, cmd)
	if err != nil {
		return nil, errors.ScanError{Reason: err.Error(), Stderr: stderr}
	}
	return parseFindOutput(base, stdout), nil
}

// TestConnection checks that the remote host accepts our credentials and can
// run commands.
func (l *SSHLister) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectionTestTimeout)
	defer cancel()

	stdout, stderr, err := l.run(ctx, `echo "Connection successful"`)
	if err != nil {
		if stderr = strings.TrimSpace(stderr); stderr != "" {
			return errors.WithContext(err, stderr)
		}
		return err
	}
	if !strings.Contains(stdout, "Connection successful") {
		return errors.New("unexpected output from remote echo")
	}
	return nil
}

// findCommand builds the remote search command. The base path is single
// quoted so spaces and shell metacharacters survive.
func findCommand(base, marker string) string {
	return fmt.Sprintf("find %s -name %s -type f", shellQuote(base), shellQuote(marker))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// parseFindOutput maps every file printed by `find` to its containing
// directory. Relative results are rebased onto `base`.
func parseFindOutput(base, output string) []string {
	var dirs []string
	seen := map[string]struct{}{}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !path.IsAbs(line) {
			line = path.Join(base, line)
		}
		dir := path.Dir(path.Clean(line))
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}

func (l *SSHLister) run(ctx context.Context, cmd string) (string, string, error) {
	clientConfig, cleanup, err := l.clientConfig()
	if err != nil {
		return "", "", errors.WithContext(err, "configure ssh")
	}
	defer cleanup()

	dialer := net.Dialer{Timeout: l.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", l.Address)
	if err != nil {
		return "", "", errors.WithContext(err, "dial")
	}

	sshConn, chans, reqs, err := l.handshake(ctx, conn, clientConfig)
	if err != nil {
		return "", "", err
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	// Closing the client unblocks NewSession and session.Run.
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	session, err := client.NewSession()
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return "", "", errors.WithContext(err, "new session")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	err = session.Run(cmd)
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return stdout.String(), stderr.String(), err
}

// handshake runs the SSH handshake over `conn`. The handshake ignores the
// config's Timeout, so it's bounded by a deadline on the connection and by
// closing the connection if `ctx` ends first. `conn` is closed on failure.
func (l *SSHLister) handshake(ctx context.Context, conn net.Conn, clientConfig *ssh.ClientConfig) (
	ssh.Conn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {

	if l.DialTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(l.DialTimeout)); err != nil {
			conn.Close()
			return nil, nil, nil, errors.WithContext(err, "set handshake deadline")
		}
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, l.Address, clientConfig)
	interrupted := !stop()
	if err != nil {
		conn.Close()
		if interrupted {
			return nil, nil, nil, errors.WithContext(ctx.Err(), "handshake")
		}
		return nil, nil, nil, errors.WithContext(err, "handshake")
	}
	if interrupted {
		sshConn.Close()
		return nil, nil, nil, errors.WithContext(ctx.Err(), "handshake")
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		sshConn.Close()
		return nil, nil, nil, errors.WithContext(err, "clear handshake deadline")
	}
	return sshConn, chans, reqs, nil
}

func (l *SSHLister) clientConfig() (*ssh.ClientConfig, func(), error) {
	cleanup := func() {}
	var auths []ssh.AuthMethod

	if agent, conn, err := newAgent(); err == nil {
		auths = append(auths, ssh.PublicKeysCallback(agent.Signers))
		if conn != nil {
			cleanup = func() { conn.Close() }
		}
	} else {
		l.log.WithError(err).Debug("SSH agent unavailable")
	}

	if signers := l.loadIdentities(); len(signers) > 0 {
		auths = append(auths, ssh.PublicKeys(signers...))
	}

	if len(auths) == 0 {
		return nil, cleanup, errors.NewFriendlyError("No SSH credentials are "+
			"available for %s@%s.\nStart an ssh-agent with your key loaded, or "+
			"set remote.identityFile in the turbosync config.", l.User, l.Address)
	}

	knownHostsPath := l.KnownHostsFile
	if knownHostsPath == "" {
		knownHostsPath = "~/.ssh/known_hosts"
	}
	knownHostsPath, err := expandPath(knownHostsPath)
	if err != nil {
		return nil, cleanup, errors.WithContext(err, "expand known_hosts path")
	}
	hostKeyCallback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, cleanup, errors.WithContext(err, "load known hosts")
	}

	return &ssh.ClientConfig{
		User:            l.User,
		Auth:            auths,
		HostKeyCallback: hostKeyCallback,
		Timeout:         l.DialTimeout,
	}, cleanup, nil
}

// loadIdentities parses the configured identity file, or the default ones if
// none is configured. Unreadable or passphrase-protected keys are skipped;
// those are expected to be served by the agent.
func (l *SSHLister) loadIdentities() []ssh.Signer {
	paths := defaultIdentityFiles
	if l.IdentityFile != "" {
		paths = []string{l.IdentityFile}
	}

	var signers []ssh.Signer
	for _, p := range paths {
		expanded, err := expandPath(p)
		if err != nil {
			continue
		}

		pem, err := readFile(expanded)
		if err != nil {
			if !os.IsNotExist(err) || l.IdentityFile != "" {
				l.log.WithError(err).WithField("path", expanded).Debug("Failed to read SSH key")
			}
			continue
		}

		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			l.log.WithError(err).WithField("path", expanded).Debug("Failed to parse SSH key")
			continue
		}
		signers = append(signers, signer)
	}
	return signers
}
