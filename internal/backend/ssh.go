// ssh.go - SSH sessions over golang.org/x/crypto/ssh
// Keyboard-interactive prompts become MFA challenges on the bus; the
// handshake blocks until the user answers through the gateway.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/TaylorChen/konnect/internal/session"
)

const (
	sshDialTimeout     = 30 * time.Second
	sshTermType        = "xterm-256color"
	keepAliveInterval  = 30 * time.Second
	keepAliveMaxMissed = 3
	knownHostsFileName = "known_hosts"
)

// sshSession is one connected SSH shell. Output from stdout and stderr is
// merged into a single pipe and pumped onto the bus.
type sshSession struct {
	id      string
	params  session.SSHParams
	manager *Manager

	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser

	outputReader *io.PipeReader
	outputWriter *io.PipeWriter

	ctx    context.Context
	cancel context.CancelFunc

	exitOnce  sync.Once
	closeOnce sync.Once
}

func newSSHSession(ctx context.Context, id string, params session.SSHParams, m *Manager) (*sshSession, error) {
	if params.Port == 0 {
		params.Port = 22
	}
	if params.Cols <= 0 {
		params.Cols = 80
	}
	if params.Rows <= 0 {
		params.Rows = 24
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &sshSession{
		id:      id,
		params:  params,
		manager: m,
		ctx:     sctx,
		cancel:  cancel,
	}

	if err := s.connect(ctx); err != nil {
		cancel()
		return nil, err
	}

	go s.readLoop()
	go s.monitorSession()
	go s.keepAlive()

	return s, nil
}

// connect dials, authenticates and opens the shell channel.
func (s *sshSession) connect(ctx context.Context) error {
	clientConfig, err := s.buildClientConfig()
	if err != nil {
		return fmt.Errorf("failed to build SSH config: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.params.Host, s.params.Port)
	log.Printf("SSH: connecting to %s as %s", addr, s.params.Username)

	dialer := net.Dialer{Timeout: sshDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	// Deadline covers the handshake, including any MFA round trip the user
	// is slow to answer.
	conn.SetDeadline(time.Now().Add(sshDialTimeout + challengeTimeout))

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SSH handshake failed: %w", err)
	}
	conn.SetDeadline(time.Time{})

	s.client = ssh.NewClient(sshConn, chans, reqs)

	if err := s.openShell(); err != nil {
		s.client.Close()
		s.client = nil
		return err
	}

	log.Printf("SSH: session %s connected to %s", s.id, addr)
	return nil
}

func (s *sshSession) buildClientConfig() (*ssh.ClientConfig, error) {
	authMethods, err := s.buildAuthMethods()
	if err != nil {
		return nil, err
	}
	if len(authMethods) == 0 {
		return nil, errors.New("no authentication methods available")
	}

	hostKeyCallback, err := buildHostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            s.params.Username,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         sshDialTimeout,
		// Include older kex algorithms for legacy network devices.
		Config: ssh.Config{
			KeyExchanges: []string{
				"curve25519-sha256",
				"curve25519-sha256@libssh.org",
				"ecdh-sha2-nistp256",
				"ecdh-sha2-nistp384",
				"ecdh-sha2-nistp521",
				"diffie-hellman-group14-sha256",
				"diffie-hellman-group14-sha1",
			},
		},
	}, nil
}

// buildAuthMethods maps the configured auth variant to SSH auth methods.
// Keyboard-interactive is always appended so servers requiring MFA after a
// partial success can continue the exchange.
func (s *sshSession) buildAuthMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	var password string

	switch auth := s.params.Auth.(type) {
	case session.PasswordAuth:
		password = auth.Secret
		methods = append(methods, ssh.Password(auth.Secret))
		log.Printf("SSH: added password authentication")

	case session.PublicKeyAuth:
		keyAuth, err := publicKeyAuth(auth)
		if err != nil {
			return nil, err
		}
		methods = append(methods, keyAuth)
		log.Printf("SSH: added public key authentication")

	case session.AgentAuth:
		if agentAuth := agentAuthMethod(); agentAuth != nil {
			methods = append(methods, agentAuth)
			log.Printf("SSH: added SSH agent authentication")
		}

	case nil:
		// Keyboard-interactive only.

	default:
		return nil, fmt.Errorf("unsupported auth variant %T", auth)
	}

	methods = append(methods, ssh.KeyboardInteractive(s.keyboardInteractive(password)))
	return methods, nil
}

// keyboardInteractive bridges server prompts to the UI through the bus.
// Prompts that just re-ask for a configured password are answered without
// bothering the user.
func (s *sshSession) keyboardInteractive(password string) ssh.KeyboardInteractiveChallenge {
	return func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		log.Printf("SSH: keyboard-interactive for %s: instruction=%q, questions=%d",
			s.id, instruction, len(questions))

		if len(questions) == 0 {
			return nil, nil
		}

		if len(questions) == 1 && password != "" &&
			strings.Contains(strings.ToLower(questions[0]), "password") {
			return []string{password}, nil
		}

		prompts := make([]session.Prompt, len(questions))
		for i, q := range questions {
			prompts[i] = session.Prompt{Text: q, Echo: echos[i]}
		}

		responses, err := s.manager.awaitChallenge(s.id, session.Challenge{
			SessionID:    s.id,
			Name:         user,
			Instructions: instruction,
			Prompts:      prompts,
		})
		if err != nil {
			return nil, err
		}
		if len(responses) != len(questions) {
			return nil, fmt.Errorf("expected %d responses, got %d", len(questions), len(responses))
		}
		return responses, nil
	}
}

// publicKeyAuth loads and parses the private key, expanding ~ in the path.
func publicKeyAuth(auth session.PublicKeyAuth) (ssh.AuthMethod, error) {
	keyPath := auth.Path
	if strings.HasPrefix(keyPath, "~/") {
		homeDir, _ := os.UserHomeDir()
		keyPath = filepath.Join(homeDir, keyPath[2:])
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", keyPath, err)
	}

	var signer ssh.Signer
	if auth.Passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(auth.Passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return ssh.PublicKeys(signer), nil
}

// agentAuthMethod returns agent-backed auth when SSH_AUTH_SOCK points at a
// reachable agent, nil otherwise.
func agentAuthMethod() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		log.Printf("SSH: could not connect to SSH agent: %v", err)
		return nil
	}

	// The agent connection stays open for the lifetime of the auth; it is
	// cleaned up when the process exits.
	agentClient := agent.NewClient(conn)
	return ssh.PublicKeysCallback(agentClient.Signers)
}

// buildHostKeyCallback verifies against known_hosts, creating the file on
// first use and accepting unknown hosts with a log line.
func buildHostKeyCallback() (ssh.HostKeyCallback, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Printf("SSH: WARNING - no home directory, host key verification disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	knownHostsPath := filepath.Join(homeDir, ".ssh", knownHostsFileName)

	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(knownHostsPath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create .ssh directory: %w", err)
		}
		if err := os.WriteFile(knownHostsPath, []byte{}, 0600); err != nil {
			return nil, fmt.Errorf("failed to create known_hosts file: %w", err)
		}
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := callback(hostname, remote, key)
		if err != nil {
			var keyErr *knownhosts.KeyError
			if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
				// Unknown host. Accept and log; a mismatch on a known host
				// still fails hard below.
				log.Printf("SSH: accepting unknown host key for %s", hostname)
				return nil
			}
		}
		return err
	}, nil
}

// openShell requests a PTY and starts the remote shell.
func (s *sshSession) openShell() error {
	sess, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
		ssh.VINTR:         3,   // Ctrl+C
		ssh.VERASE:        127, // Backspace
		ssh.VKILL:         21,  // Ctrl+U
		ssh.VEOF:          4,   // Ctrl+D
		ssh.VSUSP:         26,  // Ctrl+Z
	}

	if err := sess.RequestPty(sshTermType, s.params.Rows, s.params.Cols, modes); err != nil {
		sess.Close()
		return fmt.Errorf("failed to request PTY: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	s.outputReader, s.outputWriter = io.Pipe()
	go io.Copy(s.outputWriter, stdout)
	go io.Copy(s.outputWriter, stderr)

	if err := sess.Shell(); err != nil {
		sess.Close()
		return fmt.Errorf("failed to start shell: %w", err)
	}

	s.sess = sess
	s.stdin = stdin
	return nil
}

// readLoop pumps merged output onto the bus.
func (s *sshSession) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := s.outputReader.Read(buf)
		if n > 0 {
			s.manager.bus.PublishOutput(s.id, string(buf[:n]))
		}
		if err != nil {
			if err != io.EOF && !strings.Contains(err.Error(), "closed") {
				log.Printf("SSH: session %s read error: %v", s.id, err)
			}
			return
		}
	}
}

// monitorSession waits for the remote shell to end and publishes the exit
// event exactly once.
func (s *sshSession) monitorSession() {
	err := s.sess.Wait()
	log.Printf("SSH: session %s ended: %v", s.id, err)

	if s.outputWriter != nil {
		s.outputWriter.Close()
	}
	s.publishExit()
}

func (s *sshSession) publishExit() {
	s.exitOnce.Do(func() {
		s.manager.bus.PublishExit(s.id)
	})
}

// keepAlive pings the server and force-closes after too many misses.
func (s *sshSession) keepAlive() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-ticker.C:
			_, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil)
			if err != nil {
				missed++
				log.Printf("SSH: session %s keepalive failed (%d/%d): %v",
					s.id, missed, keepAliveMaxMissed, err)
				if missed >= keepAliveMaxMissed {
					log.Printf("SSH: session %s lost, closing", s.id)
					s.close()
					return
				}
			} else {
				missed = 0
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *sshSession) write(data []byte) error {
	if s.stdin == nil {
		return errors.New("not connected")
	}
	_, err := s.stdin.Write(data)
	return err
}

func (s *sshSession) resize(cols, rows int) error {
	if s.sess == nil {
		return errors.New("not connected")
	}
	return s.sess.WindowChange(rows, cols)
}

func (s *sshSession) close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()

		if s.sess != nil {
			s.sess.Close()
		}
		if s.client != nil {
			err = s.client.Close()
		}
		if s.outputWriter != nil {
			s.outputWriter.Close()
		}
		if s.outputReader != nil {
			s.outputReader.Close()
		}
		s.publishExit()
	})
	return err
}
