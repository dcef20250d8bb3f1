// Package session coordinates the lifecycle of terminal sessions: it
// guarantees at most one live backend handle per session id, defers teardown
// across UI remounts, routes per-session events to the currently attached
// view, gates input on surface readiness, and correlates out-of-band MFA
// challenges to the right session.
//
// The package is backend-agnostic: all process/connection work happens behind
// the Gateway interface, and all inbound events arrive on a Bus.
package session

// Kind identifies the transport behind a session.
type Kind int

const (
	KindLocal Kind = iota
	KindSSH
	KindTelnet
	KindSerial
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindSSH:
		return "ssh"
	case KindTelnet:
		return "telnet"
	case KindSerial:
		return "serial"
	default:
		return "unknown"
	}
}

// Auth is the authentication configuration for a remote session. It is a
// closed set: PasswordAuth, PublicKeyAuth or AgentAuth.
type Auth interface {
	authLabel() string
}

// PasswordAuth authenticates with a plain password.
type PasswordAuth struct {
	Secret string
}

func (PasswordAuth) authLabel() string { return "password" }

// PublicKeyAuth authenticates with a private key file. Passphrase may be
// empty for unencrypted keys.
type PublicKeyAuth struct {
	Path       string
	Passphrase string
}

func (PublicKeyAuth) authLabel() string { return "publickey" }

// AgentAuth defers to a running SSH agent.
type AgentAuth struct{}

func (AgentAuth) authLabel() string { return "agent" }

// Params carries the backend creation parameters for one session kind.
type Params interface {
	Kind() Kind
}

// LocalParams describes a local shell session.
type LocalParams struct {
	Shell string // empty = $SHELL / platform default
	Cols  int
	Rows  int
}

func (LocalParams) Kind() Kind { return KindLocal }

// SSHParams describes a remote SSH session.
type SSHParams struct {
	Host     string
	Port     int
	Username string
	Auth     Auth
	Cols     int
	Rows     int
}

func (SSHParams) Kind() Kind { return KindSSH }

// Prompt is a single question inside an MFA challenge. Echo reports whether
// the user's answer may be displayed while typing.
type Prompt struct {
	Text string
	Echo bool
}

// Challenge is one keyboard-interactive round trip initiated by the backend
// during authentication. SessionID identifies which session it belongs to;
// the challenge channel itself is global and must be filtered by id.
type Challenge struct {
	SessionID    string
	Name         string
	Instructions string
	Prompts      []Prompt
}
