package network

import "strings"

// Scheme is a supported transport protocol
type Scheme string

const (
	SchemeTCP    Scheme = "tcp"
	SchemeIPC    Scheme = "ipc"
	SchemeInproc Scheme = "inproc"
)

var supportedSchemes = map[Scheme]bool{
	SchemeTCP:    true,
	SchemeIPC:    true,
	SchemeInproc: true,
}

// EndpointState tracks an endpoint through its lifecycle
type EndpointState int

const (
	StateIdle EndpointState = iota
	StateBinding
	StateBound
	StateUnbinding
)

func (s EndpointState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBinding:
		return "binding"
	case StateBound:
		return "bound"
	case StateUnbinding:
		return "unbinding"
	default:
		return "unknown"
	}
}

// Endpoint is a parsed connection URI: the transport scheme and the
// transport-specific address
type Endpoint struct {
	Scheme  Scheme
	Address string
	State   EndpointState
}

// URI reassembles the endpoint's connection URI
func (e Endpoint) URI() string {
	return string(e.Scheme) + "://" + e.Address
}

// ParseEndpoint validates and decomposes a connection URI. Parsing is
// purely syntactic and idempotent; no network I/O happens here.
//
// A URI without a "scheme://rest" shape fails with InvalidArgument; a
// recognized shape with an unsupported scheme fails with
// ProtocolNotSupported. The offending URI is attached to the error.
func ParseEndpoint(uri string) (Endpoint, error) {
	idx := strings.Index(uri, "://")
	if idx < 1 || idx+3 >= len(uri) {
		return Endpoint{}, ErrInvalidArgument(uri)
	}

	scheme := Scheme(uri[:idx])
	if !supportedSchemes[scheme] {
		return Endpoint{}, ErrProtocolNotSupported(uri)
	}

	return Endpoint{
		Scheme:  scheme,
		Address: uri[idx+3:],
		State:   StateIdle,
	}, nil
}
