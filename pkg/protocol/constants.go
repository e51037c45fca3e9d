package protocol

// ZapVersion is the protocol version literal carried in every request
// and reply. A request with any other value is a protocol error, not
// an authentication failure.
const ZapVersion = "1.0"

// WellKnownEndpoint is the reserved in-process endpoint a ZAP handler
// listens on, fixed by the external protocol specification.
const WellKnownEndpoint = "inproc://zeromq.zap.01"

// Status codes carried in the reply statusCode frame
const (
	StatusOK        = "200" // request authenticated
	StatusTemporary = "300" // temporary or validation error, peer may retry
	StatusDenied    = "400" // authentication failure
	StatusInternal  = "500" // internal error
)

// Mechanism identifies the authentication scheme a socket uses.
// The set is closed, fixed by the external protocol specification.
type Mechanism string

const (
	MechanismNull  Mechanism = "NULL"
	MechanismPlain Mechanism = "PLAIN"
	MechanismCurve Mechanism = "CURVE"
)

// CredentialCount returns the number of credential frames the
// mechanism carries in a request. The second return is false for an
// unknown mechanism.
func (m Mechanism) CredentialCount() (int, bool) {
	switch m {
	case MechanismNull:
		return 0, true
	case MechanismPlain:
		return 2, true // username, password
	case MechanismCurve:
		return 1, true // client public key
	default:
		return 0, false
	}
}

// Valid reports whether the mechanism is a member of the closed set
func (m Mechanism) Valid() bool {
	_, ok := m.CredentialCount()
	return ok
}
