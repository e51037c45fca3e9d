// Package zauth implements the ZAP authentication handler: a
// request/reply loop that validates incoming authentication requests
// against mechanism rules and issues status replies.
//
// The handler listens on a configurable endpoint (by default the
// well-known in-process ZAP endpoint), decodes each inbound frame set
// with pkg/protocol, applies validation, and answers on the channel
// the request arrived on. Validation order is fixed: protocol version,
// address allow/deny rules, credential count per mechanism, domain,
// credentials. The whole validation step can be replaced by an
// operator-supplied Authenticator; framing and reply routing cannot.
//
// Credentials come from a CredentialStore: an in-memory implementation
// for embedding and tests, and a SQLite-backed one for the standalone
// zauthd daemon.
package zauth
