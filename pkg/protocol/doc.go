// Package protocol implements the ZAP (ZeroMQ Authentication Protocol)
// wire format.
//
// ZAP is a request/reply handshake run over a reserved in-process
// endpoint to approve or reject new peer connections. This package
// covers the frame-level codec only: fixed-position extraction of
// requests and assembly of replies. Semantic validation (mechanism
// rules, domains, credentials) lives in pkg/zauth.
//
// # Frame Layout
//
// Request: path, delimiter, version, request id, domain, address,
// identity, mechanism, then zero or more credential frames. The
// credential count depends on the mechanism: NULL carries none,
// PLAIN carries username and password, CURVE carries the client
// public key.
//
// Reply: path, delimiter, version, request id, status code, status
// text, user id, metadata. The path frame is echoed verbatim from the
// request so the reply can be routed back to the requesting peer.
package protocol
