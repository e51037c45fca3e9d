package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrShortRequest = errors.New("zap request has too few frames")
	ErrShortReply   = errors.New("zap reply has too few frames")
	ErrBadDelimiter = errors.New("zap frame set missing empty delimiter")
)

// Minimum frame counts: the fixed positions before any credentials
const (
	requestFixedFrames = 8
	replyFrames        = 8
)

// Request is a decoded ZAP authentication request
type Request struct {
	Path        []byte // Routing frame, echoed verbatim into the reply
	Version     string // Protocol version literal, expected "1.0"
	RequestID   string // Correlation id chosen by the requester
	Domain      string // ZAP domain of the authenticating socket
	Address     string // Network address of the connecting peer
	Identity    []byte // Socket identity of the connecting peer
	Mechanism   Mechanism
	Credentials [][]byte // Mechanism-dependent trailing frames
}

// Reply is a decoded ZAP authentication reply
type Reply struct {
	Path       []byte // Copied from the request for routing
	Version    string
	RequestID  string // Always echoes the request id
	StatusCode string
	StatusText string
	UserID     string // Authenticated user on 200, empty otherwise
	Metadata   []byte
}

// DecodeRequest extracts a Request from a raw frame set by position.
// It performs no semantic validation: version, mechanism and
// credential contents are returned as-is for the handler to judge.
func DecodeRequest(frames [][]byte) (*Request, error) {
	if len(frames) < requestFixedFrames {
		return nil, fmt.Errorf("%w: got %d, want at least %d", ErrShortRequest, len(frames), requestFixedFrames)
	}
	if len(frames[1]) != 0 {
		return nil, ErrBadDelimiter
	}

	req := &Request{
		Path:      frames[0],
		Version:   string(frames[2]),
		RequestID: string(frames[3]),
		Domain:    string(frames[4]),
		Address:   string(frames[5]),
		Identity:  frames[6],
		Mechanism: Mechanism(frames[7]),
	}
	if extra := frames[requestFixedFrames:]; len(extra) > 0 {
		req.Credentials = extra
	}

	return req, nil
}

// EncodeRequest assembles the raw frame set for a request
func EncodeRequest(req *Request) [][]byte {
	frames := make([][]byte, 0, requestFixedFrames+len(req.Credentials))
	frames = append(frames,
		req.Path,
		[]byte{},
		[]byte(req.Version),
		[]byte(req.RequestID),
		[]byte(req.Domain),
		[]byte(req.Address),
		req.Identity,
		[]byte(req.Mechanism),
	)
	frames = append(frames, req.Credentials...)
	return frames
}

// DecodeReply extracts a Reply from a raw frame set by position
func DecodeReply(frames [][]byte) (*Reply, error) {
	if len(frames) < replyFrames {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrShortReply, len(frames), replyFrames)
	}
	if len(frames[1]) != 0 {
		return nil, ErrBadDelimiter
	}

	return &Reply{
		Path:       frames[0],
		Version:    string(frames[2]),
		RequestID:  string(frames[3]),
		StatusCode: string(frames[4]),
		StatusText: string(frames[5]),
		UserID:     string(frames[6]),
		Metadata:   frames[7],
	}, nil
}

// EncodeReply assembles the raw frame set for a reply. UserID and
// Metadata may be empty; their frames are emitted regardless so the
// reply shape stays fixed.
func EncodeReply(rep *Reply) [][]byte {
	return [][]byte{
		rep.Path,
		{},
		[]byte(rep.Version),
		[]byte(rep.RequestID),
		[]byte(rep.StatusCode),
		[]byte(rep.StatusText),
		[]byte(rep.UserID),
		rep.Metadata,
	}
}
