package rtsp

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/oushaoming/http2rtsp/pkg/logger"
	"github.com/oushaoming/http2rtsp/pkg/target"
)

const (
	optionsTimeout  = 5 * time.Second
	describeTimeout = 10 * time.Second
	setupTimeout    = 10 * time.Second
	playTimeout     = 10 * time.Second
	dialTimeout     = 10 * time.Second
)

// Channels identifies the interleaved RTP/RTCP channel pair a SETUP
// negotiated. This gateway always requests 0-1 and never renegotiates.
const (
	RTPChannel  = 0
	RTCPChannel = 1
)

// Session is a connected, playing RTSP/1.0 session: the result of driving
// OPTIONS, DESCRIBE, SETUP, and PLAY to completion against one upstream.
type Session struct {
	Conn    net.Conn
	Reader  *bufio.Reader
	ID      string
	cseq    int
	log     *logger.Logger
	current target.Target

	pendingBodyLen int // set by describe, consumed by readSDPAndResolveControl
}

// Open dials t, runs the OPTIONS/DESCRIBE/SETUP/PLAY handshake, and follows
// at most one 302 redirect from DESCRIBE by reconnecting to the Location
// and restarting the handshake with CSeq reset to 1.
func Open(t target.Target, log *logger.Logger) (*Session, error) {
	s, err := dialAndHandshake(t, log)
	if err != nil {
		return nil, err
	}

	status, location, err := s.describe()
	if err != nil {
		s.Conn.Close()
		return nil, err
	}

	if status == 302 {
		log.Info("upstream redirected DESCRIBE", "location", location)
		s.Conn.Close()

		if location == "" {
			return nil, newError(KindProtocolError, "describe", fmt.Errorf("302 response carried no Location header"))
		}
		next, err := target.Parse(location)
		if err != nil {
			return nil, newError(KindProtocolError, "describe", fmt.Errorf("redirect location: %w", err))
		}

		s, err = dialAndHandshake(next, log)
		if err != nil {
			return nil, err
		}
		status, _, err = s.describe()
		if err != nil {
			s.Conn.Close()
			return nil, err
		}
	}

	if status != 200 {
		s.Conn.Close()
		return nil, newError(KindProtocolError, "describe", fmt.Errorf("unexpected status %d", status))
	}

	controlURL, err := s.readSDPAndResolveControl()
	if err != nil {
		s.Conn.Close()
		return nil, err
	}

	if err := s.setup(controlURL); err != nil {
		s.Conn.Close()
		return nil, err
	}

	if err := s.play(controlURL); err != nil {
		s.Conn.Close()
		return nil, err
	}

	return s, nil
}

func dialAndHandshake(t target.Target, log *logger.Logger) (*Session, error) {
	conn, err := net.DialTimeout("tcp", t.HostPort(), dialTimeout)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return nil, newError(KindDNSFailure, "dial", err)
		}
		return nil, newError(KindUpstreamUnreachable, "dial", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	s := &Session{
		Conn:    conn,
		Reader:  bufio.NewReaderSize(conn, MaxHeaderLen),
		cseq:    1,
		log:     log,
		current: t,
	}

	if err := s.options(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) nextCSeq() int {
	c := s.cseq
	s.cseq++
	return c
}

func (s *Session) options() error {
	s.log.DebugSession("sending OPTIONS", "url", s.current.Raw)
	req := Request{Method: "OPTIONS", URL: s.current.Raw, CSeq: s.nextCSeq()}
	if err := WriteRequest(s.Conn, req, optionsTimeout); err != nil {
		return newError(KindUpstreamUnreachable, "options", err)
	}

	resp, err := ReadResponse(s.Reader, s.Conn, optionsTimeout)
	if err != nil {
		return err
	}
	if _, err := ReadBody(s.Reader, s.Conn, resp.ContentLength, optionsTimeout); err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return newError(KindProtocolError, "options", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

// describe sends DESCRIBE and returns the status code and, for a 302, the
// Location header. The SDP body (if any) is left unread for the caller,
// since its length is needed by readSDPAndResolveControl.
func (s *Session) describe() (int, string, error) {
	s.log.DebugSession("sending DESCRIBE", "url", s.current.Raw)
	req := Request{
		Method: "DESCRIBE",
		URL:    s.current.Raw,
		CSeq:   s.nextCSeq(),
		Extra:  "Accept: application/sdp\r\n",
	}
	if err := WriteRequest(s.Conn, req, describeTimeout); err != nil {
		return 0, "", newError(KindUpstreamUnreachable, "describe", err)
	}

	resp, err := ReadResponse(s.Reader, s.Conn, describeTimeout)
	if err != nil {
		return 0, "", err
	}
	s.pendingBodyLen = resp.ContentLength
	return resp.StatusCode, resp.Location, nil
}

func (s *Session) readSDPAndResolveControl() (string, error) {
	body, err := ReadBody(s.Reader, s.Conn, s.pendingBodyLen, describeTimeout)
	if err != nil {
		return "", err
	}
	s.pendingBodyLen = 0

	control := resolveControlURL(string(body), s.current.Raw)
	s.log.DebugSession("resolved control url", "control", control)
	return control, nil
}

// resolveControlURL extracts the first "a=control:" attribute from an SDP
// body and resolves it against base. An absolute rtsp:// value is used
// verbatim; a relative value is appended, inserting a "/" unless either
// side already carries one. No "a=control:" attribute leaves base unchanged.
func resolveControlURL(sdp, base string) string {
	idx := strings.Index(sdp, "a=control:")
	if idx < 0 {
		return base
	}
	rest := sdp[idx+len("a=control:"):]
	if end := strings.IndexByte(rest, '\n'); end >= 0 {
		rest = rest[:end]
	}
	rest = strings.TrimRight(rest, "\r ")

	if strings.HasPrefix(rest, "rtsp://") {
		return rest
	}
	if strings.HasSuffix(base, "/") || strings.HasPrefix(rest, "/") {
		return base + rest
	}
	return base + "/" + rest
}

func (s *Session) setup(controlURL string) error {
	s.log.DebugSession("sending SETUP", "url", controlURL)
	req := Request{
		Method: "SETUP",
		URL:    controlURL,
		CSeq:   s.nextCSeq(),
		Extra:  "Transport: RTP/AVP/TCP;unicast;interleaved=0-1\r\n",
	}
	if err := WriteRequest(s.Conn, req, setupTimeout); err != nil {
		return newError(KindUpstreamUnreachable, "setup", err)
	}

	resp, err := ReadResponse(s.Reader, s.Conn, setupTimeout)
	if err != nil {
		return err
	}
	if _, err := ReadBody(s.Reader, s.Conn, resp.ContentLength, setupTimeout); err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return newError(KindProtocolError, "setup", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	s.ID = resp.Session
	s.log.DebugSession("setup complete", "session", s.ID)
	return nil
}

func (s *Session) play(controlURL string) error {
	s.log.DebugSession("sending PLAY", "url", controlURL)
	req := Request{
		Method:  "PLAY",
		URL:     controlURL,
		CSeq:    s.nextCSeq(),
		Session: s.ID,
		Extra:   "Range: npt=0.000-\r\n",
	}
	if err := WriteRequest(s.Conn, req, playTimeout); err != nil {
		return newError(KindUpstreamUnreachable, "play", err)
	}

	resp, err := ReadResponse(s.Reader, s.Conn, playTimeout)
	if err != nil {
		return err
	}
	if _, err := ReadBody(s.Reader, s.Conn, resp.ContentLength, playTimeout); err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return newError(KindProtocolError, "play", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

// Teardown sends a best-effort TEARDOWN and closes the connection. Errors
// are logged, not returned: the connection is going away regardless.
func (s *Session) Teardown() {
	req := Request{Method: "TEARDOWN", URL: s.current.Raw, CSeq: s.nextCSeq(), Session: s.ID}
	if err := WriteRequest(s.Conn, req, optionsTimeout); err != nil {
		s.log.DebugSession("teardown write failed", "error", err)
	}
	s.Conn.Close()
}
