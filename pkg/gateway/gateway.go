// Package gateway is the external HTTP collaborator: it accepts
// "GET /rtsp://host[:port]/path", drives an RTSP session against the
// encoded target, and streams the negotiated RTP payload back as the raw
// HTTP response body.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oushaoming/http2rtsp/pkg/admission"
	"github.com/oushaoming/http2rtsp/pkg/logger"
	"github.com/oushaoming/http2rtsp/pkg/relay"
	"github.com/oushaoming/http2rtsp/pkg/rtsp"
	"github.com/oushaoming/http2rtsp/pkg/target"
)

// Config controls one Gateway instance.
type Config struct {
	ListenAddr        string
	MaxClients        int
	ConnectsPerMinute float64
	BufferSize        int
}

// Gateway is an HTTP server fronting one or more upstream RTSP sources.
type Gateway struct {
	admission  *admission.Controller
	bufferSize int
	log        *logger.Logger
	server     *http.Server
}

// New builds a Gateway from cfg, wiring its handler but not yet listening.
func New(cfg Config, log *logger.Logger) *Gateway {
	g := &Gateway{
		admission:  admission.New(cfg.MaxClients, cfg.ConnectsPerMinute),
		bufferSize: cfg.BufferSize,
		log:        log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handle)

	g.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return g
}

// ListenAndServe blocks serving HTTP until Shutdown is called.
func (g *Gateway) ListenAndServe() error {
	g.log.Info("gateway listening", "addr", g.server.Addr)
	err := g.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve is like ListenAndServe but accepts connections from an
// already-bound listener.
func (g *Gateway) Serve(ln net.Listener) error {
	err := g.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections and waits for requests still
// being handled by net/http. Connections already hijacked for a relay
// stream are neither waited for nor closed.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

// Active reports the number of in-flight relay sessions.
func (g *Gateway) Active() int {
	return g.admission.Active()
}

func (g *Gateway) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	encoded := strings.TrimPrefix(r.URL.Path, "/")
	decoded, err := target.DecodePath(encoded)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	tg, err := target.Parse(decoded)
	if err != nil {
		g.log.DebugGateway("rejected non-rtsp path", "path", r.URL.Path, "error", err)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if err := g.admission.Acquire(); err != nil {
		g.log.Warn("rejecting client, at capacity", "active", g.admission.Active())
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	defer g.admission.Release()

	if err := g.admission.WaitConnect(r.Context(), tg.Host); err != nil {
		http.Error(w, "request canceled", http.StatusServiceUnavailable)
		return
	}

	g.log.Info("client connected", "remote_addr", r.RemoteAddr, "target", tg.Raw)

	session, err := rtsp.Open(tg, g.log)
	if err != nil {
		g.log.Error("upstream session failed", "target", tg.Raw, "error", err)
		http.Error(w, "upstream session failed", statusFor(err))
		return
	}
	defer session.Teardown()

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	conn, buf, err := hijacker.Hijack()
	if err != nil {
		g.log.Error("hijack failed", "error", err)
		return
	}
	defer conn.Close()

	if _, err := buf.WriteString("HTTP/1.0 200 OK\r\nContent-Type: video/mp2t\r\nConnection: close\r\n\r\n"); err != nil {
		return
	}
	if err := buf.Flush(); err != nil {
		return
	}

	stats, relayErr := relay.Run(r.Context(), session.Conn, session.Reader, conn, g.bufferSize, g.log)
	g.log.Info("relay ended",
		"remote_addr", r.RemoteAddr,
		"frames", stats.FramesForwarded,
		"bytes", stats.BytesForwarded,
		"error", relayErr)
}

func statusFor(err error) int {
	var rtspErr *rtsp.Error
	if errors.As(err, &rtspErr) {
		switch rtspErr.Kind {
		case rtsp.KindDNSFailure:
			return http.StatusNotFound
		case rtsp.KindUpstreamUnreachable, rtsp.KindProtocolError:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
