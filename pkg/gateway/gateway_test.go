package gateway_test

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oushaoming/http2rtsp/pkg/gateway"
	"github.com/oushaoming/http2rtsp/pkg/logger"
)

// fakeCamera answers the RTSP handshake and then streams one interleaved
// RTP frame before closing, mirroring a real camera just past PLAY.
func fakeCamera(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)

		readRequest := func() {
			for {
				h, err := r.ReadString('\n')
				if err != nil || h == "\r\n" {
					break
				}
			}
		}

		sdp := "v=0\r\nm=video 0 RTP/AVP 96\r\na=control:trackID=0\r\n"

		readRequest() // OPTIONS
		fmt.Fprint(conn, "RTSP/1.0 200 OK\r\nCSeq: 1\r\n\r\n")

		readRequest() // DESCRIBE
		fmt.Fprintf(conn, "RTSP/1.0 200 OK\r\nCSeq: 2\r\nContent-Length: %d\r\n\r\n%s", len(sdp), sdp)

		readRequest() // SETUP
		fmt.Fprint(conn, "RTSP/1.0 200 OK\r\nCSeq: 3\r\nSession: abc123\r\n\r\n")

		readRequest() // PLAY
		fmt.Fprint(conn, "RTSP/1.0 200 OK\r\nCSeq: 4\r\n\r\n")

		payload := []byte{0x80, 0x60, 0, 1, 0, 0, 0, 1, 0, 0, 0, 2, 1, 2, 3, 4}
		frame := []byte{0x24, 0, byte(len(payload) >> 8), byte(len(payload))}
		conn.Write(frame)
		conn.Write(payload)
	}()

	return ln.Addr().String()
}

func TestGatewayStreamsRTPPayload(t *testing.T) {
	cameraAddr := fakeCamera(t)

	g := gateway.New(gateway.Config{
		ListenAddr:        "127.0.0.1:0",
		MaxClients:        2,
		ConnectsPerMinute: 600,
		BufferSize:        1500,
	}, logger.Default())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go g.Serve(ln) //nolint:errcheck

	encodedTarget := url.QueryEscape(fmt.Sprintf("rtsp://%s/live", cameraAddr))
	resp, err := http.Get(fmt.Sprintf("http://%s/%s", ln.Addr().String(), encodedTarget))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "video/mp2t", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, []byte{0x80, 0x60, 0, 1, 0, 0, 0, 1, 0, 0, 0, 2, 1, 2, 3, 4}, body)
}

func TestGatewayRejectsNonRTSPPath(t *testing.T) {
	g := gateway.New(gateway.Config{
		ListenAddr:        "127.0.0.1:0",
		MaxClients:        2,
		ConnectsPerMinute: 600,
		BufferSize:        1500,
	}, logger.Default())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go g.Serve(ln) //nolint:errcheck

	resp, err := http.Get(fmt.Sprintf("http://%s/not-rtsp", ln.Addr().String()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGatewayRejectsAtCapacity(t *testing.T) {
	g := gateway.New(gateway.Config{
		ListenAddr:        "127.0.0.1:0",
		MaxClients:        0,
		ConnectsPerMinute: 600,
		BufferSize:        1500,
	}, logger.Default())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go g.Serve(ln) //nolint:errcheck

	resp, err := http.Get(fmt.Sprintf("http://%s/rtsp%%3A%%2F%%2Fcam%%2Flive", ln.Addr().String()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
