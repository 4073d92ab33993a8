package rtsp

import (
	"bufio"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oushaoming/http2rtsp/pkg/logger"
	"github.com/oushaoming/http2rtsp/pkg/target"
)

func TestResolveControlURL(t *testing.T) {
	tests := []struct {
		name string
		sdp  string
		base string
		want string
	}{
		{
			name: "absolute control url",
			sdp:  "v=0\r\nm=video 0 RTP/AVP 96\r\na=control:rtsp://cam/trackID=0\r\n",
			base: "rtsp://cam/live",
			want: "rtsp://cam/trackID=0",
		},
		{
			name: "relative control url, base without slash",
			sdp:  "v=0\r\na=control:trackID=0\r\n",
			base: "rtsp://cam/live",
			want: "rtsp://cam/live/trackID=0",
		},
		{
			name: "relative control url, base with trailing slash",
			sdp:  "v=0\r\na=control:trackID=0\r\n",
			base: "rtsp://cam/live/",
			want: "rtsp://cam/live/trackID=0",
		},
		{
			name: "no control attribute falls back to base",
			sdp:  "v=0\r\nm=video 0 RTP/AVP 96\r\n",
			base: "rtsp://cam/live",
			want: "rtsp://cam/live",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, resolveControlURL(tt.sdp, tt.base))
		})
	}
}

// fakeRTSPServer answers OPTIONS/DESCRIBE/SETUP/PLAY with canned 200
// responses on one accepted connection, mirroring a real camera's handshake.
func fakeRTSPServer(t *testing.T, sdp string) string {
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

		readRequest() // OPTIONS
		fmt.Fprint(conn, "RTSP/1.0 200 OK\r\nCSeq: 1\r\n\r\n")

		readRequest() // DESCRIBE
		fmt.Fprintf(conn, "RTSP/1.0 200 OK\r\nCSeq: 2\r\nContent-Type: application/sdp\r\nContent-Length: %d\r\n\r\n%s", len(sdp), sdp)

		readRequest() // SETUP
		fmt.Fprint(conn, "RTSP/1.0 200 OK\r\nCSeq: 3\r\nSession: 889193506238949;timeout=60\r\nTransport: RTP/AVP/TCP;unicast;interleaved=0-1\r\n\r\n")

		readRequest() // PLAY
		fmt.Fprint(conn, "RTSP/1.0 200 OK\r\nCSeq: 4\r\n\r\n")
	}()

	return ln.Addr().String()
}

func TestOpenDrivesFullHandshake(t *testing.T) {
	sdp := "v=0\r\nm=video 0 RTP/AVP 96\r\na=control:trackID=0\r\n"
	addr := fakeRTSPServer(t, sdp)

	tg, err := target.Parse("rtsp://" + addr + "/live")
	require.NoError(t, err)

	s, err := Open(tg, logger.Default())
	require.NoError(t, err)
	defer s.Conn.Close()

	require.Equal(t, "889193506238949", s.ID)
}
