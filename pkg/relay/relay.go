// Package relay demultiplexes RTSP/1.0's interleaved TCP framing and
// forwards the RTP channel's payload bytes to a downstream sink.
package relay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pion/rtp"

	"github.com/oushaoming/http2rtsp/pkg/logger"
)

const (
	frameMagic = 0x24 // '$', RFC 2326 §10.12
	frameHeaderLen = 4

	idleReadTimeout      = 5 * time.Second
	skippedLineTimeout   = 2 * time.Second
	writeTimeout         = 2 * time.Second
	maxConsecutiveErrors = 10
)

// RTPChannel is the only interleaved channel this relay forwards downstream;
// RTCP (channel 1) is read and discarded to keep the upstream connection's
// framing in sync.
const RTPChannel = 0

// Stats summarizes one Run invocation.
type Stats struct {
	FramesForwarded uint64
	BytesForwarded  uint64
}

// Run reads $-framed interleaved frames from r (backed by upstream) until
// upstream or dst closes, ctx is canceled, or maxConsecutiveErrors
// consecutive read failures occur. Only RTPChannel frames are written to
// dst; all other channels are consumed and dropped. A frame whose declared
// length exceeds bufSize-4 is clamped rather than rejected, matching a
// generous upstream encoder over a strict one. dst is a net.Conn (not a
// bare io.Writer) so every write can carry its own deadline: a downstream
// client that stops reading without closing its socket must not be able to
// block this goroutine forever.
func Run(ctx context.Context, upstream net.Conn, r *bufio.Reader, dst net.Conn, bufSize int, log *logger.Logger) (Stats, error) {
	if bufSize < frameHeaderLen+1 {
		bufSize = frameHeaderLen + 1
	}
	buf := make([]byte, bufSize)
	header := make([]byte, frameHeaderLen)

	var stats Stats
	errorCount := 0

	for errorCount < maxConsecutiveErrors {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		if err := upstream.SetReadDeadline(time.Now().Add(idleReadTimeout)); err != nil {
			return stats, fmt.Errorf("relay: set read deadline: %w", err)
		}

		lead, err := r.Peek(1)
		if err != nil {
			if isTimeout(err) {
				continue // idle upstream, not an error
			}
			return stats, fmt.Errorf("relay: peek frame header: %w", err)
		}

		if lead[0] != frameMagic {
			if err := skipStrayLine(r, upstream); err != nil {
				errorCount++
			}
			continue
		}

		if _, err := io.ReadFull(r, header); err != nil {
			errorCount++
			continue
		}

		channel := header[1]
		length := int(header[2])<<8 | int(header[3])
		if length > bufSize-frameHeaderLen {
			length = bufSize - frameHeaderLen
		}

		payload := buf[frameHeaderLen : frameHeaderLen+length]
		if _, err := io.ReadFull(r, payload); err != nil {
			errorCount++
			continue
		}

		if channel != RTPChannel {
			errorCount = 0
			continue
		}

		logFrame(log, channel, payload)

		if err := dst.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return stats, fmt.Errorf("relay: set write deadline: %w", err)
		}
		if _, err := dst.Write(payload); err != nil {
			return stats, fmt.Errorf("relay: downstream write: %w", err)
		}
		stats.FramesForwarded++
		stats.BytesForwarded += uint64(length)
		errorCount = 0
	}

	return stats, fmt.Errorf("relay: exceeded %d consecutive errors", maxConsecutiveErrors)
}

// skipStrayLine discards one CRLF-terminated line, for a stray RTSP
// response (e.g. a late SETUP reply) interleaved ahead of RTP data.
func skipStrayLine(r *bufio.Reader, conn net.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(skippedLineTimeout)); err != nil {
		return err
	}
	_, err := r.ReadString('\n')
	return err
}

// logFrame unmarshals payload as RTP purely for the debug log line; a
// failure to parse never affects forwarding. The unmarshal itself is
// skipped unless relay debugging is enabled, so a quiet gateway never pays
// for it.
func logFrame(log *logger.Logger, channel byte, payload []byte) {
	if !log.CategoryEnabled(logger.DebugRelay) {
		return
	}
	var pkt rtp.Packet
	if err := pkt.Unmarshal(payload); err != nil {
		log.DebugRelayFrame(channel, 0, 0, 0, len(payload))
		return
	}
	log.DebugRelayFrame(channel, pkt.SequenceNumber, pkt.Timestamp, pkt.PayloadType, len(payload))
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
