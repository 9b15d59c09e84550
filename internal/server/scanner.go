// scanner.go - Malware scanning via the clamd INSTREAM protocol.
package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"
)

// ScanVerdict is the scanner's classification of an upload.
type ScanVerdict struct {
	Clean  bool
	Detail string // signature name when infected, scanner note otherwise
}

// Scanner classifies raw bytes before anything is persisted.
type Scanner interface {
	Scan(ctx context.Context, data []byte) (ScanVerdict, error)
}

// clamdScanner talks to a ClamAV daemon over TCP using the INSTREAM
// command: chunks prefixed by a 4-byte big-endian length, terminated
// by a zero-length chunk.
type clamdScanner struct {
	addr    string
	timeout time.Duration
}

// NewClamdScanner returns a Scanner backed by clamd at addr
// (host:port). The timeout bounds the whole dial + stream + reply
// exchange; large files against a slow daemon fail rather than hang.
func NewClamdScanner(addr string, timeout time.Duration) Scanner {
	return &clamdScanner{addr: addr, timeout: timeout}
}

const scanChunkSize = 64 << 10

func (s *clamdScanner) Scan(ctx context.Context, data []byte) (ScanVerdict, error) {
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return ScanVerdict{}, fmt.Errorf("clamd dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(deadline); err != nil {
		return ScanVerdict{}, err
	}

	// Null-delimited command form so the reply is null-terminated too.
	if _, err := conn.Write([]byte("zINSTREAM\x00")); err != nil {
		return ScanVerdict{}, fmt.Errorf("clamd instream: %w", err)
	}

	var sizeBuf [4]byte
	for off := 0; off < len(data); off += scanChunkSize {
		end := off + scanChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]
		binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(chunk)))
		if _, err := conn.Write(sizeBuf[:]); err != nil {
			return ScanVerdict{}, fmt.Errorf("clamd stream: %w", err)
		}
		if _, err := conn.Write(chunk); err != nil {
			return ScanVerdict{}, fmt.Errorf("clamd stream: %w", err)
		}
	}

	// Zero-length chunk ends the stream.
	binary.BigEndian.PutUint32(sizeBuf[:], 0)
	if _, err := conn.Write(sizeBuf[:]); err != nil {
		return ScanVerdict{}, fmt.Errorf("clamd stream end: %w", err)
	}

	reply, err := readClamdReply(conn)
	if err != nil {
		return ScanVerdict{}, fmt.Errorf("clamd reply: %w", err)
	}
	return parseClamdReply(reply)
}

func readClamdReply(conn net.Conn) (string, error) {
	var buf bytes.Buffer
	tmp := make([]byte, 256)
	for {
		n, err := conn.Read(tmp)
		if n > 0 {
			if i := bytes.IndexByte(tmp[:n], 0); i >= 0 {
				buf.Write(tmp[:i])
				return buf.String(), nil
			}
			buf.Write(tmp[:n])
		}
		if err != nil {
			if buf.Len() > 0 {
				return buf.String(), nil
			}
			return "", err
		}
	}
}

// parseClamdReply maps clamd's "stream: ..." replies to a verdict.
// "stream: OK" is clean; "stream: Name FOUND" is infected; anything
// else is a scan failure.
func parseClamdReply(reply string) (ScanVerdict, error) {
	reply = strings.TrimSpace(reply)
	body := strings.TrimPrefix(reply, "stream:")
	body = strings.TrimSpace(body)

	switch {
	case body == "OK":
		return ScanVerdict{Clean: true, Detail: "Clean"}, nil
	case strings.HasSuffix(body, "FOUND"):
		sig := strings.TrimSpace(strings.TrimSuffix(body, "FOUND"))
		return ScanVerdict{Clean: false, Detail: sig}, nil
	default:
		return ScanVerdict{}, fmt.Errorf("unexpected clamd reply: %q", reply)
	}
}

// passScanner accepts everything. Used when scanning is disabled.
type passScanner struct{}

// NewPassScanner returns a Scanner that treats all content as clean.
func NewPassScanner() Scanner {
	return passScanner{}
}

func (passScanner) Scan(context.Context, []byte) (ScanVerdict, error) {
	return ScanVerdict{Clean: true, Detail: "scanning disabled"}, nil
}
