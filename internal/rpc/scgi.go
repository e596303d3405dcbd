package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
)

// scgiTransport speaks the SCGI protocol rtorrent exposes on its
// scgi_port/scgi_local socket. One connection per request; rtorrent
// closes the connection after responding.
type scgiTransport struct {
	network string // "tcp" or "unix"
	addr    string
}

func (t *scgiTransport) roundTrip(ctx context.Context, contentType string, body []byte) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, t.network, t.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", t.network, t.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}
	return scgiExchange(conn, contentType, body)
}

func (t *scgiTransport) close() error { return nil }

// scgiExchange writes one framed SCGI request to rw and reads the
// response until EOF. Factored out so the SSH transport can reuse it
// over session streams.
func scgiExchange(rw io.ReadWriter, contentType string, body []byte) ([]byte, error) {
	if _, err := rw.Write(encodeSCGIRequest(contentType, body)); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	// Half-close so servers that wait for EOF (the socat tunnel) flush.
	if cw, ok := rw.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}

	raw, err := io.ReadAll(rw)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return parseSCGIResponse(raw)
}

// encodeSCGIRequest frames headers and body per the SCGI spec: a
// netstring of NUL-separated header pairs, CONTENT_LENGTH first and
// "SCGI" "1" mandatory, followed by the raw body.
func encodeSCGIRequest(contentType string, body []byte) []byte {
	var hdr bytes.Buffer
	writePair := func(k, v string) {
		hdr.WriteString(k)
		hdr.WriteByte(0)
		hdr.WriteString(v)
		hdr.WriteByte(0)
	}
	writePair("CONTENT_LENGTH", strconv.Itoa(len(body)))
	writePair("SCGI", "1")
	if contentType != "" {
		writePair("CONTENT_TYPE", contentType)
	}

	var out bytes.Buffer
	out.WriteString(strconv.Itoa(hdr.Len()))
	out.WriteByte(':')
	out.Write(hdr.Bytes())
	out.WriteByte(',')
	out.Write(body)
	return out.Bytes()
}

// parseSCGIResponse strips the CGI-style header block (terminated by a
// blank line, CRLF or bare LF) and returns the body.
func parseSCGIResponse(raw []byte) ([]byte, error) {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return raw[i+4:], nil
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return raw[i+2:], nil
	}
	return nil, fmt.Errorf("response carries no header terminator (%d bytes)", len(raw))
}
