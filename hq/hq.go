package hq

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ALPN of the HTTP/0.9 style protocol used by the QUIC interop runner
const ALPN = "hq-interop"

// MaxRequestLength limits the request line including the terminating CRLF
const MaxRequestLength = 4096

var ErrMalformedRequest = errors.New("malformed request")

// WriteRequest writes the request line for path.
func WriteRequest(w io.Writer, path string) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	_, err := fmt.Fprintf(w, "GET %s\r\n", path)
	return err
}

// ReadRequest reads a request line and returns the requested path.
// The line may be terminated by CRLF, LF or the end of the stream.
func ReadRequest(r io.Reader) (string, error) {
	reader := bufio.NewReaderSize(io.LimitReader(r, MaxRequestLength), MaxRequestLength)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	if err == io.EOF && len(line) == MaxRequestLength {
		return "", fmt.Errorf("%w: request too long", ErrMalformedRequest)
	}
	line = strings.TrimRight(line, "\r\n")
	method, path, ok := strings.Cut(line, " ")
	if !ok || method != "GET" || !strings.HasPrefix(path, "/") || strings.ContainsAny(path, " \t") {
		return "", fmt.Errorf("%w: %q", ErrMalformedRequest, line)
	}
	return path, nil
}

var (
	// ErrNotFound is returned by a Handler for a path without content
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned by a Handler for a path outside of its root
	ErrForbidden = errors.New("forbidden")
)

// Handler opens the response body for a request path.
type Handler interface {
	Open(path string) (io.ReadCloser, error)
}
