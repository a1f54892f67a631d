package capture

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
)

// KeyLogEnv is used if no key log file is configured explicitly
const KeyLogEnv = "SSLKEYLOGFILE"

// ResolveKeyLogFile returns path, or the SSLKEYLOGFILE environment variable if path is empty.
func ResolveKeyLogFile(path string) string {
	if path != "" {
		return path
	}
	return os.Getenv(KeyLogEnv)
}

// keyLogWriter appends NSS key log lines to a shared file
// and reports the client random of every line.
type keyLogWriter struct {
	mutex    *sync.Mutex
	w        io.Writer
	onRandom func(clientRandom string)
	// partial line of the previous write
	pending []byte
}

func (w *keyLogWriter) Write(p []byte) (int, error) {
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		line := w.pending[:i+1]
		if w.w != nil {
			w.mutex.Lock()
			_, err := w.w.Write(line)
			w.mutex.Unlock()
			if err != nil {
				return 0, err
			}
		}
		if random, ok := parseClientRandom(string(line)); ok && w.onRandom != nil {
			w.onRandom(random)
		}
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

// parseClientRandom extracts the client random of a line in the form
// "<label> <client_random> <secret>".
func parseClientRandom(line string) (string, bool) {
	if strings.HasPrefix(line, "#") {
		return "", false
	}
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", false
	}
	return strings.ToLower(fields[1]), true
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
}
