package qlog

import (
	"fmt"
	"os"
	"path/filepath"
)

// QlogDirEnv is used if no qlog directory is configured explicitly
const QlogDirEnv = "QLOGDIR"

// ResolveQlogDir returns dir, or the QLOGDIR environment variable if dir is empty.
func ResolveQlogDir(dir string) string {
	if dir != "" {
		return dir
	}
	return os.Getenv(QlogDirEnv)
}

// NewQlogDirWriter returns nil if dir is empty.
// id should be a byte sequence that is unique enough to not cause any name collisions, e.g. the QUIC ODCID.
// label is a descriptive name or category e.g. client.
func NewQlogDirWriter(dir string, id []byte, label string, config *Config) (Writer, error) {
	if dir == "" {
		return nil, nil
	}
	path := filepath.Join(
		dir,
		fmt.Sprintf("%x_%s.qlog", id, label))
	return NewFileQlogWriter(path, config)
}
