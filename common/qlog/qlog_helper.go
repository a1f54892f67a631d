package qlog

import (
	"bufio"
	"os"
	"path/filepath"

	"crperf-go/common/utils"
)

// NewStdoutQlogWriter writes everything to a stdout
func NewStdoutQlogWriter(config *Config) Writer {
	return NewQlogWriter(utils.NopWriteCloser{Writer: os.Stdout}, config)
}

// NewFileQlogWriter writes everything to a single file
func NewFileQlogWriter(path string, config *Config) (Writer, error) {
	err := os.MkdirAll(filepath.Dir(path), 0700)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := utils.NewBufferedWriteCloser(bufio.NewWriter(f), f)
	return NewQlogWriter(w, config), nil
}
