package utils

import (
	"bufio"
	"io"
)

// InfiniteReader yields zero bytes forever.
type InfiniteReader struct {
}

var _ io.Reader = InfiniteReader{}

func (i InfiniteReader) Read(p []byte) (n int, err error) {
	for j := range p {
		p[j] = 0
	}
	return len(p), nil
}

type funcToWriterStruct struct {
	writeFunc func(p []byte) (n int, err error)
}

func (f funcToWriterStruct) Write(p []byte) (n int, err error) {
	return f.writeFunc(p)
}

func FuncToWriter(writeFunc func(p []byte) (n int, err error)) io.Writer {
	return funcToWriterStruct{
		writeFunc: writeFunc,
	}
}

type bufferedWriteCloser struct {
	*bufio.Writer
	io.Closer
}

// NewBufferedWriteCloser creates an io.WriteCloser from a bufio.Writer and an io.Closer.
// Close flushes the buffer before closing the underlying closer.
func NewBufferedWriteCloser(writer *bufio.Writer, closer io.Closer) io.WriteCloser {
	return &bufferedWriteCloser{
		Writer: writer,
		Closer: closer,
	}
}

func (h bufferedWriteCloser) Close() error {
	if err := h.Writer.Flush(); err != nil {
		return err
	}
	return h.Closer.Close()
}

// NopWriteCloser does not close the inner writer.
type NopWriteCloser struct {
	io.Writer
}

func (NopWriteCloser) Close() error {
	return nil
}
