package server

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"

	"crperf-go/common"
	"crperf-go/common/utils"
	"crperf-go/hq"
)

// FileHandler serves files below Root.
// A missing file whose name is a byte count, e.g. /10MiB, is generated.
type FileHandler struct {
	// empty serves generated files only
	Root string
}

var _ hq.Handler = &FileHandler{}

type generatedFile struct {
	io.Reader
}

func (generatedFile) Close() error { return nil }

// resolve returns the file system path of a request path, it never leaves Root.
func (h *FileHandler) resolve(requestPath string) (string, error) {
	if strings.Contains(requestPath, "\x00") {
		return "", fmt.Errorf("%w: %q", hq.ErrForbidden, requestPath)
	}
	// path.Clean would drop leading .. segments
	for _, segment := range strings.Split(requestPath, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q", hq.ErrForbidden, requestPath)
		}
	}
	cleaned := path.Clean("/" + requestPath)
	if cleaned == "/" {
		return "", fmt.Errorf("%w: %q", hq.ErrNotFound, requestPath)
	}
	p := filepath.Join(h.Root, filepath.FromSlash(cleaned))
	if h.Root == "" {
		return p, nil
	}
	target, err := filepath.EvalSymlinks(p)
	if err != nil {
		// missing files may still be generated
		return p, nil
	}
	root, err := filepath.EvalSymlinks(h.Root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q leaves the root", hq.ErrForbidden, requestPath)
	}
	return target, nil
}

// Size returns the length of the response body of requestPath.
func (h *FileHandler) Size(requestPath string) (int64, error) {
	if h.Root != "" {
		p, err := h.resolve(requestPath)
		if err != nil {
			return 0, err
		}
		info, err := os.Stat(p)
		if err == nil && info.Mode().IsRegular() {
			return info.Size(), nil
		}
	}
	n, err := h.generatedSize(requestPath)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

func (h *FileHandler) generatedSize(requestPath string) (uint64, error) {
	if _, err := h.resolve(requestPath); err != nil {
		return 0, err
	}
	n, err := common.ParseByteCountWithUnit(path.Base(requestPath))
	if err != nil || n > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q", hq.ErrNotFound, requestPath)
	}
	return n, nil
}

func (h *FileHandler) Open(requestPath string) (io.ReadCloser, error) {
	if h.Root != "" {
		p, err := h.resolve(requestPath)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(p)
		switch {
		case err == nil:
			info, err := f.Stat()
			if err == nil && info.Mode().IsRegular() {
				return f, nil
			}
			_ = f.Close()
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}
	n, err := h.generatedSize(requestPath)
	if err != nil {
		return nil, err
	}
	return generatedFile{Reader: common.LimitReader(utils.InfiniteReader{}, n)}, nil
}
