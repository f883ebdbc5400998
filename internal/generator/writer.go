package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"speculum/internal/services"
)

// CodePathEscape marks a relative path that resolves outside the output root.
const CodePathEscape = "path_escape"

// Writer stores deliverables below Root.
type Writer struct {
	Root string
}

// NewWriter returns a writer rooted at root.
func NewWriter(root string) *Writer {
	return &Writer{Root: root}
}

// Resolve maps rel to an absolute path below Root.
func (w *Writer) Resolve(rel string) (string, error) {
	root, err := filepath.Abs(w.Root)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "writer", "resolve", "output root", err)
	}
	rel = filepath.FromSlash(strings.TrimSpace(rel))
	if rel == "" || filepath.IsAbs(rel) {
		return "", services.WrapCode(services.ErrValidation, "writer", "resolve", CodePathEscape, fmt.Sprintf("invalid relative path %q", rel), nil)
	}
	target := filepath.Join(root, rel)
	within, err := filepath.Rel(root, target)
	if err != nil || within == "." || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", services.WrapCode(services.ErrValidation, "writer", "resolve", CodePathEscape, fmt.Sprintf("path %q escapes output root", rel), nil)
	}
	return target, nil
}

// Write stores content at rel via a temp file and rename, returning the
// absolute path.
func (w *Writer) Write(rel, content string) (string, error) {
	target, err := w.Resolve(rel)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrExecution, "writer", "write", "create directory", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return "", services.Wrap(services.ErrExecution, "writer", "write", "create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", services.Wrap(services.ErrExecution, "writer", "write", rel, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", services.Wrap(services.ErrExecution, "writer", "write", rel, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return "", services.Wrap(services.ErrExecution, "writer", "write", rel, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", services.Wrap(services.ErrExecution, "writer", "write", rel, err)
	}
	return target, nil
}
