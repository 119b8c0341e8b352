// Package download hands fetched files over to whoever asked for them: a
// directory on disk for the CLI, an HTTP attachment for the web front.
package download

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

var ErrBadName = errors.New("bad file name")

type Saver interface {
	Save(name, contentType string, data []byte) error
}

// FileSaver writes into Dir. The file is fully written under a temporary
// name and then renamed, so a half-written badge never shows up.
type FileSaver struct {
	Dir string
	// Saved is the path of the last written file.
	Saved string
}

func (s *FileSaver) Save(name, _ string, data []byte) error {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || base == ".." {
		return fmt.Errorf("FileSaver.Save failed: %w: %q", ErrBadName, name)
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("os.MkdirAll failed: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+base+"-*")
	if err != nil {
		return fmt.Errorf("os.CreateTemp failed: %w", err)
	}
	defer os.Remove(tmp.Name())

	// CreateTemp makes owner-only files, saved downloads are ordinary files.
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("tmp.Chmod failed: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tmp.Write failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tmp.Close failed: %w", err)
	}

	dst := filepath.Join(s.Dir, base)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("os.Rename failed: %w", err)
	}
	s.Saved = dst
	return nil
}

// AttachmentSaver answers the current request with the file as a download.
// It may be used once per request.
type AttachmentSaver struct {
	W    http.ResponseWriter
	used bool
}

func (s *AttachmentSaver) Save(name, contentType string, data []byte) error {
	if s.used {
		return errors.New("AttachmentSaver.Save: response already written")
	}
	s.used = true

	h := s.W.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(name)))
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Cache-Control", "no-store")
	s.W.WriteHeader(http.StatusOK)

	if _, err := s.W.Write(data); err != nil {
		return fmt.Errorf("ResponseWriter.Write failed: %w", err)
	}
	return nil
}

// Used reports whether the response was already written.
func (s *AttachmentSaver) Used() bool {
	return s.used
}
