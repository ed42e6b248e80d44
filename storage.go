package tftp

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Storage opens the files served by the server. Failures that map to a TFTP
// error code are returned as *errorPacket.
type Storage interface {
	OpenRead(name string) (io.ReadCloser, error)
	OpenWrite(name string) (io.WriteCloser, error)
}

// DirStorage serves files from a directory on the local filesystem.
type DirStorage struct {
	Root string
}

func NewDirStorage(root string) *DirStorage {
	if root == "" {
		root = "."
	}
	return &DirStorage{Root: root}
}

func (s *DirStorage) OpenRead(name string) (io.ReadCloser, error) {
	return s.openFile(name, false)
}

func (s *DirStorage) OpenWrite(name string) (io.WriteCloser, error) {
	return s.openFile(name, true)
}

func (s *DirStorage) resolve(name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", newErrorPacket(errPermission, "path escapes served directory")
	}

	// Absolute names are served relative to the root as well.
	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))

	root := s.Root
	if root == "" {
		root = "."
	}
	return filepath.Join(root, cleaned), nil
}

func (s *DirStorage) openFile(name string, write bool) (*os.File, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	var f *os.File
	if write {
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	} else {
		f, err = os.Open(path)
	}

	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, newErrorPacket(errNotFound, "file not found")
		case errors.Is(err, os.ErrPermission):
			return nil, newErrorPacket(errPermission, "permission denied")
		case errors.Is(err, os.ErrExist):
			return nil, newErrorPacket(errAlreadyExists, "file already exists")
		default:
			logrus.WithFields(logrus.Fields{
				"function": "openFile",
				"file":     path,
				"error":    err.Error(),
			}).Error("Failed to open file")
			return nil, newErrorPacket(errPermission, "cannot open file")
		}
	}

	if write {
		return f, nil
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		logrus.WithFields(logrus.Fields{
			"function": "openFile",
			"file":     path,
			"error":    err.Error(),
		}).Error("Failed to stat file")
		return nil, newErrorPacket(errNotFound, "cannot stat file")
	}

	if stat.IsDir() {
		f.Close()
		return nil, newErrorPacket(errNotFound, "is a directory")
	}

	return f, nil
}
