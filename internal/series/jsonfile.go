package series

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// StorageError wraps a failed read, parse or write of a series file.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return "series " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// errNotExist is returned by readJSON for a missing file.
var errNotExist = errors.New("file does not exist")

// readJSON decodes path into v.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &StorageError{Op: "read", Path: path, Err: errNotExist}
		}
		return &StorageError{Op: "read", Path: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &StorageError{Op: "parse", Path: path, Err: err}
	}
	return nil
}

// writeJSON writes v to path through a temp file and rename.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return &StorageError{Op: "encode", Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		cleanup()
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	return nil
}
