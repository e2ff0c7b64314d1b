package fileio

import (
	"fmt"
	"io"
	"os"
	"path"
)

// Writer writes files below an optional root directory. The root is only
// rebased for testing; production callers leave it empty and pass absolute
// paths.
type Writer struct {
	rootDir string
}

func NewWriter() *Writer {
	return &Writer{}
}

// SetRootdir sets the root directory for the writer, useful for testing
func (w *Writer) SetRootdir(path string) {
	w.rootDir = path
}

// PathFor returns the full path for the provided file, useful for using functions
// and libraries that don't work with the fileio.Writer
func (w *Writer) PathFor(filePath string) string {
	return path.Join(w.rootDir, filePath)
}

// WriteFile writes the file at the provided path, creating parent directories
// as needed.
func (w *Writer) WriteFile(filePath string, data []byte) error {
	full := w.PathFor(filePath)
	if err := os.MkdirAll(path.Dir(full), 0755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0644)
}

// WriteStreamToFile writes the stream to the file at the provided path.
func (w *Writer) WriteStreamToFile(filePath string, stream io.Reader) error {
	full := w.PathFor(filePath)
	if err := os.MkdirAll(path.Dir(full), 0755); err != nil {
		return err
	}
	outFile, err := os.Create(full)
	if err != nil {
		return err
	}
	defer outFile.Close()
	_, err = io.Copy(outFile, stream)
	return err
}

// Reader reads files below an optional root directory.
type Reader struct {
	rootDir string
}

func NewReader() *Reader {
	return &Reader{}
}

// SetRootdir sets the root directory for the reader, useful for testing
func (r *Reader) SetRootdir(path string) {
	r.rootDir = path
}

// PathFor returns the full path for the provided file
func (r *Reader) PathFor(filePath string) string {
	return path.Join(r.rootDir, filePath)
}

// ReadFile reads the file at the provided path
func (r *Reader) ReadFile(filePath string) ([]byte, error) {
	return os.ReadFile(r.PathFor(filePath))
}

// CheckPathExists checks whether the provided path exists
func (r *Reader) CheckPathExists(filePath string) error {
	if _, err := os.Stat(r.PathFor(filePath)); err != nil {
		return fmt.Errorf("checking path: %w", err)
	}
	return nil
}
