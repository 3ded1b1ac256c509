package fingerprint

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Reader takes fingerprints and loads content from durable storage.
type Reader interface {
	// Fingerprint returns the current fingerprint of path, or Missing if the
	// file does not exist.
	Fingerprint(path string) (Fingerprint, error)

	// Load reads the content of path together with its fingerprint, taken
	// from the same bytes. A missing file yields (nil, Missing, nil).
	Load(path string) ([]byte, Fingerprint, error)
}

// FileReader reads fingerprints from the local filesystem.
type FileReader struct {
	mode Mode
}

// NewFileReader creates a FileReader. An invalid mode falls back to ModeContent.
func NewFileReader(mode Mode) *FileReader {
	if !mode.Valid() {
		mode = ModeContent
	}
	return &FileReader{mode: mode}
}

// Mode returns the reader's fingerprint mode.
func (r *FileReader) Mode() Mode {
	return r.mode
}

// Fingerprint implements Reader.
func (r *FileReader) Fingerprint(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Missing, nil
	}
	if err != nil {
		return Missing, err
	}
	if info.IsDir() {
		return Missing, &fs.PathError{Op: "fingerprint", Path: path, Err: errors.New("is a directory")}
	}

	if r.mode == ModeStat {
		return Fingerprint{Exists: true, Size: info.Size(), ModTime: info.ModTime()}, nil
	}

	f, err := os.Open(path) //#nosec G304 -- path is the document the user opened
	if errors.Is(err, fs.ErrNotExist) {
		return Missing, nil
	}
	if err != nil {
		return Missing, err
	}
	defer f.Close()

	h := xxhash.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Missing, err
	}

	return Fingerprint{
		Exists:  true,
		Size:    n,
		Hash:    h.Sum64(),
		Hashed:  true,
		ModTime: info.ModTime(),
	}, nil
}

// Load implements Reader. In stat mode the fingerprint comes from the open
// handle before reading, so it is never newer than the content: a write
// racing the read shows up as a later change instead of being masked.
func (r *FileReader) Load(path string) ([]byte, Fingerprint, error) {
	f, err := os.Open(path) //#nosec G304 -- path is the document the user opened
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Missing, nil
	}
	if err != nil {
		return nil, Missing, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, Missing, err
	}
	if info.IsDir() {
		return nil, Missing, &fs.PathError{Op: "load", Path: path, Err: errors.New("is a directory")}
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, Missing, err
	}

	if r.mode == ModeStat {
		return content, Fingerprint{Exists: true, Size: info.Size(), ModTime: info.ModTime()}, nil
	}
	return content, Of(content), nil
}
