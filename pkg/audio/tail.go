package audio

import (
	"io"
	"os"
)

// Tail reads the bytes appended to a growing file since the last call. It is
// how freshly recorded audio gets fed to a streaming transcription session
// while the switch is still writing the file.
//
// Tail tolerates the file not existing yet: recordings appear on disk a
// moment after the stream starts.
type Tail struct {
	path   string
	offset int64
	f      *os.File
}

// NewTail tails path from offset, which lets the caller skip a container
// header already sent by other means (0 to read everything).
func NewTail(path string, offset int64) *Tail {
	return &Tail{path: path, offset: offset}
}

// Next returns all bytes appended since the previous call. A nil slice means
// nothing new; errors other than the file being absent are returned.
func (t *Tail) Next() ([]byte, error) {
	if t.f == nil {
		f, err := os.Open(t.path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		t.f = f
	}

	fi, err := t.f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() <= t.offset {
		return nil, nil
	}

	buf := make([]byte, fi.Size()-t.offset)
	n, err := t.f.ReadAt(buf, t.offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	t.offset += int64(n)
	return buf[:n], nil
}

// Offset returns how far the tail has read.
func (t *Tail) Offset() int64 {
	return t.offset
}

// Close releases the underlying file handle.
func (t *Tail) Close() error {
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}
