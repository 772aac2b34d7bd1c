package bundle

import (
	"crypto/sha1"
	"fmt"
	"hash"
	"os"
	"path/filepath"
)

// DefaultPartSize splits bundles the same way the classic tools did.
const DefaultPartSize int64 = 10 * 1024 * 1024

// PartInfo describes one written bundle part.
type PartInfo struct {
	Filename string
	Digest   string
	Size     int64
}

// partWriter splits a stream into numbered part files, hashing each one
// as it goes.
type partWriter struct {
	dir     string
	prefix  string
	maxSize int64

	parts   []PartInfo
	file    *os.File
	sum     hash.Hash
	written int64
	total   int64
}

func newPartWriter(dir, prefix string, maxSize int64) *partWriter {
	if maxSize <= 0 {
		maxSize = DefaultPartSize
	}
	return &partWriter{dir: dir, prefix: prefix, maxSize: maxSize}
}

func (pw *partWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		if pw.file == nil {
			if err := pw.openPart(); err != nil {
				return written, err
			}
		}

		chunk := int64(len(p))
		if room := pw.maxSize - pw.written; chunk > room {
			chunk = room
		}

		n, err := pw.file.Write(p[:chunk])
		pw.sum.Write(p[:n])
		pw.written += int64(n)
		pw.total += int64(n)
		written += n
		if err != nil {
			return written, err
		}

		if pw.written == pw.maxSize {
			if err := pw.closePart(); err != nil {
				return written, err
			}
		}
		p = p[n:]
	}
	return written, nil
}

// Close finishes the part in progress. A bundle always has at least one
// part, even for an empty stream.
func (pw *partWriter) Close() error {
	if pw.file == nil && len(pw.parts) > 0 {
		return nil
	}
	if pw.file == nil {
		if err := pw.openPart(); err != nil {
			return err
		}
	}
	return pw.closePart()
}

func (pw *partWriter) openPart() error {
	name := fmt.Sprintf("%s.part.%02d", pw.prefix, len(pw.parts))
	f, err := os.Create(filepath.Join(pw.dir, name))
	if err != nil {
		return err
	}
	pw.file = f
	pw.sum = sha1.New()
	pw.written = 0
	return nil
}

func (pw *partWriter) closePart() error {
	name := pw.file.Name()
	if err := pw.file.Close(); err != nil {
		return err
	}
	pw.parts = append(pw.parts, PartInfo{
		Filename: filepath.Base(name),
		Digest:   fmt.Sprintf("%x", pw.sum.Sum(nil)),
		Size:     pw.written,
	})
	pw.file = nil
	return nil
}
