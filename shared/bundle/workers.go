package bundle

import (
	"compress/gzip"
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gholms/euca2ools/shared/procutil"
)

// Pipeline stages run as worker processes so a wedged or crashing stage
// can never take the command down with it. Each worker owns a fixed set
// of descriptors, in the order its runner documents, and fences off
// everything else at startup.
const (
	digestWorker     = "euca2ools-digest"
	compressWorker   = "euca2ools-compress"
	decompressWorker = "euca2ools-decompress"
)

func init() {
	procutil.RegisterWorker(digestWorker, runDigest)
	procutil.RegisterWorker(compressWorker, runCompress)
	procutil.RegisterWorker(decompressWorker, runDecompress)
}

// runDigest copies its first descriptor to its second while hashing,
// then writes the hex digest to the third. The data output is closed
// before the digest goes out so the next stage sees EOF as early as
// possible.
func runDigest(args []string, files []*os.File) error {
	if len(files) != 3 {
		return fmt.Errorf("digest stage wants 3 descriptors, got %d", len(files))
	}
	in, out, result := files[0], files[1], files[2]

	sum := sha1.New()
	if _, err := io.Copy(io.MultiWriter(sum, out), in); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(result, "%x", sum.Sum(nil))
	return err
}

// runCompress gzips its first descriptor into its second. An optional
// first argument picks the compression level.
func runCompress(args []string, files []*os.File) error {
	if len(files) != 2 {
		return fmt.Errorf("compress stage wants 2 descriptors, got %d", len(files))
	}

	level := gzip.DefaultCompression
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("bad compression level %q", args[0])
		}
		level = n
	}

	zw, err := gzip.NewWriterLevel(files[1], level)
	if err != nil {
		return err
	}
	if _, err := io.Copy(zw, files[0]); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return files[1].Close()
}

// runDecompress gunzips its first descriptor into its second.
func runDecompress(args []string, files []*os.File) error {
	if len(files) != 2 {
		return fmt.Errorf("decompress stage wants 2 descriptors, got %d", len(files))
	}

	zr, err := gzip.NewReader(files[0])
	if err != nil {
		return err
	}
	if _, err := io.Copy(files[1], zr); err != nil {
		return err
	}
	if err := zr.Close(); err != nil {
		return err
	}
	return files[1].Close()
}
