package bundle

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-clog/clog"

	"github.com/gholms/euca2ools/shared/procutil"
	"github.com/gholms/euca2ools/shared/tools"
)

// UnbundleRequest names what to restore and where.
type UnbundleRequest struct {
	ManifestPath string
	SourceDir    string // parts location, default the manifest's directory
	Destination  string // output directory, default "."
}

// UnbundleResult reports what was restored.
type UnbundleResult struct {
	ImagePath string
	Size      int64
	Digest    string
}

// Unbundle reassembles an image from its manifest and parts. Each part is
// digest-checked on the way into a decompress worker; the output runs
// through a digest worker straight into the destination file, and the
// digest coming back must match what the manifest promised. A failed
// restore leaves no output file behind.
func Unbundle(req *UnbundleRequest) (*UnbundleResult, error) {
	m, err := ReadManifest(req.ManifestPath)
	if err != nil {
		return nil, err
	}
	if m.Image.Name == "" || !validPrefix(m.Image.Name) {
		return nil, fmt.Errorf("manifest names unusable image %q", m.Image.Name)
	}
	if len(m.Image.Parts.Parts) == 0 {
		return nil, errors.New("manifest names no parts")
	}

	srcDir := req.SourceDir
	if srcDir == "" {
		srcDir = filepath.Dir(req.ManifestPath)
	}
	destDir := req.Destination
	if destDir == "" {
		destDir = "."
	}
	outPath := filepath.Join(destDir, m.Image.Name)

	out, err := os.Create(outPath)
	if err != nil {
		return nil, err
	}
	restored := false
	defer func() {
		out.Close()
		if !restored {
			os.Remove(outPath)
		}
	}()

	feedR, feedW, err := procutil.OpenPipe()
	if err != nil {
		return nil, err
	}
	midR, midW, err := procutil.OpenPipe()
	if err != nil {
		closeAll(feedR, feedW)
		return nil, err
	}
	resR, resW, err := procutil.OpenPipe()
	if err != nil {
		closeAll(feedR, feedW, midR, midW)
		return nil, err
	}

	var children []*procutil.Child

	// us -> decompress -> digest -> destination file
	decompress, err := procutil.Spawn(procutil.Work{
		Name:     decompressWorker,
		Files:    []*os.File{feedR, midW},
		CloseFDs: true,
	})
	if err != nil {
		closeAll(feedR, feedW, midR, midW, resR, resW)
		return nil, err
	}
	children = append(children, decompress)
	procutil.ReapAsync(decompress.Pid())

	digest, err := procutil.Spawn(procutil.Work{
		Name:     digestWorker,
		Files:    []*os.File{midR, out, resW},
		CloseFDs: true,
	})
	if err != nil {
		abortWorkers(children)
		closeAll(feedR, feedW, midR, midW, resR, resW)
		return nil, err
	}
	children = append(children, digest)
	procutil.ReapAsync(digest.Pid())

	closeAll(feedR, midR, midW, resW)

	for _, p := range m.Image.Parts.Parts {
		if err := feedPart(filepath.Join(srcDir, p.Filename), p, feedW); err != nil {
			closeAll(feedW, resR)
			abortWorkers(children)
			return nil, err
		}
	}
	feedW.Close()

	sum, err := io.ReadAll(resR)
	resR.Close()
	if err == nil && len(sum) == 0 {
		err = errors.New("pipeline delivered no image digest")
	}
	if err != nil {
		abortWorkers(children)
		return nil, fmt.Errorf("restoring %s: %v", m.Image.Name, err)
	}

	if !strings.EqualFold(string(sum), m.Image.Digest.Value) {
		return nil, fmt.Errorf("image digest mismatch: manifest says %s, data says %s",
			m.Image.Digest.Value, sum)
	}
	st, err := os.Stat(outPath)
	if err != nil {
		return nil, err
	}
	if m.Image.Size != 0 && st.Size() != m.Image.Size {
		return nil, fmt.Errorf("restored %d bytes of %s, manifest promised %d",
			st.Size(), m.Image.Name, m.Image.Size)
	}

	restored = true
	clog.Info("restored %s (%s)", outPath, tools.FileSize(st.Size()))

	return &UnbundleResult{ImagePath: outPath, Size: st.Size(), Digest: string(sum)}, nil
}

// feedPart checks one part's digest while pushing it downstream.
func feedPart(path string, ref PartRef, feedW *os.File) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sum := sha1.New()
	_, copyErr := io.Copy(io.MultiWriter(sum, feedW), f)
	if copyErr != nil {
		// Pipeline died mid-part. Finish hashing so a bad part gets called
		// out as such instead of as a broken pipe.
		io.Copy(sum, f)
	}
	got := fmt.Sprintf("%x", sum.Sum(nil))
	if ref.Digest.Value != "" && !strings.EqualFold(got, ref.Digest.Value) {
		return fmt.Errorf("part %s is corrupt: digest %s, manifest says %s",
			filepath.Base(path), got, ref.Digest.Value)
	}
	if copyErr != nil {
		return fmt.Errorf("feeding %s: %v", filepath.Base(path), copyErr)
	}
	return nil
}
