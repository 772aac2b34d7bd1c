// Package bundle turns disk images into compressed, split, digested
// bundles and back. The heavy lifting happens in worker processes
// connected by pipes, so the command itself only ever shuffles bytes and
// bookkeeping.
package bundle

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/go-clog/clog"
	"github.com/mitchellh/go-ps"

	"github.com/gholms/euca2ools/shared/procutil"
	"github.com/gholms/euca2ools/shared/tools"
)

// suiteVersion should match Euca2oolsVersion in euca/main.go
const suiteVersion = "3.1.0"

// Part files and manifests travel to object stores whose keys are picky;
// prefixes stay tame. Same alphabet the service accepts for image names.
var validPrefix = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+$`).MatchString

// Request carries everything CreateBundle needs.
type Request struct {
	ImagePath   string
	Destination string // directory for parts and manifest, default "."
	Prefix      string // file name prefix, default the image file name
	PartSize    int64  // default DefaultPartSize
	Level       int    // gzip level, 0 picks the default
	Fingerprint string // user certificate fingerprint for the manifest, may be empty
	ImageType   string // default "machine"
}

// Result is what CreateBundle left on disk.
type Result struct {
	ManifestPath string
	Digest       string
	Size         int64
	BundledSize  int64
	Parts        []PartInfo
}

// CreateBundle runs the bundling pipeline: the image streams through a
// digest worker and a compress worker, and whatever comes out the far end
// is split into part files here. Worker pids go straight to the
// background reaper; their outcome is read off the pipes, a dead stage
// shows up as a short or broken stream.
func CreateBundle(req *Request) (*Result, error) {
	prefix := req.Prefix
	if prefix == "" {
		prefix = filepath.Base(req.ImagePath)
	}
	if !validPrefix(prefix) {
		return nil, fmt.Errorf("invalid bundle prefix %q, only a-Z0-9_-. allowed", prefix)
	}
	dest := req.Destination
	if dest == "" {
		dest = "."
	}
	imageType := req.ImageType
	if imageType == "" {
		imageType = "machine"
	}
	if req.Level != 0 && (req.Level < gzip.BestSpeed || req.Level > gzip.BestCompression) {
		return nil, fmt.Errorf("compression level %d out of range 1-9", req.Level)
	}

	image, err := os.Open(req.ImagePath)
	if err != nil {
		return nil, err
	}
	defer image.Close()
	st, err := image.Stat()
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", req.ImagePath)
	}

	midR, midW, err := procutil.OpenPipe()
	if err != nil {
		return nil, err
	}
	outR, outW, err := procutil.OpenPipe()
	if err != nil {
		closeAll(midR, midW)
		return nil, err
	}
	resR, resW, err := procutil.OpenPipe()
	if err != nil {
		closeAll(midR, midW, outR, outW)
		return nil, err
	}

	var children []*procutil.Child

	// image -> digest -> compress -> us
	digest, err := procutil.Spawn(procutil.Work{
		Name:     digestWorker,
		Files:    []*os.File{image, midW, resW},
		CloseFDs: true,
	})
	if err != nil {
		closeAll(midR, midW, outR, outW, resR, resW)
		return nil, err
	}
	children = append(children, digest)
	procutil.ReapAsync(digest.Pid())

	compress, err := procutil.Spawn(procutil.Work{
		Name:     compressWorker,
		Args:     compressArgs(req.Level),
		Files:    []*os.File{midR, outW},
		CloseFDs: true,
	})
	if err != nil {
		abortWorkers(children)
		closeAll(midR, midW, outR, outW, resR, resW)
		return nil, err
	}
	children = append(children, compress)
	procutil.ReapAsync(compress.Pid())

	// The workers own their descriptors now. Holding on to our copies
	// would keep every pipe from ever reaching EOF.
	closeAll(midR, midW, outW, resW)

	pw := newPartWriter(dest, prefix, req.PartSize)
	_, err = io.Copy(pw, outR)
	outR.Close()
	if err == nil {
		err = pw.Close()
	}
	if err != nil {
		resR.Close()
		abortWorkers(children)
		return nil, fmt.Errorf("bundling %s: %v", req.ImagePath, err)
	}

	sum, err := io.ReadAll(resR)
	resR.Close()
	if err == nil && len(sum) == 0 {
		err = errors.New("pipeline delivered no image digest")
	}
	if err != nil {
		abortWorkers(children)
		return nil, fmt.Errorf("bundling %s: %v", req.ImagePath, err)
	}

	m := &Manifest{
		Version: manifestVersion,
		Bundler: BundlerInfo{Name: "euca2ools", Version: suiteVersion},
		Image: ImageInfo{
			Name:        prefix,
			User:        req.Fingerprint,
			Type:        imageType,
			Digest:      Digest{Algorithm: digestAlgorithm, Value: string(sum)},
			Size:        st.Size(),
			BundledSize: pw.total,
			Parts:       partList(pw.parts),
		},
	}
	manifestPath := filepath.Join(dest, prefix+".manifest.xml")
	if err := WriteManifest(m, manifestPath); err != nil {
		return nil, err
	}

	clog.Info("bundled %s into %d parts (%s of %s)", req.ImagePath,
		len(pw.parts), tools.FileSize(pw.total), tools.FileSize(st.Size()))

	return &Result{
		ManifestPath: manifestPath,
		Digest:       string(sum),
		Size:         st.Size(),
		BundledSize:  pw.total,
		Parts:        pw.parts,
	}, nil
}

func compressArgs(level int) []string {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return []string{strconv.Itoa(level)}
}

func partList(parts []PartInfo) PartList {
	pl := PartList{Count: len(parts)}
	for i, p := range parts {
		pl.Parts = append(pl.Parts, PartRef{
			Index:    i,
			Filename: p.Filename,
			Digest:   Digest{Algorithm: digestAlgorithm, Value: p.Digest},
		})
	}
	return pl
}

// abortWorkers tears down pipeline processes that may still be running
// after something else went wrong. Stages that already exited are
// skipped; the stubborn ones get a term, then a kill.
func abortWorkers(children []*procutil.Child) {
	for _, c := range children {
		alive, err := procutil.PidExists(c.Pid())
		if err == nil && !alive {
			continue
		}
		if p, err := ps.FindProcess(c.Pid()); err == nil && p != nil {
			clog.Warn("aborting worker %s (pid %d)", p.Executable(), c.Pid())
		}
		c.Signal(syscall.SIGTERM)
	}

	time.Sleep(100 * time.Millisecond)

	for _, c := range children {
		if alive, err := procutil.PidExists(c.Pid()); err == nil && alive {
			c.Signal(syscall.SIGKILL)
		}
	}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}
