package bundle

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/gholms/euca2ools/shared/procutil"
)

func TestMain(m *testing.M) {
	// Pipeline stages re-enter this binary by worker name; dispatch them
	// before the test runner takes over.
	if procutil.WorkerInit() {
		return
	}
	os.Exit(m.Run())
}

func TestBundleRoundTrip(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "disk.img")

	// incompressible on purpose, so the split is a real one
	data := make([]byte, 640*1024)
	rand.New(rand.NewSource(42)).Read(data)
	if err := os.WriteFile(imagePath, data, 0644); err != nil {
		t.Fatal(err)
	}

	res, err := CreateBundle(&Request{
		ImagePath:   imagePath,
		Destination: dir,
		PartSize:    256 * 1024,
	})
	if err != nil {
		t.Fatal(err)
	}

	if res.Size != int64(len(data)) {
		t.Errorf("image size recorded as %d, want %d", res.Size, len(data))
	}
	wantDigest := fmt.Sprintf("%x", sha1.Sum(data))
	if res.Digest != wantDigest {
		t.Errorf("image digest = %s, want %s", res.Digest, wantDigest)
	}
	if len(res.Parts) < 2 {
		t.Fatalf("bundle ended up in %d parts, want a real split", len(res.Parts))
	}

	var bundled int64
	for _, p := range res.Parts {
		st, err := os.Stat(filepath.Join(dir, p.Filename))
		if err != nil {
			t.Fatal(err)
		}
		if st.Size() != p.Size {
			t.Errorf("%s is %d bytes on disk, recorded as %d", p.Filename, st.Size(), p.Size)
		}
		bundled += p.Size
	}
	if bundled != res.BundledSize {
		t.Errorf("parts add up to %d, bundled size recorded as %d", bundled, res.BundledSize)
	}

	m, err := ReadManifest(res.ManifestPath)
	if err != nil {
		t.Fatal(err)
	}
	if m.Image.Digest.Value != wantDigest || m.Image.Parts.Count != len(res.Parts) {
		t.Fatalf("manifest does not describe the bundle:\n%s", spew.Sdump(m))
	}

	// and back again
	outDir := t.TempDir()
	ures, err := Unbundle(&UnbundleRequest{ManifestPath: res.ManifestPath, Destination: outDir})
	if err != nil {
		t.Fatal(err)
	}
	restored, err := os.ReadFile(ures.ImagePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(restored, data) {
		t.Error("restored image differs from the original")
	}
}

func TestBundleCompresses(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "zeros.img")
	if err := os.WriteFile(imagePath, make([]byte, 1024*1024), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := CreateBundle(&Request{ImagePath: imagePath, Destination: dir})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Parts) != 1 {
		t.Errorf("a megabyte of zeros took %d parts", len(res.Parts))
	}
	if res.BundledSize >= res.Size/10 {
		t.Errorf("zeros compressed to %d of %d bytes, expected far less", res.BundledSize, res.Size)
	}
}

func TestUnbundleRejectsCorruptPart(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "disk.img")
	data := make([]byte, 64*1024)
	rand.New(rand.NewSource(7)).Read(data)
	if err := os.WriteFile(imagePath, data, 0644); err != nil {
		t.Fatal(err)
	}

	res, err := CreateBundle(&Request{ImagePath: imagePath, Destination: dir})
	if err != nil {
		t.Fatal(err)
	}

	partPath := filepath.Join(dir, res.Parts[0].Filename)
	part, err := os.ReadFile(partPath)
	if err != nil {
		t.Fatal(err)
	}
	part[0] ^= 0xff
	if err := os.WriteFile(partPath, part, 0644); err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	_, err = Unbundle(&UnbundleRequest{ManifestPath: res.ManifestPath, Destination: outDir})
	if err == nil {
		t.Fatal("corrupt part went unnoticed")
	}
	if !strings.Contains(err.Error(), "corrupt") {
		t.Errorf("err = %v, want a corrupt part complaint", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "disk.img")); !os.IsNotExist(err) {
		t.Error("failed restore left an output file behind")
	}
}

func TestUnbundleRejectsBadStream(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "disk.img")
	if err := os.WriteFile(imagePath, make([]byte, 32*1024), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := CreateBundle(&Request{ImagePath: imagePath, Destination: dir})
	if err != nil {
		t.Fatal(err)
	}

	// not gzip, but with a matching part digest so it gets fed through
	garbage := make([]byte, 4096)
	rand.New(rand.NewSource(9)).Read(garbage)
	partPath := filepath.Join(dir, res.Parts[0].Filename)
	if err := os.WriteFile(partPath, garbage, 0644); err != nil {
		t.Fatal(err)
	}
	m, err := ReadManifest(res.ManifestPath)
	if err != nil {
		t.Fatal(err)
	}
	m.Image.Parts.Parts[0].Digest.Value = fmt.Sprintf("%x", sha1.Sum(garbage))
	if err := WriteManifest(m, res.ManifestPath); err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	if _, err := Unbundle(&UnbundleRequest{ManifestPath: res.ManifestPath, Destination: outDir}); err == nil {
		t.Fatal("a broken compressed stream restored successfully")
	}
	if _, err := os.Stat(filepath.Join(outDir, "disk.img")); !os.IsNotExist(err) {
		t.Error("failed restore left an output file behind")
	}
}

func TestCreateBundleMissingImage(t *testing.T) {
	if _, err := CreateBundle(&Request{ImagePath: filepath.Join(t.TempDir(), "nope.img")}); err == nil {
		t.Fatal("bundling a missing image succeeded")
	}
}

func TestCreateBundleBadPrefix(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "disk.img")
	if err := os.WriteFile(imagePath, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := CreateBundle(&Request{ImagePath: imagePath, Destination: dir, Prefix: "../evil"})
	if err == nil || !strings.Contains(err.Error(), "prefix") {
		t.Errorf("err = %v, want a prefix complaint", err)
	}
}

func TestCreateBundleBadLevel(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "disk.img")
	if err := os.WriteFile(imagePath, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := CreateBundle(&Request{ImagePath: imagePath, Destination: dir, Level: 17})
	if err == nil || !strings.Contains(err.Error(), "compression level") {
		t.Errorf("err = %v, want a level complaint", err)
	}
}
