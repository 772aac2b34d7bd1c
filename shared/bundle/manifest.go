package bundle

import (
	"encoding/xml"
	"fmt"
	"os"
)

// Manifests use the classic AMI document layout, trimmed to the fields an
// unencrypted bundle needs.
const manifestVersion = "2007-10-10"

// digestAlgorithm tags every digest in the manifest.
const digestAlgorithm = "SHA1"

// Manifest mirrors the XML document written next to the parts.
type Manifest struct {
	XMLName xml.Name    `xml:"manifest"`
	Version string      `xml:"version"`
	Bundler BundlerInfo `xml:"bundler"`
	Image   ImageInfo   `xml:"image"`
}

// BundlerInfo identifies the tool that wrote a bundle.
type BundlerInfo struct {
	Name    string `xml:"name"`
	Version string `xml:"version"`
	Release string `xml:"release,omitempty"`
}

// ImageInfo describes the bundled image and its parts.
type ImageInfo struct {
	Name        string   `xml:"name"`
	User        string   `xml:"user,omitempty"`
	Type        string   `xml:"type"`
	Digest      Digest   `xml:"digest"`
	Size        int64    `xml:"size"`
	BundledSize int64    `xml:"bundled_size"`
	Parts       PartList `xml:"parts"`
}

// Digest is a hex digest tagged with its algorithm.
type Digest struct {
	Algorithm string `xml:"algorithm,attr"`
	Value     string `xml:",chardata"`
}

// PartList wraps the ordered part references.
type PartList struct {
	Count int       `xml:"count,attr"`
	Parts []PartRef `xml:"part"`
}

// PartRef names one part file and its digest.
type PartRef struct {
	Index    int    `xml:"index,attr"`
	Filename string `xml:"filename"`
	Digest   Digest `xml:"digest"`
}

// WriteManifest serializes m to path.
func WriteManifest(m *Manifest, path string) error {
	out, err := xml.MarshalIndent(m, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(xml.Header), out...), 0644)
}

// ReadManifest parses the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := xml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %v", path, err)
	}
	return &m, nil
}
