package procutil

import (
	"fmt"
	"os/exec"
	"strings"
)

// CertFingerprint asks openssl for the SHA1 fingerprint of the X.509
// certificate at certFile and returns it as bare lowercase hex. openssl
// runs as a plain synchronous child; it is not a pipeline worker.
func CertFingerprint(certFile string) (string, error) {
	out, err := exec.Command("openssl", "x509", "-in", certFile,
		"-fingerprint", "-sha1", "-noout").Output()
	if err != nil {
		return "", fmt.Errorf("openssl fingerprint of %s: %v", certFile, err)
	}
	fp := parseFingerprint(string(out))
	if fp == "" {
		return "", fmt.Errorf("openssl returned no fingerprint for %s", certFile)
	}
	return fp, nil
}

// parseFingerprint digs the digest out of openssl output shaped like
// "SHA1 Fingerprint=AA:BB:...": everything after the last equals sign,
// colons dropped, lowercased.
func parseFingerprint(out string) string {
	s := strings.TrimSpace(out)
	if i := strings.LastIndex(s, "="); i >= 0 {
		s = s[i+1:]
	}
	return strings.ToLower(strings.ReplaceAll(s, ":", ""))
}
