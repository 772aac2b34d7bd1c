package procutil

import (
	"os/exec"
	"path/filepath"
	"regexp"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func Test_ParseFingerprint(t *testing.T) {
	Convey("openssl output reduces to bare lowercase hex", t, func() {
		testCases := []struct {
			In  string
			Out string
		}{
			{"SHA1 Fingerprint=AA:BB:CC:DD", "aabbccdd"},
			{"SHA1 Fingerprint=AA:BB:CC:DD:EE:FF\n", "aabbccddeeff"},
			{"SHA1 Fingerprint=00:11:22:33", "00112233"},
			{"sha1 Fingerprint=A1:b2:C3\n\n", "a1b2c3"},
			{"Fingerprint=DE:AD=BE:EF", "beef"},
			{"", ""},
		}

		for _, tc := range testCases {
			So(parseFingerprint(tc.In), ShouldEqual, tc.Out)
		}
	})
}

func Test_CertFingerprint(t *testing.T) {
	if _, err := exec.LookPath("openssl"); err != nil {
		t.Skip("openssl not installed")
	}

	Convey("A freshly minted certificate fingerprints to 40 hex chars", t, func() {
		dir := t.TempDir()
		key := filepath.Join(dir, "key.pem")
		crt := filepath.Join(dir, "crt.pem")

		gen := exec.Command("openssl", "req", "-x509", "-newkey", "rsa:2048", "-nodes",
			"-subj", "/CN=euca-test", "-keyout", key, "-out", crt, "-days", "1")
		out, err := gen.CombinedOutput()
		So(err, ShouldBeNil)
		So(out, ShouldNotBeNil)

		fp, err := CertFingerprint(crt)
		So(err, ShouldBeNil)
		So(regexp.MustCompile(`^[0-9a-f]{40}$`).MatchString(fp), ShouldBeTrue)
	})

	Convey("A missing certificate is an error", t, func() {
		_, err := CertFingerprint(filepath.Join(t.TempDir(), "nope.pem"))
		So(err, ShouldNotBeNil)
	})
}
