// Package eucarc resolves cloud credentials and endpoints the way the
// classic euca tools always have: a eucarc file found in a well known
// spot, with the process environment filling the gaps.
package eucarc

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
)

// Variable names understood by every euca tool, in the environment and in
// eucarc files alike.
const (
	EnvAccessKey  = "EC2_ACCESS_KEY"
	EnvSecretKey  = "EC2_SECRET_KEY"
	EnvAccountID  = "EC2_USER_ID"
	EnvEC2URL     = "EC2_URL"
	EnvS3URL      = "S3_URL"
	EnvCert       = "EC2_CERT"
	EnvPrivateKey = "EC2_PRIVATE_KEY"
	EnvCloudCert  = "EUCALYPTUS_CERT"
	EnvConfig     = "EUCA_CONFIG"
)

// Config carries everything the tools need to talk to a cloud. One gets
// built per invocation and threaded through explicitly; there is no
// global credential state.
type Config struct {
	AccessKey string
	SecretKey string
	AccountID string

	EC2URL string
	S3URL  string

	CertPath       string
	PrivateKeyPath string
	CloudCertPath  string
}

// Resolve builds the effective configuration. explicit is a path given on
// the command line; when empty, $EUCA_CONFIG and then the usual spots are
// tried. The returned string is the file actually read, empty when only
// the environment contributed. Values from the file win over the
// environment for the keys the file sets.
func Resolve(explicit string) (*Config, string, error) {
	cfg := FromEnviron()

	path := explicit
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			path = filepath.Join(path, "eucarc")
		}
		fileCfg, err := Load(path)
		if err != nil {
			return nil, "", err
		}
		cfg.merge(fileCfg)
		return cfg, path, nil
	}

	path = defaultPath()
	if path == "" {
		return cfg, "", nil
	}
	fileCfg, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	cfg.merge(fileCfg)
	return cfg, path, nil
}

// FromEnviron builds a Config from the process environment alone.
func FromEnviron() *Config {
	return &Config{
		AccessKey:      os.Getenv(EnvAccessKey),
		SecretKey:      os.Getenv(EnvSecretKey),
		AccountID:      os.Getenv(EnvAccountID),
		EC2URL:         os.Getenv(EnvEC2URL),
		S3URL:          os.Getenv(EnvS3URL),
		CertPath:       os.Getenv(EnvCert),
		PrivateKeyPath: os.Getenv(EnvPrivateKey),
		CloudCertPath:  os.Getenv(EnvCloudCert),
	}
}

// Load reads one eucarc file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		dir = filepath.Dir(path)
	}
	return Parse(f, dir)
}

// Parse reads eucarc content. Only `export`ed variables count, which is
// also what a shell sourcing the file would hand to a client tool; the
// EUCA_KEY_DIR shell gymnastics, aliases and comments all fall out. keyDir
// replaces ${EUCA_KEY_DIR} in values and is the directory the file sits
// in.
func Parse(r io.Reader, keyDir string) (*Config, error) {
	var exports bytes.Buffer
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "export ") {
			continue
		}
		exports.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "export ")))
		exports.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	f, err := ini.InsensitiveLoad(exports.Bytes())
	if err != nil {
		return nil, fmt.Errorf("parsing eucarc: %v", err)
	}

	sec := f.Section("")
	val := func(name string) string {
		v := sec.Key(name).String()
		return strings.ReplaceAll(v, "${EUCA_KEY_DIR}", keyDir)
	}

	return &Config{
		AccessKey:      val(EnvAccessKey),
		SecretKey:      val(EnvSecretKey),
		AccountID:      val(EnvAccountID),
		EC2URL:         val(EnvEC2URL),
		S3URL:          val(EnvS3URL),
		CertPath:       val(EnvCert),
		PrivateKeyPath: val(EnvPrivateKey),
		CloudCertPath:  val(EnvCloudCert),
	}, nil
}

// merge overlays file values onto c; the file wins wherever it speaks.
func (c *Config) merge(file *Config) {
	if file.AccessKey != "" {
		c.AccessKey = file.AccessKey
	}
	if file.SecretKey != "" {
		c.SecretKey = file.SecretKey
	}
	if file.AccountID != "" {
		c.AccountID = file.AccountID
	}
	if file.EC2URL != "" {
		c.EC2URL = file.EC2URL
	}
	if file.S3URL != "" {
		c.S3URL = file.S3URL
	}
	if file.CertPath != "" {
		c.CertPath = file.CertPath
	}
	if file.PrivateKeyPath != "" {
		c.PrivateKeyPath = file.PrivateKeyPath
	}
	if file.CloudCertPath != "" {
		c.CloudCertPath = file.CloudCertPath
	}
}

// defaultPath looks in the usual spots: ~/.eucarc, either the file itself
// or a directory holding one, then the system wide /etc location.
func defaultPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".eucarc")
		if fi, err := os.Stat(p); err == nil {
			if fi.IsDir() {
				p = filepath.Join(p, "eucarc")
				if _, err := os.Stat(p); err == nil {
					return p
				}
			} else {
				return p
			}
		}
	}
	if _, err := os.Stat("/etc/euca2ools/eucarc"); err == nil {
		return "/etc/euca2ools/eucarc"
	}
	return ""
}

// ValidateCredentials checks that keys for signing requests are present.
func (c *Config) ValidateCredentials() error {
	if c.AccessKey == "" {
		return errors.New("access key not set, export " + EnvAccessKey + " or use a eucarc")
	}
	if c.SecretKey == "" {
		return errors.New("secret key not set, export " + EnvSecretKey + " or use a eucarc")
	}
	return nil
}

// ValidateS3 checks everything an object store upload needs.
func (c *Config) ValidateS3() error {
	if err := c.ValidateCredentials(); err != nil {
		return err
	}
	if c.S3URL == "" {
		return errors.New("storage endpoint not set, export " + EnvS3URL + " or use a eucarc")
	}
	return nil
}
