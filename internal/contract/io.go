package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

// Timestamp formats t as the ISO-8601 form used throughout contract files,
// e.g. 2024-11-27T10:00:00Z.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// Load reads a contract document from a YAML file.
func Load(path string) (*Contract, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes a contract from YAML bytes.
func Parse(b []byte) (*Contract, error) {
	var c Contract
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse contract: %w", err)
	}
	if c.Models == nil {
		c.Models = map[string]Model{}
	}
	return &c, nil
}

// Save writes the contract atomically to path, creating parent directories
// as needed. The write goes to a temp file in the target directory which is
// then renamed, so readers never observe a partially-written contract.
func Save(c *Contract, path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode contract: %w", err)
	}
	return WriteFileAtomic(path, b)
}

// WriteFileAtomic writes b to path via a sibling temp file and rename.
// Parent directories are created as needed.
func WriteFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
