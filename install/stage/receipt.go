package stage

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/dchest/safefile"
	"github.com/pkg/errors"
)

// Receipt describes what a previous pipeline run installed to a given
// folder. Written on every successful install, read back on the next one
// to drive ghost-busting and angel-saving (SPEC_FULL.md §C.2). Teacher:
// installer/bfs/receipt.go.
type Receipt struct {
	InstallerName string   `json:"installerName"`
	ModID         string   `json:"modId"`
	Files         []string `json:"files"`
}

// HasFiles reports whether r is non-nil and describes at least one file.
func (r *Receipt) HasFiles() bool {
	return r != nil && len(r.Files) > 0
}

func ReceiptPath(installFolder string) string {
	return filepath.Join(installFolder, ".modinstall", "receipt.json.gz")
}

// ReadReceipt reads the receipt for installFolder, returning (nil, nil)
// if none exists yet.
func ReadReceipt(installFolder string) (*Receipt, error) {
	path := ReceiptPath(installFolder)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "opening receipt")
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing receipt")
	}
	defer gzr.Close()

	var receipt Receipt
	if err := json.NewDecoder(gzr).Decode(&receipt); err != nil {
		return nil, errors.Wrap(err, "decoding receipt")
	}
	return &receipt, nil
}

// WriteReceipt writes r for installFolder, creating parent directories
// as needed. The write is atomic (github.com/dchest/safefile, the same
// way the teacher commits its resumable context file in
// cmd/operate/context.go): a crash mid-write leaves the previous
// receipt, if any, intact rather than a half-written one.
func (r *Receipt) WriteReceipt(installFolder string) error {
	path := ReceiptPath(installFolder)
	if err := Mkdir(filepath.Dir(path)); err != nil {
		return errors.Wrap(err, "creating receipt directory")
	}

	f, err := safefile.Create(path, 0o644)
	if err != nil {
		return errors.Wrap(err, "creating receipt file")
	}
	defer f.Close()

	gzw := gzip.NewWriter(f)
	if err := json.NewEncoder(gzw).Encode(r); err != nil {
		return errors.Wrap(err, "encoding receipt")
	}
	if err := gzw.Close(); err != nil {
		return errors.Wrap(err, "flushing receipt")
	}

	if err := f.Commit(); err != nil {
		return errors.Wrap(err, "committing receipt")
	}
	return nil
}
