package install

import (
	"path/filepath"
	"strings"

	"github.com/go-errors/errors"
)

// InstructionType is the closed set of install actions an Installer can
// emit. See spec.md §4.1.
type InstructionType string

const (
	InstructionCopy         InstructionType = "copy"
	InstructionMkdir        InstructionType = "mkdir"
	InstructionSubmodule    InstructionType = "submodule"
	InstructionGenerateFile InstructionType = "generatefile"
	InstructionIniEdit      InstructionType = "iniedit"
	InstructionUnsupported  InstructionType = "unsupported"
	InstructionAttribute    InstructionType = "attribute"
	InstructionSetModType   InstructionType = "setmodtype"
	InstructionError        InstructionType = "error"
	InstructionRule         InstructionType = "rule"
)

// Instruction is a tagged union of install primitives. Only the fields
// relevant to Type are populated; the rest are left at their zero value.
type Instruction struct {
	Type InstructionType

	// copy
	Source      string
	Destination string

	// mkdir reuses Destination

	// generatefile
	Data []byte
	// generatefile reuses Destination

	// iniedit
	Section string
	Key     string
	Value   string
	// iniedit reuses Destination

	// submodule
	Path          string
	SubmoduleType string
	// submodule reuses Key for the submodule's attribute key

	// attribute reuses Key/Value

	// setmodtype reuses Value

	// rule
	Rule *ModRule

	// error
	// reuses Value (expects "fatal" for fatal errors) and Source
}

// ValidateDestination normalises a destination path the way spec.md §4.1
// and §4.6 describe: POSIX separators are rewritten to the platform
// separator where the platform needs it, a leading separator is
// tolerated (stripped), and the result must stay inside stagingRoot.
//
// It returns the cleaned, root-relative path.
func ValidateDestination(stagingRoot, destination string) (string, error) {
	if destination == "" {
		return "", errors.New("empty destination")
	}

	cleaned := destination
	if filepath.Separator != '/' {
		cleaned = strings.ReplaceAll(cleaned, "/", string(filepath.Separator))
	}
	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))

	joined := filepath.Join(stagingRoot, cleaned)
	rel, err := filepath.Rel(stagingRoot, joined)
	if err != nil {
		return "", errors.Wrap(err, 0)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("destination escapes staging root: %s", destination)
	}

	if len(joined) > maxPathLength {
		return "", errors.Errorf("destination exceeds maximum path length: %s", destination)
	}

	if hasReservedName(rel) {
		return "", errors.Errorf("destination uses a reserved name: %s", destination)
	}

	return rel, nil
}

// maxPathLength is conservative enough to be safe on both typical Linux
// filesystems (no hard per-path limit, but component limits of 255) and
// Windows' legacy MAX_PATH of 260.
const maxPathLength = 255

var reservedWindowsNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
	"LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

func hasReservedName(relPath string) bool {
	for _, part := range strings.Split(relPath, string(filepath.Separator)) {
		name := strings.ToUpper(strings.TrimSuffix(part, filepath.Ext(part)))
		if reservedWindowsNames[name] {
			return true
		}
	}
	return false
}

// knownArchiveExtensions is the set recognised as true archives for the
// "not an archive" fallback gate (spec.md §6).
var knownArchiveExtensions = map[string]bool{
	".zip": true, ".z01": true, ".7z": true, ".rar": true,
	".r00": true, ".001": true, ".bz2": true, ".bzip2": true,
	".gz": true, ".gzip": true, ".xz": true, ".z": true, ".lzh": true,
}

// IsKnownArchiveExtension reports whether ext (as returned by
// filepath.Ext, including the leading dot) is a recognised archive type.
func IsKnownArchiveExtension(ext string) bool {
	return knownArchiveExtensions[strings.ToLower(ext)]
}
