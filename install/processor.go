package install

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/dchest/safefile"
	"github.com/itchio/wharf/state"
	"github.com/pkg/errors"

	"github.com/peterkwkwan/modinstall/install/dialog"
)

// SubmoduleRunner recursively runs pipeline steps 8-13 (spec.md §4.6
// step 9) on a nested archive found inside the current staging tree. It
// is supplied by the Pipeline so the Processor doesn't need to know how
// to start a pipeline itself.
type SubmoduleRunner func(ctx context.Context, nestedArchivePath string) error

// ProcessResult is everything the Instruction Processor accumulated
// across one instruction list (spec.md §4.6).
type ProcessResult struct {
	ModType      string
	Attributes   map[string]string
	Rules        []ModRule
	MissingFiles []string
	// CopiedFiles lists every destination path this run actually wrote
	// (copy, generatefile, and iniedit outputs alike), relative to
	// DestinationPath. The pipeline's ghost-busting pass (SPEC_FULL.md
	// §C.1) uses this to tell "files this install wrote" apart from
	// "whatever SaveAngels happened to restore".
	CopiedFiles []string
}

// ProcessorParams groups the processor's dependencies.
type ProcessorParams struct {
	Consumer        *state.Consumer
	Dialog          dialog.Dialog
	StagingRoot     string
	DestinationPath string
	ModID           string
	ArchiveHash     string
	RunSubmodule    SubmoduleRunner
}

type modTypeCandidate struct {
	order int
	value string
}

// ProcessInstructions runs the strictly-ordered steps of spec.md §4.6
// against instructions. It returns a *Error of KindProcessCanceled if a
// fatal `error` instruction is present; an error from RunSubmodule is
// returned unchanged and may itself be an *Error of any Kind; any other
// returned error is a genuine processing failure (disk full, permission denied on every
// fallback, etc.) and should be treated as KindUnknown by the caller.
func ProcessInstructions(ctx context.Context, params ProcessorParams, instructions []Instruction) (*ProcessResult, error) {
	res := &ProcessResult{Attributes: map[string]string{}}

	groups := groupByType(params.Consumer, instructions)

	// Step 3: report errors.
	if errs := groups[InstructionError]; len(errs) > 0 {
		for _, e := range errs {
			if e.Value == "fatal" {
				return nil, WrapError(KindProcessCanceled, errors.Errorf("installer reported fatal error: %s", e.Source), "installer reported a fatal error")
			}
		}
		for _, e := range errs {
			params.Dialog.Notify(ctx, "Installer reported an error", e.Source+": "+e.Value, false)
		}
	}

	// Step 4: report unsupported.
	if unsupported := groups[InstructionUnsupported]; len(unsupported) > 0 {
		params.Dialog.Notify(ctx, "Installer feature not implemented",
			"Some parts of this installer aren't supported yet; you can report this.", true)
	}

	// Step 5: mkdir.
	for _, ins := range groups[InstructionMkdir] {
		dest, ok := validate(params, ins.Destination)
		if !ok {
			continue
		}
		if err := os.MkdirAll(filepath.Join(params.DestinationPath, dest), 0o755); err != nil {
			return nil, errors.Wrap(err, "creating directory")
		}
	}

	// Step 6: copy / extract stage.
	if err := processCopies(params, groups[InstructionCopy], res); err != nil {
		return nil, err
	}

	// Step 7: generatefile.
	for _, ins := range groups[InstructionGenerateFile] {
		dest, ok := validate(params, ins.Destination)
		if !ok {
			continue
		}
		full := filepath.Join(params.DestinationPath, dest)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, errors.Wrap(err, "creating parent directory for generated file")
		}
		if err := writeFileAtomic(full, ins.Data); err != nil {
			return nil, errors.Wrap(err, "writing generated file")
		}
		res.CopiedFiles = append(res.CopiedFiles, dest)
	}

	// Step 8: iniedit.
	if err := processIniEdits(params, groups[InstructionIniEdit], res); err != nil {
		return nil, err
	}

	// Step 9: submodule.
	var candidates []modTypeCandidate
	order := 0
	for _, ins := range groups[InstructionSubmodule] {
		if params.RunSubmodule != nil {
			if err := params.RunSubmodule(ctx, ins.Path); err != nil {
				return nil, err
			}
		}
		if ins.SubmoduleType != "" {
			candidates = append(candidates, modTypeCandidate{order: order, value: ins.SubmoduleType})
			order++
		}
	}

	// Step 10: attribute.
	for _, ins := range groups[InstructionAttribute] {
		res.Attributes[ins.Key] = ins.Value
	}

	// Step 11: setmodtype — last one wins, remaining are logged.
	for _, ins := range groups[InstructionSetModType] {
		candidates = append(candidates, modTypeCandidate{order: order, value: ins.Value})
		order++
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].order < candidates[j].order })
	for i, c := range candidates {
		if i == len(candidates)-1 {
			res.ModType = c.value
		} else {
			params.Consumer.Infof("ignoring mod type %q, superseded by a later instruction", c.value)
		}
	}

	// Step 12: rule.
	for _, ins := range groups[InstructionRule] {
		if ins.Rule != nil {
			res.Rules = append(res.Rules, *ins.Rule)
		}
	}

	if len(res.MissingFiles) > 0 {
		params.Dialog.Notify(ctx, "Some files were missing",
			params.ModID+": some files referenced by the installer were not found in the archive", false)
	}

	return res, nil
}

func validate(params ProcessorParams, destination string) (string, bool) {
	dest, err := ValidateDestination(params.DestinationPath, destination)
	if err != nil {
		params.Consumer.Warnf("invalid destination %q: %s", destination, err.Error())
		return "", false
	}
	return dest, true
}

// groupByType partitions instructions by type; anything outside the
// closed set (spec.md §4.1) is silently dropped after a log line,
// implementing spec.md §4.6 step 2.
func groupByType(consumer *state.Consumer, instructions []Instruction) map[InstructionType][]Instruction {
	groups := map[InstructionType][]Instruction{}
	for _, ins := range instructions {
		switch ins.Type {
		case InstructionCopy, InstructionMkdir, InstructionSubmodule, InstructionGenerateFile,
			InstructionIniEdit, InstructionUnsupported, InstructionAttribute, InstructionSetModType,
			InstructionError, InstructionRule:
			groups[ins.Type] = append(groups[ins.Type], ins)
		default:
			consumer.Warnf("dropping instruction of unknown type %q", ins.Type)
		}
	}
	return groups
}

// processCopies implements spec.md §4.6 step 6: group copy instructions
// by source, copy to all destinations but the last, move (rename) to the
// last. A missing source is recorded, not fatal.
func processCopies(params ProcessorParams, copies []Instruction, res *ProcessResult) error {
	bySource := map[string][]Instruction{}
	var order []string
	for _, ins := range copies {
		if _, seen := bySource[ins.Source]; !seen {
			order = append(order, ins.Source)
		}
		bySource[ins.Source] = append(bySource[ins.Source], ins)
	}

	for _, source := range order {
		dests := bySource[source]
		srcPath := filepath.Join(params.StagingRoot, source)

		if _, err := os.Stat(srcPath); err != nil {
			res.MissingFiles = append(res.MissingFiles, source)
			continue
		}

		for i, ins := range dests {
			dest, ok := validate(params, ins.Destination)
			if !ok {
				continue
			}
			destPath := filepath.Join(params.DestinationPath, dest)
			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return errors.Wrap(err, "creating parent directory for copy")
			}

			isMove := i == len(dests)-1
			if isMove {
				if err := moveOrCopy(srcPath, destPath); err != nil {
					return errors.Wrap(err, "staging file")
				}
			} else {
				if err := copyFile(srcPath, destPath); err != nil {
					return errors.Wrap(err, "staging file")
				}
			}
			res.CopiedFiles = append(res.CopiedFiles, dest)
		}
	}

	return nil
}

// moveOrCopy renames src to dst, falling back to a copy+leave-src-in-place
// if the rename fails with a permission error (spec.md §4.6 step 6).
func moveOrCopy(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if os.IsPermission(err) {
		return copyFile(src, dst)
	}
	if linkErr, ok := err.(*os.LinkError); ok && os.IsPermission(linkErr.Err) {
		return copyFile(src, dst)
	}
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// processIniEdits implements spec.md §4.6 step 8: for every distinct
// destination, group by section, render "[section]\nkey = value\n..."
// with platform line endings, and write under
// "<destinationPath>/Ini Tweaks/<destination>".
func processIniEdits(params ProcessorParams, edits []Instruction, res *ProcessResult) error {
	type sectionKey struct{ destination, section string }
	order := []sectionKey{}
	grouped := map[sectionKey][]Instruction{}

	for _, ins := range edits {
		key := sectionKey{destination: ins.Destination, section: ins.Section}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], ins)
	}

	byDestination := map[string][]sectionKey{}
	var destOrder []string
	for _, key := range order {
		if _, ok := byDestination[key.destination]; !ok {
			destOrder = append(destOrder, key.destination)
		}
		byDestination[key.destination] = append(byDestination[key.destination], key)
	}

	eol := "\n"
	if runtime.GOOS == "windows" {
		eol = "\r\n"
	}

	for _, destination := range destOrder {
		dest, ok := validate(params, filepath.Join("Ini Tweaks", destination))
		if !ok {
			continue
		}
		full := filepath.Join(params.DestinationPath, dest)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return errors.Wrap(err, "creating Ini Tweaks directory")
		}

		var out string
		for _, key := range byDestination[destination] {
			out += "[" + key.section + "]" + eol
			for _, ins := range grouped[key] {
				out += ins.Key + " = " + ins.Value + eol
			}
		}

		if err := writeFileAtomic(full, []byte(out)); err != nil {
			return errors.Wrap(err, "writing ini tweak")
		}
		res.CopiedFiles = append(res.CopiedFiles, dest)
	}

	return nil
}

// writeFileAtomic writes data to path via github.com/dchest/safefile, the
// same atomic-commit pattern the teacher uses for its resumable context
// file (cmd/operate/context.go): a crash or conflicting writer never
// leaves a half-written generatefile/iniedit output behind.
func writeFileAtomic(path string, data []byte) error {
	f, err := safefile.Create(path, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Commit()
}
