package install

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/itchio/wharf/state"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"

	"github.com/peterkwkwan/modinstall/install/dialog"
	"github.com/peterkwkwan/modinstall/install/metadata"
	"github.com/peterkwkwan/modinstall/install/stage"
)

// Archive is the external input to one pipeline run (spec.md §3).
type Archive struct {
	Path            string
	ArchiveID       string
	DownloadGameIDs []string
}

// InstallRequest is everything the install(...) entry point of spec.md
// §6 takes beyond the archive itself.
type InstallRequest struct {
	Archive             Archive
	Info                *ModInfo
	ProcessDependencies bool
	Enable              bool
	ForceGameID         string
	FileList            []FileEntry
	Unattended          bool
	Choices             map[string]interface{}
}

// PipelineResult is what one pipeline run ends with.
type PipelineResult struct {
	GameID string
	ModID  string
	Status Status
	Error  *Error
}

// Pipeline drives one archive through the 15 states of spec.md §4.5. One
// Pipeline is reused across every install(...) call; per-run state lives
// in the run itself, not on the Pipeline, the way the teacher's
// operate.Operation is reused across cmd/operate invocations.
type Pipeline struct {
	Consumer  *state.Consumer
	Registry  *Registry
	ModTypes  *ModTypeRegistry
	Extractor Extractor
	Dialog    dialog.Dialog
	Store     Store
	Metadata  metadata.Lookup
	Events    Events

	// InstallDir is the per-game install root; the staging and final
	// directories are InstallDir/<modId>.installing and
	// InstallDir/<modId> (spec.md §3 invariants).
	InstallDir string
}

// Run advances a single archive through the whole pipeline. It never
// panics on a classified error: every failure path returns a non-nil
// *PipelineResult with Status and Error set, and the same *Error as the
// second return value so callers can type-assert without re-unwrapping a
// PipelineResult. The one exception is a failure to persist the installed
// mod, which happens after the context was finished as a success: it
// returns a nil *PipelineResult and a wrapped error that is not an *Error.
func (p *Pipeline) Run(ctx context.Context, req InstallRequest) (*PipelineResult, error) {
	ictx := NewContext(p.Consumer)
	ictx.StartIndicator("install")

	gameID, ierr := p.resolveGame(ctx, req)
	if ierr != nil {
		return p.abort(ictx, "", gameID, ierr)
	}

	md5hex, size, hashErr := hashArchive(req.Archive.Path)
	if hashErr != nil {
		p.Consumer.Warnf("hashing %s failed, continuing without it: %s", req.Archive.Path, hashErr.Error())
	} else {
		p.Consumer.Infof("%s: %s (md5 %s)", req.Archive.Path, humanize.IBytes(uint64(size)), md5hex)
	}

	info := req.Info
	if info == nil {
		info = NewModInfo()
	}
	fileID := p.lookupMeta(ctx, req, info, md5hex, size, gameID)

	resolution, ierr := p.resolveNameAndVersion(ctx, gameID, req.Archive.Path, fileID)
	if ierr != nil {
		return p.abort(ictx, "", gameID, ierr)
	}
	if resolution.removePriorID != "" {
		if err := p.Store.RemoveMod(gameID, resolution.removePriorID); err != nil {
			return p.abort(ictx, resolution.modID, gameID, WrapError(KindUnknown, err, "removing prior mod"))
		}
	}
	if resolution.inheritRules != nil {
		info.Set(KeyPrevious, resolution.inheritRules)
	}

	ictx.StartInstall(resolution.modID, gameID, req.Archive.ArchiveID)

	if err := p.Events.WillInstallMod(ctx, gameID, req.Archive.ArchiveID, resolution.modID, info); err != nil {
		return p.abort(ictx, resolution.modID, gameID, WrapError(KindUnknown, err, "will-install-mod listener failed"))
	}

	destinationPath := filepath.Join(p.InstallDir, resolution.modID)
	tempPath := destinationPath + ".installing"
	ictx.SetInstallPath(resolution.modID, destinationPath)

	if ierr := p.extract(ctx, req.Archive.Path, tempPath); ierr != nil {
		return p.abort(ictx, resolution.modID, gameID, ierr)
	}

	entries, err := stage.Walk(tempPath)
	if err != nil {
		return p.abort(ictx, resolution.modID, gameID, WrapError(KindUnknown, err, "enumerating extracted files"))
	}
	files := toFileEntries(entries)

	installer, ierr := p.selectInstaller(files, gameID, req.FileList)
	if ierr != nil {
		return p.abort(ictx, resolution.modID, gameID, ierr)
	}

	instructions, ierr := p.runInstaller(installer, files, tempPath, gameID, ictx, req)
	if ierr != nil {
		return p.abort(ictx, resolution.modID, gameID, ierr)
	}

	modType := resolution.reusedModType
	if modType == "" {
		modType = p.ModTypes.Determine(gameID, instructions)
	}

	// prevReceipt is read before the switcheroo below touches (and
	// eventually discards) whatever receipt is currently on disk; it's
	// what the ghost-busting pass after ProcessInstructions compares
	// against.
	prevReceipt, receiptErr := stage.ReadReceipt(destinationPath)
	if receiptErr != nil {
		p.Consumer.Warnf("could not read previous receipt, skipping ghost cleanup: %s", receiptErr.Error())
	}

	// The write into destinationPath goes through the switcheroo dance
	// (stage.SaveAngels): on a plain first-time install there's nothing to
	// save, but on a replace/reinstall this is what turns "write fresh
	// files over a folder that already has a receipt" into "move the old
	// folder aside, write fresh, then restore anything the receipt didn't
	// know about" instead of leaving stale files behind indefinitely.
	var procRes *ProcessResult
	_, err = stage.SaveAngels(&stage.SaveAngelsParams{
		Consumer: p.Consumer,
		Folder:   destinationPath,
	}, func() error {
		var innerErr error
		procRes, innerErr = ProcessInstructions(ctx, ProcessorParams{
			Consumer:        p.Consumer,
			Dialog:          p.Dialog,
			StagingRoot:     tempPath,
			DestinationPath: destinationPath,
			ModID:           resolution.modID,
			ArchiveHash:     md5hex,
			RunSubmodule: func(ctx context.Context, nestedArchivePath string) error {
				return p.runSubmodule(ctx, gameID, resolution.modID, tempPath, destinationPath, nestedArchivePath)
			},
		}, instructions)
		return innerErr
	})
	if err != nil {
		if ie, ok := AsInstallError(err); ok {
			return p.abort(ictx, resolution.modID, gameID, ie)
		}
		return p.abort(ictx, resolution.modID, gameID, WrapError(KindUnknown, err, "processing instructions"))
	}
	if procRes.ModType != "" {
		modType = procRes.ModType
	}
	if modType != "" {
		ictx.SetModType(resolution.modID, modType)
	}

	// SaveAngels only restores files the previous receipt never tracked, so
	// receipt entries this run didn't rewrite are normally gone already.
	// BustGhosts (SPEC_FULL.md §C.1) removes any that remain: receipt
	// entries absent from procRes.CopiedFiles, leaving true angels (files
	// the receipt never tracked, e.g. save games) alone.
	if err := stage.BustGhosts(&stage.BustGhostsParams{
		Consumer: p.Consumer,
		Folder:   destinationPath,
		NewFiles: procRes.CopiedFiles,
		Receipt:  prevReceipt,
	}); err != nil {
		p.Consumer.Warnf("ghost cleanup failed: %s", err.Error())
	}

	return p.finalise(ctx, ictx, gameID, resolution, destinationPath, tempPath, installer.Name(), modType, procRes, req, info)
}

type nameResolution struct {
	modID            string
	attributes       *ModInfo
	enable           bool
	removePriorID    string
	inheritRules     []ModRule
	inheritOverrides []string
	reusedModType    string
}

// resolveGame implements spec.md §4.5 step 2.
func (p *Pipeline) resolveGame(ctx context.Context, req InstallRequest) (string, *Error) {
	if req.ForceGameID != "" {
		return req.ForceGameID, nil
	}
	if len(req.Archive.DownloadGameIDs) == 1 {
		return req.Archive.DownloadGameIDs[0], nil
	}
	resp, err := p.Dialog.ChooseGame(ctx, dialog.GameChoiceRequest{CandidateGameIDs: req.Archive.DownloadGameIDs})
	if err != nil {
		return "", WrapError(KindUnknown, err, "choosing game")
	}
	if resp.Canceled {
		return "", NewError(KindUserCanceled, "user canceled game selection")
	}
	return resp.GameID, nil
}

// hashArchive implements spec.md §4.5 step 3; failures here are
// non-fatal to the caller.
func hashArchive(path string) (md5hex string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := md5.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), n, nil
}

// lookupMeta implements spec.md §4.5 step 4, merging the first result
// (if any) into info under KeyMeta and returning its fileId, parsed as
// an int64 (0 if absent or unparsable).
func (p *Pipeline) lookupMeta(ctx context.Context, req InstallRequest, info *ModInfo, md5hex string, size int64, gameID string) int64 {
	if p.Metadata == nil {
		return 0
	}
	firstGame := gameID
	if len(req.Archive.DownloadGameIDs) > 0 {
		firstGame = req.Archive.DownloadGameIDs[0]
	}
	results, err := p.Metadata.Lookup(ctx, req.Archive.Path, md5hex, size, firstGame)
	if err != nil || len(results) == 0 {
		if err != nil {
			p.Consumer.Warnf("metadata lookup failed, continuing without it: %s", err.Error())
		}
		return 0
	}
	first := results[0]
	info.Set(KeyMeta, first.Attributes)
	var fileID int64
	fmt.Sscanf(first.FileID, "%d", &fileID)
	return fileID
}

// resolveNameAndVersion implements spec.md §4.5 steps 5-6 as one merged
// loop: an existing mod at the candidate id is either a prior version of
// the same file (version-choice dialog) or an unrelated name collision
// (name-collision dialog).
func (p *Pipeline) resolveNameAndVersion(ctx context.Context, gameID, archivePath string, incomingFileID int64) (*nameResolution, *Error) {
	base := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
	candidateID := base
	res := &nameResolution{attributes: NewModInfo()}

	for attempt := 0; ; attempt++ {
		existing, err := p.Store.GetMod(gameID, candidateID)
		if err != nil {
			return nil, WrapError(KindUnknown, err, "looking up existing mod")
		}
		if existing == nil {
			res.modID = candidateID
			return res, nil
		}

		if IsPriorVersionOfSameFile(existing, incomingFileID) {
			decision, err := ResolveVersionChoice(ctx, p.Dialog, gameID, existing)
			if err != nil {
				return nil, WrapError(KindUnknown, err, "resolving version choice")
			}
			if decision.Canceled {
				return nil, NewError(KindUserCanceled, "user canceled version choice")
			}
			if decision.ReuseID {
				res.modID = candidateID
				res.enable = decision.EnableNew
				res.removePriorID = existing.ID
				res.inheritRules = decision.InheritRules
				res.inheritOverrides = decision.InheritOverrides
				res.reusedModType = existing.ModType
				return res, nil
			}
			candidateID = fmt.Sprintf("%s+%d", base, attempt+2)
			res.enable = decision.EnableNew
			continue
		}

		decision, err := ResolveNameCollision(ctx, p.Dialog, gameID, candidateID, existing)
		if err != nil {
			return nil, WrapError(KindUnknown, err, "resolving name collision")
		}
		if decision.Canceled {
			return nil, NewError(KindUserCanceled, "user canceled name collision")
		}
		if decision.RemovePrior {
			res.modID = decision.FinalModID
			res.attributes = decision.Attributes
			res.enable = decision.Enable
			res.removePriorID = existing.ID
			return res, nil
		}
		candidateID = decision.FinalModID
		res.attributes = decision.Attributes
		res.enable = decision.Enable
	}
}

// extract implements spec.md §4.5 step 8.
func (p *Pipeline) extract(ctx context.Context, archivePath, tempPath string) *Error {
	prompt := func(ctx context.Context) (string, error) {
		pw, err := p.Dialog.PromptPassword(ctx)
		if err != nil {
			return "", err
		}
		if pw == "" {
			return "", NewError(KindUserCanceled, "user declined to provide a password")
		}
		return pw, nil
	}

	result, err := p.Extractor.ExtractFull(ctx, archivePath, tempPath, p.Consumer, prompt)
	if err != nil {
		if ie, ok := AsInstallError(err); ok {
			return ie
		}
		return WrapError(KindUnknown, err, "extracting archive")
	}

	outcome, ierr := ClassifyExtractResult(result)
	switch outcome {
	case ExtractOutcomeSuccess:
		return nil

	case ExtractOutcomeBroken:
		ext := filepath.Ext(archivePath)
		if IsKnownArchiveExtension(ext) {
			return ierr
		}
		resp, dialogErr := p.Dialog.ConfirmNotArchive(ctx, dialog.NotArchiveRequest{FileName: filepath.Base(archivePath)})
		if dialogErr != nil {
			return WrapError(KindUnknown, dialogErr, "confirming not-an-archive fallback")
		}
		if !resp.CreateMod {
			return NewError(KindUserCanceled, "user declined single-file mod creation")
		}
		if err := stage.Mkdir(tempPath); err != nil {
			return WrapError(KindUnknown, err, "creating staging directory for single-file mod")
		}
		if err := copyFile(archivePath, filepath.Join(tempPath, filepath.Base(archivePath))); err != nil {
			return WrapError(KindUnknown, err, "copying single-file mod")
		}
		return nil

	default: // ExtractOutcomeSoftError
		resp, dialogErr := p.Dialog.ConfirmContinueOnExtractErrors(ctx, dialog.ContinueOnExtractErrorsRequest{
			Errors:        result.Errors,
			AllowContinue: true,
		})
		if dialogErr != nil {
			return WrapError(KindUnknown, dialogErr, "confirming extraction errors")
		}
		if !resp.Continue {
			return NewError(KindUserCanceled, "user declined to continue past extraction errors")
		}
		return nil
	}
}

func toFileEntries(entries []stage.Entry) []FileEntry {
	out := make([]FileEntry, len(entries))
	for i, e := range entries {
		out[i] = FileEntry{Path: e.Path, IsDir: e.IsDir}
	}
	return out
}

// selectInstaller implements spec.md §4.5 step 10.
func (p *Pipeline) selectInstaller(files []FileEntry, gameID string, explicitFileList []FileEntry) (Installer, *Error) {
	if explicitFileList != nil {
		return newListInstaller(explicitFileList), nil
	}
	installer, err := p.Registry.Find(files, gameID)
	if err != nil {
		return nil, WrapError(KindUnknown, err, "selecting installer")
	}
	if installer == nil {
		return nil, NewError(KindSetupError, "no installer supports this archive")
	}
	return installer, nil
}

// runInstaller implements spec.md §4.5 step 11.
func (p *Pipeline) runInstaller(installer Installer, files []FileEntry, tempPath, gameID string, ictx *Context, req InstallRequest) ([]Instruction, *Error) {
	progress := func(percent float64) {
		v := percent
		ictx.SetProgress(&v)
	}
	instructions, err := installer.Install(files, tempPath, gameID, progress, req.Choices, req.Unattended)
	if err != nil {
		return nil, NewError(KindUserCanceled, "installer handled its own error: "+err.Error())
	}
	if len(instructions) == 0 {
		return nil, NewError(KindProcessCanceled, "empty archive or no options selected")
	}
	return instructions, nil
}

// runSubmodule implements spec.md §4.6 step 9 / §4.5 steps 8-13 reapplied
// to a nested archive found inside the parent's staging tree. The nested
// staging directory is named with a fresh uuid (teacher:
// endpoints/install/install_queue.go's freshInstallID) rather than a
// sequence counter, so concurrent submodules of sibling pipelines can
// never collide even if they share a parent temp path.
func (p *Pipeline) runSubmodule(ctx context.Context, gameID, modID, parentTempPath, destinationPath, nestedArchivePath string) error {
	nestedArchive := filepath.Join(parentTempPath, nestedArchivePath)
	nestedID := uuid.NewV4()
	nestedTemp := filepath.Join(parentTempPath, "__submodule_"+nestedID.String())

	if ierr := p.extract(ctx, nestedArchive, nestedTemp); ierr != nil {
		return ierr
	}

	entries, err := stage.Walk(nestedTemp)
	if err != nil {
		return WrapError(KindUnknown, err, "enumerating submodule")
	}
	files := toFileEntries(entries)

	installer, ierr := p.selectInstaller(files, gameID, nil)
	if ierr != nil {
		return ierr
	}

	instructions, ierr := p.runInstaller(installer, files, nestedTemp, gameID, NewContext(p.Consumer), InstallRequest{Unattended: true})
	if ierr != nil {
		return ierr
	}

	_, err = ProcessInstructions(ctx, ProcessorParams{
		Consumer:        p.Consumer,
		Dialog:          p.Dialog,
		StagingRoot:     nestedTemp,
		DestinationPath: destinationPath,
		ModID:           modID,
		RunSubmodule: func(ctx context.Context, path string) error {
			return p.runSubmodule(ctx, gameID, modID, nestedTemp, destinationPath, path)
		},
	}, instructions)
	return err
}

// finalise implements spec.md §4.5 step 14.
func (p *Pipeline) finalise(ctx context.Context, ictx *Context, gameID string, resolution *nameResolution, destinationPath, tempPath, installerName, modType string, procRes *ProcessResult, req InstallRequest, info *ModInfo) (*PipelineResult, error) {
	if err := os.RemoveAll(tempPath); err != nil {
		p.Consumer.Warnf("could not remove staging directory %s: %s", tempPath, err.Error())
	}

	// Walked fresh rather than reusing SaveAngels' own file list: BustGhosts
	// may have removed entries since that list was produced.
	finalEntries, err := stage.Walk(destinationPath)
	if err != nil {
		return p.abort(ictx, resolution.modID, gameID, WrapError(KindUnknown, err, "walking final install directory"))
	}
	receipt := &stage.Receipt{InstallerName: installerName, ModID: resolution.modID, Files: stage.FilePaths(finalEntries)}
	if err := receipt.WriteReceipt(destinationPath); err != nil {
		p.Consumer.Warnf("could not write receipt: %s", err.Error())
	}

	for k, v := range procRes.Attributes {
		info.Set(k, v)
	}

	ictx.FinishInstall(StatusSuccess, info, nil)
	ictx.StopIndicator(resolution.modID)

	rules := append([]ModRule{}, resolution.inheritRules...)
	rules = append(rules, procRes.Rules...)

	enable := req.Enable || resolution.enable
	mod := &Mod{
		ID:            resolution.modID,
		Attributes:    info,
		Rules:         rules,
		FileOverrides: resolution.inheritOverrides,
		Enabled:       enable,
		ModType:       modType,
	}
	if err := p.Store.PutMod(gameID, mod); err != nil {
		return nil, errors.Wrap(err, "persisting installed mod")
	}

	if enable {
		if err := p.Store.SetEnabled(gameID, "", []string{resolution.modID}, true); err != nil {
			p.Consumer.Warnf("could not enable %s: %s", resolution.modID, err.Error())
		} else {
			p.Events.ModsEnabled([]string{resolution.modID}, true, gameID)
		}
	}

	p.Events.DidInstallMod(gameID, req.Archive.ArchiveID, resolution.modID, info)

	return &PipelineResult{GameID: gameID, ModID: resolution.modID, Status: StatusSuccess}, nil
}

// abort implements spec.md §4.5 step 15 / §5's cancellation contract:
// best-effort staging cleanup, a single finishInstall call, and a
// user-facing notification unless the error kind is silent.
func (p *Pipeline) abort(ictx *Context, modID, gameID string, ierr *Error) (*PipelineResult, error) {
	if modID != "" {
		tempPath := filepath.Join(p.InstallDir, modID) + ".installing"
		if err := os.RemoveAll(tempPath); err != nil {
			p.Consumer.Warnf("could not remove staging directory %s, remove it manually: %s", tempPath, err.Error())
		}
	}

	status := StatusFailed
	if ierr.Kind == KindUserCanceled || ierr.Kind == KindProcessCanceled {
		status = StatusCanceled
	}
	ictx.FinishInstall(status, nil, nil)
	ictx.StopIndicator(modID)

	if ierr.Kind != KindUserCanceled {
		ictx.ReportError(friendlyTitle(ierr.Kind), ierr.Message, ierr.Reportable(), nil)
	}

	return &PipelineResult{GameID: gameID, ModID: modID, Status: status, Error: ierr}, ierr
}

func friendlyTitle(kind Kind) string {
	switch kind {
	case KindArchiveBroken:
		return "Archive damaged"
	case KindSetupError:
		return "Installer unavailable"
	case KindDataInvalid:
		return "Installer produced invalid data"
	case KindNotFound:
		return "Dependency not found"
	case KindProcessCanceled:
		return "Installation canceled"
	default:
		return "Installation failed"
	}
}

// listInstaller is the built-in strategy spec.md §4.5 step 10 calls for
// when the caller supplies an explicit fileList: every non-directory
// entry is copied to the same relative destination it already has.
type listInstaller struct {
	files []FileEntry
}

func newListInstaller(files []FileEntry) Installer {
	return &listInstaller{files: files}
}

func (l *listInstaller) Name() string { return "list-installer" }

func (l *listInstaller) TestSupported(files []FileEntry, gameID string) (TestSupportedResult, error) {
	return TestSupportedResult{Supported: true}, nil
}

func (l *listInstaller) Install(files []FileEntry, tempDir, gameID string, progress ProgressFunc, choices map[string]interface{}, unattended bool) ([]Instruction, error) {
	var instructions []Instruction
	for _, f := range l.files {
		if f.IsDir {
			continue
		}
		instructions = append(instructions, Instruction{Type: InstructionCopy, Source: f.Path, Destination: f.Path})
	}
	return instructions, nil
}
