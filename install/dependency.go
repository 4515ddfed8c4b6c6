package install

import (
	"context"
	"regexp"
	"sync"

	"github.com/itchio/wharf/state"
	"golang.org/x/sync/errgroup"

	"github.com/peterkwkwan/modinstall/install/dialog"
	"github.com/peterkwkwan/modinstall/install/downloadmgr"
)

// dependencyParallelism is the hard cap spec.md §4.8/§5 places on
// concurrent installModAsync executions inside doInstallDependencies.
const dependencyParallelism = 4

// InstallFunc re-enters the install queue for a dependency's archive,
// the way spec.md §4.8 step 2's installModAsync does. A host wires this
// to Queue.Enqueue plus Pipeline.Run.
type InstallFunc func(ctx context.Context, req InstallRequest) (*PipelineResult, error)

// Resolver implements the Dependency Resolver of spec.md §4.8.
type Resolver struct {
	Consumer *state.Consumer
	Dialog   dialog.Dialog
	Store    Store
	Events   Events
	Gatherer Gatherer
	Download downloadmgr.Manager
	Install  InstallFunc
}

// InstallDependencies implements spec.md §4.8's first entry point, for a
// mod's `requires` rules.
func (r *Resolver) InstallDependencies(ctx context.Context, gameID, profileID, modID string, silent bool) error {
	return r.run(ctx, gameID, profileID, modID, false, silent)
}

// InstallRecommendations implements spec.md §4.8's second entry point,
// for a mod's `recommends` rules.
func (r *Resolver) InstallRecommendations(ctx context.Context, gameID, profileID, modID string) error {
	return r.run(ctx, gameID, profileID, modID, true, false)
}

func (r *Resolver) run(ctx context.Context, gameID, profileID, modID string, recommended, silent bool) error {
	mod, err := r.Store.GetMod(gameID, modID)
	if err != nil {
		return WrapError(KindUnknown, err, "loading mod for dependency resolution")
	}
	if mod == nil {
		return NewError(KindNotFound, "mod not found")
	}

	ruleType := RuleRequires
	if recommended {
		ruleType = RuleRecommends
	}
	rules := r.repairRules(gameID, filterRules(mod.Rules, ruleType))

	outcomes, err := r.Gatherer.Gather(ctx, rules, recommended)
	if err != nil {
		return WrapError(KindUnknown, err, "gathering dependencies")
	}

	success, existing, gatherErrors := splitOutcomes(outcomes)

	r.Events.WillInstallDependencies(profileID, modID, recommended)
	defer r.Events.DidInstallDependencies(profileID, modID, recommended)

	selected, ierr := r.confirm(ctx, modID, recommended, silent, success, gatherErrors)
	if ierr != nil {
		return ierr
	}
	if len(selected) == 0 {
		return nil
	}

	installed, ierr := r.doInstallDependencies(ctx, gameID, profileID, selected)
	if ierr != nil {
		return ierr
	}

	// Dependencies already satisfied by an enabled mod never went through
	// doInstallDependencies, but their rule still needs pinning the same
	// way a freshly-installed one does.
	for _, dep := range existing {
		installed = append(installed, installedDependency{reference: dep.Reference, modID: dep.Mod.ID})
	}

	r.updateRules(gameID, modID, ruleType, installed)
	return nil
}

// confirm implements spec.md §4.8's UI phase.
func (r *Resolver) confirm(ctx context.Context, modID string, recommended, silent bool, success []*Dependency, gatherErrors []*DependencyError) ([]*Dependency, *Error) {
	if silent && !recommended && len(gatherErrors) == 0 {
		return success, nil
	}

	var errMessages []string
	for _, e := range gatherErrors {
		errMessages = append(errMessages, e.Message)
	}

	if recommended {
		if len(success) == 0 {
			return nil, nil
		}
		checkable := make([]string, len(success))
		for i, d := range success {
			checkable[i] = d.Reference.LogicalFileName
		}
		resp, err := r.Dialog.ConfirmDependencyBatch(ctx, dialog.DependencyBatchRequest{
			Recommended: true,
			ModName:     modID,
			InstCount:   len(success),
			Checkable:   checkable,
			Errors:      errMessages,
		})
		if err != nil {
			return nil, WrapError(KindUnknown, err, "confirming recommendations")
		}
		if resp.Canceled {
			return nil, nil
		}
		var chosen []*Dependency
		for _, idx := range resp.Selected {
			if idx >= 0 && idx < len(success) {
				chosen = append(chosen, success[idx])
			}
		}
		return chosen, nil
	}

	dlCount := 0
	for _, d := range success {
		if d.Download == nil {
			dlCount++
		}
	}
	resp, err := r.Dialog.ConfirmDependencyBatch(ctx, dialog.DependencyBatchRequest{
		ModName:   modID,
		InstCount: len(success),
		DlCount:   dlCount,
		Errors:    errMessages,
	})
	if err != nil {
		return nil, WrapError(KindUnknown, err, "confirming dependencies")
	}
	if resp.Canceled {
		return nil, NewError(KindUserCanceled, "user canceled dependency install")
	}
	return success, nil
}

// installedDependency is produced per successfully-installed dependency,
// feeding updateRules.
type installedDependency struct {
	reference Reference
	modID     string
}

// doInstallDependencies implements spec.md §4.8's execution phase, with
// parallelism capped at dependencyParallelism via errgroup.Group.SetLimit
// (grounded on the teacher's golang.org/x/sync dependency, used there for
// singleflight and here for bounded, cancel-on-first-fatal-error
// concurrency — butlerd/router.go). Only KindUserCanceled is returned as a
// group error, since that's the only outcome spec.md §4.8 says should
// abort the whole batch; every other per-dependency failure is reported
// inline and swallowed so its siblings keep running.
func (r *Resolver) doInstallDependencies(ctx context.Context, gameID, profileID string, deps []*Dependency) ([]installedDependency, *Error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dependencyParallelism)

	var (
		mu        sync.Mutex
		installed []installedDependency
	)

	for _, dep := range deps {
		dep := dep
		g.Go(func() error {
			modID, ierr := r.installOne(gctx, gameID, profileID, dep)
			if ierr != nil {
				switch ierr.Kind {
				case KindProcessCanceled, KindNotFound:
					r.Dialog.Notify(gctx, "Dependency skipped", ierr.Message, false)
					return nil
				case KindUserCanceled:
					return ierr
				default:
					r.Dialog.Notify(gctx, "Dependency install failed", ierr.Message, false)
					return nil
				}
			}

			mu.Lock()
			installed = append(installed, installedDependency{reference: dep.Reference, modID: modID})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ierr, ok := AsInstallError(err); ok {
			return installed, ierr
		}
		return installed, WrapError(KindUnknown, err, "installing dependencies")
	}
	return installed, nil
}

// installOne implements spec.md §4.8's per-dependency steps 1-3.
func (r *Resolver) installOne(ctx context.Context, gameID, profileID string, dep *Dependency) (string, *Error) {
	if dep.Mod != nil {
		if err := r.Store.SetEnabled(gameID, profileID, []string{dep.Mod.ID}, true); err != nil {
			return "", WrapError(KindUnknown, err, "enabling already-installed dependency")
		}
		r.applyExtras(gameID, dep)
		return dep.Mod.ID, nil
	}

	downloadID, ierr := r.acquireDownload(ctx, dep)
	if ierr != nil {
		return "", ierr
	}

	fileState, err := r.Download.GetFileState(ctx, downloadID)
	if err != nil {
		return "", WrapError(KindUnknown, err, "reading download state")
	}
	if fileState == nil || fileState.Path == "" {
		return "", NewError(KindNotFound, "download has no local file yet")
	}

	result, err := r.Install(ctx, InstallRequest{
		Archive:             Archive{Path: fileState.Path, ArchiveID: downloadID},
		Choices:             dep.InstallerChoices,
		FileList:            dep.FileList,
		Unattended:          true,
		ProcessDependencies: false,
		ForceGameID:         gameID,
	})
	if err != nil {
		if ie, ok := AsInstallError(err); ok {
			return "", ie
		}
		return "", WrapError(KindUnknown, err, "installing dependency")
	}

	if err := r.Store.SetEnabled(gameID, profileID, []string{result.ModID}, true); err != nil {
		r.Consumer.Warnf("could not enable dependency %s: %s", result.ModID, err.Error())
	}
	dep.Mod = &Mod{ID: result.ModID}
	r.applyExtras(gameID, dep)

	return result.ModID, nil
}

func (r *Resolver) applyExtras(gameID string, dep *Dependency) {
	if dep.ExtraType == "" && dep.ExtraName == "" {
		return
	}
	mod, err := r.Store.GetMod(gameID, dep.Mod.ID)
	if err != nil || mod == nil {
		return
	}
	if dep.ExtraType != "" {
		mod.ModType = dep.ExtraType
	}
	if dep.ExtraName != "" {
		mod.CustomVariant = dep.ExtraName
	}
	if err := r.Store.PutMod(gameID, mod); err != nil {
		r.Consumer.Warnf("could not apply extras to %s: %s", mod.ID, err.Error())
	}
}

// acquireDownload implements spec.md §4.8 step 1.
func (r *Resolver) acquireDownload(ctx context.Context, dep *Dependency) (string, *Error) {
	if dep.Download != nil {
		if !dep.Download.Paused {
			return dep.Download.ID, nil
		}
		if err := r.Download.ResumeDownload(ctx, dep.Download.ID); err != nil {
			return "", WrapError(KindUnknown, err, "resuming download")
		}
		return dep.Download.ID, nil
	}
	return r.downloadModAsync(ctx, dep)
}

func (r *Resolver) downloadModAsync(ctx context.Context, dep *Dependency) (string, *Error) {
	if len(dep.LookupResults) == 0 {
		return "", NewError(KindNotFound, "no lookup result to download from")
	}
	first := dep.LookupResults[0]

	if isFuzzyVersionMatch(dep.Reference.VersionMatch) && first.ModID != "" && first.FileID != "" {
		ids, err := r.Download.StartDownloadUpdate(ctx, first.SourceURI, first.Domain, first.ModID, first.FileID, dep.Reference.VersionMatch)
		if err != nil {
			return "", WrapError(KindUnknown, err, "starting pinned download")
		}
		if len(ids) == 0 {
			return "", NewError(KindNotFound, "no candidate download for pinned update")
		}
		return ids[0], nil
	}

	if first.SourceURI == "" {
		return "", NewError(KindNotFound, "no download source available")
	}
	id, err := r.Download.StartDownload(ctx, []string{first.SourceURI}, map[string]interface{}{
		"logicalFileName": dep.Reference.LogicalFileName,
	})
	if err != nil {
		return "", WrapError(KindUnknown, err, "starting download")
	}
	return id, nil
}

var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]+$`)
var rangePattern = regexp.MustCompile(`^\d+(\.\d+)*-\d+(\.\d+)*$`)

// isFuzzyVersionMatch implements spec.md §4.8 step 1's "non-hex and not
// a valid exact range" test.
func isFuzzyVersionMatch(versionMatch string) bool {
	if versionMatch == "" {
		return false
	}
	if hexPattern.MatchString(versionMatch) {
		return false
	}
	if rangePattern.MatchString(versionMatch) {
		return false
	}
	return true
}

// repairRules implements spec.md §4.8's pre-flight: a fuzzy rule whose
// id no longer resolves to an existing mod gets its id cleared so the
// gatherer re-matches it.
func (r *Resolver) repairRules(gameID string, rules []ModRule) []ModRule {
	out := make([]ModRule, len(rules))
	for i, rule := range rules {
		out[i] = rule
		if rule.Reference.ID == "" || !rule.Reference.IsFuzzy() {
			continue
		}
		mod, err := r.Store.GetMod(gameID, rule.Reference.ID)
		if err != nil || mod == nil {
			out[i].Reference.ID = ""
		}
	}
	return out
}

// updateRules implements spec.md §4.8's post-batch step: pin
// reference.id to the installed mod, and strip fileMD5 when a fuzzy
// version match is combined with a logical/expression match (it would
// over-constrain future updates).
func (r *Resolver) updateRules(gameID, modID string, ruleType RuleType, installed []installedDependency) {
	if len(installed) == 0 {
		return
	}
	mod, err := r.Store.GetMod(gameID, modID)
	if err != nil || mod == nil {
		return
	}

	byKey := map[string]string{}
	for _, d := range installed {
		byKey[referenceKey(d.reference)] = d.modID
	}

	changed := false
	for i, rule := range mod.Rules {
		if rule.Type != ruleType {
			continue
		}
		newID, ok := byKey[referenceKey(rule.Reference)]
		if !ok {
			continue
		}
		mod.Rules[i].Reference.ID = newID
		if isFuzzyVersionMatch(rule.Reference.VersionMatch) && (rule.Reference.LogicalFileName != "" || rule.Reference.FileExpression != "") {
			mod.Rules[i].Reference.FileMD5 = ""
		}
		changed = true
	}

	if changed {
		if err := r.Store.PutMod(gameID, mod); err != nil {
			r.Consumer.Warnf("could not persist updated rules for %s: %s", modID, err.Error())
		}
	}
}

func referenceKey(ref Reference) string {
	if ref.ID != "" {
		return "id:" + ref.ID
	}
	if ref.FileMD5 != "" {
		return "md5:" + ref.FileMD5
	}
	if ref.LogicalFileName != "" {
		return "name:" + ref.LogicalFileName
	}
	return "expr:" + ref.FileExpression
}

func filterRules(rules []ModRule, t RuleType) []ModRule {
	var out []ModRule
	for _, r := range rules {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

func splitOutcomes(outcomes []GatherOutcome) (success []*Dependency, existing []*Dependency, errs []*DependencyError) {
	for _, o := range outcomes {
		if o.Error != nil {
			errs = append(errs, o.Error)
			continue
		}
		if o.Dependency == nil {
			continue
		}
		if o.Dependency.Mod != nil && o.Dependency.Mod.Enabled {
			existing = append(existing, o.Dependency)
			continue
		}
		success = append(success, o.Dependency)
	}
	return
}
