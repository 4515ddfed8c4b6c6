// Package dialog defines the request-reply capability the pipeline uses
// for every user-interactive decision (spec.md §1 "the dialog/notification
// subsystem"). It is deliberately a closed set of typed request/response
// pairs, the way the teacher's butlerd/messages package exposes one typed
// Call per dialog rather than a single untyped "ask" method.
package dialog

import "context"

// GameChoice is the resolve-game dialog of spec.md §4.5 step 2.
type GameChoiceRequest struct {
	CandidateGameIDs []string
}
type GameChoiceResponse struct {
	Canceled bool
	GameID   string
}

// NameCollisionOutcome is the decision taken at spec.md §4.5 step 5 /
// §4.7.
type NameCollisionOutcome int

const (
	NameCollisionCancel NameCollisionOutcome = iota
	NameCollisionAddVariant
	NameCollisionReplace
)

type NameCollisionRequest struct {
	GameID      string
	ExistingID  string
	CandidateID string
}
type NameCollisionResponse struct {
	Outcome NameCollisionOutcome
	Variant string
}

// VersionChoiceOutcome is the decision taken at spec.md §4.5 step 6 /
// §4.7.
type VersionChoiceOutcome int

const (
	VersionChoiceCancel VersionChoiceOutcome = iota
	VersionChoiceReplace
	VersionChoiceInstall
)

type VersionChoiceRequest struct {
	GameID        string
	PreviousModID string
}
type VersionChoiceResponse struct {
	Outcome VersionChoiceOutcome
}

// NotArchiveResponse answers "this isn't a recognised archive, install it
// as a single file mod anyway?" (spec.md §4.5 step 8).
type NotArchiveRequest struct {
	FileName string
}
type NotArchiveResponse struct {
	CreateMod bool
}

// ContinueOnExtractErrorsRequest offers Continue/Cancel after a
// non-critical extraction error (spec.md §4.3). AllowContinue is false
// when a terminal error is present and the option must be withheld.
type ContinueOnExtractErrorsRequest struct {
	Errors        []string
	AllowContinue bool
}
type ContinueOnExtractErrorsResponse struct {
	Continue bool
}

// DependencyBatchRequest is the dialog shown before installing
// dependencies/recommendations (spec.md §4.8 UI phase).
type DependencyBatchRequest struct {
	Recommended bool
	ModName     string
	InstCount   int
	DlCount     int
	Errors      []string
	// Checkable lists one entry per would-be-installed dependency, for
	// the recommendations checkbox dialog.
	Checkable []string
}
type DependencyBatchResponse struct {
	// Canceled applies to the (non-recommended) dependency dialog's
	// Cancel/Enable choice.
	Canceled bool
	// Selected lists the indices (into Checkable) the user kept checked,
	// for the recommendations dialog. For plain dependencies every index
	// is implicitly selected when !Canceled.
	Selected []int
}

// Notifier is the fire-and-forget half of the subsystem: non-reportable
// notifications, reportable error toasts, and info messages with an
// optional one-click report action (spec.md §4.6 steps 3-4, §7).
type Notifier interface {
	Notify(ctx context.Context, title, body string, reportable bool)
}

// Dialog is the full request-reply capability the pipeline and resolver
// consume. A host implements this on top of its own UI toolkit; this
// module never renders anything itself.
type Dialog interface {
	Notifier

	ChooseGame(ctx context.Context, req GameChoiceRequest) (GameChoiceResponse, error)
	ResolveNameCollision(ctx context.Context, req NameCollisionRequest) (NameCollisionResponse, error)
	ResolveVersionChoice(ctx context.Context, req VersionChoiceRequest) (VersionChoiceResponse, error)
	ConfirmNotArchive(ctx context.Context, req NotArchiveRequest) (NotArchiveResponse, error)
	ConfirmContinueOnExtractErrors(ctx context.Context, req ContinueOnExtractErrorsRequest) (ContinueOnExtractErrorsResponse, error)
	PromptPassword(ctx context.Context) (string, error)
	ConfirmDependencyBatch(ctx context.Context, req DependencyBatchRequest) (DependencyBatchResponse, error)
}
