package install

import (
	"context"
	"fmt"

	"github.com/peterkwkwan/modinstall/install/dialog"
)

// attributesStrippedOnReplace lists the reserved keys spec.md §4.7 says
// a name-collision Replace must not carry forward, since they describe
// the *old* file, not the one being installed now.
var attributesStrippedOnReplace = []string{"version", "fileName", "fileVersion"}

// NameCollisionDecision is the resolved outcome of the name-collision
// dialog (spec.md §4.5 step 5, §4.7).
type NameCollisionDecision struct {
	Canceled    bool
	FinalModID  string
	Attributes  *ModInfo
	Enable      bool
	RemovePrior bool
}

// ResolveNameCollision implements spec.md §4.7's first row. candidateID
// is the id that collided; existing is the mod currently occupying it.
func ResolveNameCollision(ctx context.Context, dlg dialog.Dialog, gameID, candidateID string, existing *Mod) (NameCollisionDecision, error) {
	resp, err := dlg.ResolveNameCollision(ctx, dialog.NameCollisionRequest{
		GameID:      gameID,
		ExistingID:  existing.ID,
		CandidateID: candidateID,
	})
	if err != nil {
		return NameCollisionDecision{}, err
	}

	switch resp.Outcome {
	case dialog.NameCollisionCancel:
		return NameCollisionDecision{Canceled: true}, nil

	case dialog.NameCollisionAddVariant:
		variant := resp.Variant
		if variant == "" {
			variant = "1"
		}
		return NameCollisionDecision{
			FinalModID: fmt.Sprintf("%s+%s", candidateID, variant),
			Attributes: NewModInfo(),
			Enable:     false,
		}, nil

	case dialog.NameCollisionReplace:
		attrs := NewModInfo()
		if existing.Attributes != nil {
			attrs = existing.Attributes.Clone(attributesStrippedOnReplace...)
		}
		return NameCollisionDecision{
			FinalModID:  candidateID,
			Attributes:  attrs,
			Enable:      existing.Enabled,
			RemovePrior: true,
		}, nil
	}

	return NameCollisionDecision{Canceled: true}, nil
}

// VersionChoiceDecision is the resolved outcome of the version-choice
// dialog (spec.md §4.5 step 6, §4.7).
type VersionChoiceDecision struct {
	Canceled         bool
	ReuseID          bool
	EnableNew        bool
	InheritRules     []ModRule
	InheritOverrides []string
	RemovePrior      bool
}

// ResolveVersionChoice implements spec.md §4.7's second row: prior is the
// previously-installed mod sharing the same underlying file id.
func ResolveVersionChoice(ctx context.Context, dlg dialog.Dialog, gameID string, prior *Mod) (VersionChoiceDecision, error) {
	resp, err := dlg.ResolveVersionChoice(ctx, dialog.VersionChoiceRequest{
		GameID:        gameID,
		PreviousModID: prior.ID,
	})
	if err != nil {
		return VersionChoiceDecision{}, err
	}

	switch resp.Outcome {
	case dialog.VersionChoiceCancel:
		return VersionChoiceDecision{Canceled: true}, nil

	case dialog.VersionChoiceReplace:
		return VersionChoiceDecision{
			ReuseID:          true,
			EnableNew:        prior.Enabled,
			InheritRules:     prior.Rules,
			InheritOverrides: prior.FileOverrides,
			RemovePrior:      true,
		}, nil

	case dialog.VersionChoiceInstall:
		return VersionChoiceDecision{
			ReuseID:   false,
			EnableNew: prior.Enabled,
		}, nil
	}

	return VersionChoiceDecision{Canceled: true}, nil
}

// IsPriorVersionOfSameFile implements the version-choice trigger of
// spec.md §4.5 step 6: a prior mod qualifies when its newest known file
// id equals both its currently-installed file id and the file id of the
// archive about to be installed.
func IsPriorVersionOfSameFile(prior *Mod, incomingFileID int64) bool {
	return prior != nil && prior.NewestFileID == prior.FileID && prior.FileID == incomingFileID
}
