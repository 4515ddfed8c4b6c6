package install

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterkwkwan/modinstall/install/dialog"
)

type fakeDialog struct {
	nameCollision  dialog.NameCollisionResponse
	versionChoice  dialog.VersionChoiceResponse
	notArchive     dialog.NotArchiveResponse
	continueErrors dialog.ContinueOnExtractErrorsResponse
	password       string
	depBatch       dialog.DependencyBatchResponse
	gameChoice     dialog.GameChoiceResponse
	notifications  []string
}

func (f *fakeDialog) Notify(ctx context.Context, title, body string, reportable bool) {
	f.notifications = append(f.notifications, title)
}
func (f *fakeDialog) ChooseGame(ctx context.Context, req dialog.GameChoiceRequest) (dialog.GameChoiceResponse, error) {
	return f.gameChoice, nil
}
func (f *fakeDialog) ResolveNameCollision(ctx context.Context, req dialog.NameCollisionRequest) (dialog.NameCollisionResponse, error) {
	return f.nameCollision, nil
}
func (f *fakeDialog) ResolveVersionChoice(ctx context.Context, req dialog.VersionChoiceRequest) (dialog.VersionChoiceResponse, error) {
	return f.versionChoice, nil
}
func (f *fakeDialog) ConfirmNotArchive(ctx context.Context, req dialog.NotArchiveRequest) (dialog.NotArchiveResponse, error) {
	return f.notArchive, nil
}
func (f *fakeDialog) ConfirmContinueOnExtractErrors(ctx context.Context, req dialog.ContinueOnExtractErrorsRequest) (dialog.ContinueOnExtractErrorsResponse, error) {
	return f.continueErrors, nil
}
func (f *fakeDialog) PromptPassword(ctx context.Context) (string, error) {
	return f.password, nil
}
func (f *fakeDialog) ConfirmDependencyBatch(ctx context.Context, req dialog.DependencyBatchRequest) (dialog.DependencyBatchResponse, error) {
	return f.depBatch, nil
}

var _ dialog.Dialog = (*fakeDialog)(nil)

func TestResolveNameCollisionAddVariant(t *testing.T) {
	dlg := &fakeDialog{nameCollision: dialog.NameCollisionResponse{Outcome: dialog.NameCollisionAddVariant, Variant: "2"}}
	existing := &Mod{ID: "Foo-1.0", Enabled: true}

	decision, err := ResolveNameCollision(context.Background(), dlg, "game", "Foo-1.0", existing)
	require.NoError(t, err)
	assert.False(t, decision.Canceled)
	assert.Equal(t, "Foo-1.0+2", decision.FinalModID)
	assert.False(t, decision.Enable)
	assert.False(t, decision.RemovePrior)
}

func TestResolveNameCollisionReplace(t *testing.T) {
	dlg := &fakeDialog{nameCollision: dialog.NameCollisionResponse{Outcome: dialog.NameCollisionReplace}}
	attrs := NewModInfo()
	attrs.Set("version", "1.0")
	attrs.Set("keep", "yes")
	existing := &Mod{ID: "Foo-1.0", Enabled: true, Attributes: attrs}

	decision, err := ResolveNameCollision(context.Background(), dlg, "game", "Foo-1.0", existing)
	require.NoError(t, err)
	assert.Equal(t, "Foo-1.0", decision.FinalModID)
	assert.True(t, decision.Enable)
	assert.True(t, decision.RemovePrior)
	_, hasVersion := decision.Attributes.Get("version")
	assert.False(t, hasVersion)
	v, _ := decision.Attributes.Get("keep")
	assert.Equal(t, "yes", v)
}

func TestResolveNameCollisionCancel(t *testing.T) {
	dlg := &fakeDialog{nameCollision: dialog.NameCollisionResponse{Outcome: dialog.NameCollisionCancel}}
	decision, err := ResolveNameCollision(context.Background(), dlg, "game", "Foo-1.0", &Mod{ID: "Foo-1.0"})
	require.NoError(t, err)
	assert.True(t, decision.Canceled)
}

func TestIsPriorVersionOfSameFile(t *testing.T) {
	prior := &Mod{NewestFileID: 42, FileID: 10}
	assert.False(t, IsPriorVersionOfSameFile(prior, 42))

	prior2 := &Mod{NewestFileID: 42, FileID: 42}
	assert.True(t, IsPriorVersionOfSameFile(prior2, 42))
	assert.False(t, IsPriorVersionOfSameFile(prior2, 99))

	assert.False(t, IsPriorVersionOfSameFile(nil, 42))
}

func TestResolveVersionChoiceReplace(t *testing.T) {
	dlg := &fakeDialog{versionChoice: dialog.VersionChoiceResponse{Outcome: dialog.VersionChoiceReplace}}
	prior := &Mod{
		ID:            "m1",
		Enabled:       true,
		Rules:         []ModRule{{Type: RuleRequires, Reference: Reference{ID: "r1"}}},
		FileOverrides: []string{"data/a.dat"},
	}

	decision, err := ResolveVersionChoice(context.Background(), dlg, "game", prior)
	require.NoError(t, err)
	assert.True(t, decision.ReuseID)
	assert.True(t, decision.EnableNew)
	assert.True(t, decision.RemovePrior)
	assert.Equal(t, prior.Rules, decision.InheritRules)
	assert.Equal(t, prior.FileOverrides, decision.InheritOverrides)
}
