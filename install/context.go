package install

import (
	"strings"
	"sync"

	"github.com/itchio/wharf/state"
)

// Status is the lifecycle of one InstallContext. Spec.md §3.
type Status string

const (
	StatusStarted  Status = "started"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Context is the per-pipeline progress/indicator/error reporter bound to
// a game and mod id (spec.md §4.4). It wraps a *state.Consumer the same
// way the teacher's OperationContext wraps one in cmd/operate/context.go,
// but narrows the surface to exactly the operations spec.md names.
type Context struct {
	consumer *state.Consumer

	mu        sync.Mutex
	gameID    string
	modID     string
	archiveID string
	progress  float64
	status    Status
	finished  bool
}

// NewContext creates a context bound to a consumer supplied by the host.
func NewContext(consumer *state.Consumer) *Context {
	if consumer == nil {
		consumer = &state.Consumer{}
	}
	return &Context{consumer: consumer, status: StatusStarted}
}

func (c *Context) Consumer() *state.Consumer { return c.consumer }

func (c *Context) StartIndicator(name string) {
	c.consumer.ProgressLabel(name)
}

func (c *Context) StartInstall(modID, gameID, archiveID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modID = modID
	c.gameID = gameID
	c.archiveID = archiveID
	c.status = StatusStarted
	c.consumer.Infof("starting install of %s for game %s", modID, gameID)
}

func (c *Context) SetInstallPath(modID, dest string) {
	c.consumer.Infof("%s: install path is %s", modID, dest)
}

func (c *Context) SetProgress(percent *float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if percent == nil {
		return
	}
	c.progress = *percent
	c.consumer.Progress(*percent / 100.0)
}

func (c *Context) SetModType(modID, modType string) {
	c.consumer.Infof("%s: mod type set to %q", modID, modType)
}

func (c *Context) ReportError(title, body string, allowReport bool, replacements map[string]string) {
	msg := body
	for k, v := range replacements {
		msg = strings.ReplaceAll(msg, k, v)
	}
	c.consumer.Warnf("%s: %s", title, FriendlyInstallError(msg))
}

// FinishInstall must be called exactly once on every exit path (success,
// cancel, error) — spec.md §4.4.
func (c *Context) FinishInstall(status Status, modInfo *ModInfo, messageReplace map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		c.consumer.Warnf("FinishInstall called more than once for %s, ignoring", c.modID)
		return
	}
	c.finished = true
	c.status = status
	c.consumer.Infof("%s: install finished with status %s", c.modID, status)
}

func (c *Context) StopIndicator(mod string) {
	c.consumer.ProgressLabel("")
}

func (c *Context) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Context) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}
