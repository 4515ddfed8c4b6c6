package install

import (
	"runtime"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Reserved ModInfo keys, spec.md §3.
const (
	KeyDownloadFileMD5 = "download.fileMD5"
	KeyDownloadSize    = "download.size"
	KeyDownloadGame    = "download.game"
	KeyMeta            = "meta"
	KeyChoices         = "choices"
	KeyPrevious        = "previous"
	KeyCustomVariant   = "custom.variant"
)

// ModInfo is the per-mod, arbitrary key/value bag spec.md §3 and §9
// describe as a "dynamic config bag": a handful of recognised keys plus
// an open extras map. Persisted verbatim with the mod.
type ModInfo struct {
	Extras map[string]interface{}
}

// NewModInfo returns an empty bag.
func NewModInfo() *ModInfo {
	return &ModInfo{Extras: map[string]interface{}{}}
}

func (m *ModInfo) Set(key string, value interface{}) {
	if m.Extras == nil {
		m.Extras = map[string]interface{}{}
	}
	m.Extras[key] = value
}

func (m *ModInfo) Get(key string) (interface{}, bool) {
	if m.Extras == nil {
		return nil, false
	}
	v, ok := m.Extras[key]
	return v, ok
}

// Decode unmarshals the recognised keys of the bag into a typed struct
// using field tags, the same way the teacher's OperationContext.Load
// decodes a subcontext out of its generic JSON root
// (cmd/operate/context.go).
func (m *ModInfo) Decode(tag string, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: tag,
		Result:  out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(m.Extras)
}

// Clone returns a deep-enough copy suitable for the "Add Variant" path of
// spec.md §4.7, which starts a new mod with empty attributes: callers
// should prefer NewModInfo() there. Clone is for the "Replace" path,
// which copies attributes minus a few reserved keys.
func (m *ModInfo) Clone(without ...string) *ModInfo {
	skip := map[string]bool{}
	for _, k := range without {
		skip[k] = true
	}
	out := NewModInfo()
	for k, v := range m.Extras {
		if skip[k] {
			continue
		}
		out.Extras[k] = v
	}
	return out
}

// FriendlyInstallError rewrites a generic install error message using the
// platform-specific heuristic of spec.md §6: on Windows, a message
// mentioning the "Roaming\Browser Assistant" path is a known-bogus
// antivirus interaction and gets a dedicated advisory instead of the raw
// message.
func FriendlyInstallError(message string) string {
	if runtime.GOOS != "windows" {
		return message
	}
	if strings.Contains(message, `Roaming\Browser Assistant`) {
		return "Installation failed because a third-party program (often antivirus software) " +
			"is interfering with file operations in your Roaming\\Browser Assistant folder. " +
			"Try disabling it temporarily and installing again."
	}
	return message
}
