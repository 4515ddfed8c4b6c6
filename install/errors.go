package install

import (
	"fmt"
	"strings"
)

// Kind is the closed error taxonomy from spec.md §7.
type Kind string

const (
	KindUserCanceled    Kind = "UserCanceled"
	KindProcessCanceled Kind = "ProcessCanceled"
	KindTemporaryError  Kind = "TemporaryError"
	KindArchiveBroken   Kind = "ArchiveBroken"
	KindSetupError      Kind = "SetupError"
	KindDataInvalid     Kind = "DataInvalid"
	KindNotFound        Kind = "NotFound"
	KindUnknown         Kind = "Unknown"
)

// reportable mirrors the "Reportable" column of spec.md §7: only Unknown
// errors are offered a one-click report action, and only when they
// haven't already been marked outdated/ignored by the caller.
var reportable = map[Kind]bool{
	KindUserCanceled:    false,
	KindProcessCanceled: false,
	KindTemporaryError:  false,
	KindArchiveBroken:   false,
	KindSetupError:      false,
	KindDataInvalid:     false,
	KindNotFound:        false,
	KindUnknown:         true,
}

// Error is the pipeline's own error type, analogous to the teacher's
// butlerd.Code / butlerd.RpcError split (butlerd/codes.go,
// butlerd/errors.go) but collapsed into a single concrete type since this
// module isn't fronting a JSON-RPC transport.
type Error struct {
	Kind    Kind
	Message string
	// Ignored marks an Unknown error the user has previously dismissed
	// permanently; spec.md §7 "unless outdated or previously ignored".
	Ignored bool
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Reportable implements the §7 "Reportable" column.
func (e *Error) Reportable() bool {
	return reportable[e.Kind] && !e.Ignored
}

// NewError builds a tagged Error with no underlying cause.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError tags an underlying error with a Kind.
func WrapError(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// AsInstallError unwraps err looking for an *Error, the way the teacher's
// butlerd.AsButlerdError walks the causer chain (butlerd/errors.go).
func AsInstallError(err error) (*Error, bool) {
	for err != nil {
		if ie, ok := err.(*Error); ok {
			return ie, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// ClassifyExtractionError maps extractor error messages to KindArchiveBroken
// per spec.md §4.3: any message containing one of these substrings is a
// critical, unrecoverable archive error.
func ClassifyExtractionError(messages []string) (*Error, bool) {
	for _, msg := range messages {
		for _, needle := range criticalArchiveSubstrings {
			if strings.Contains(strings.ToLower(msg), needle) {
				return NewError(KindArchiveBroken, msg), true
			}
		}
	}
	return nil, false
}

var criticalArchiveSubstrings = []string{
	"unexpected end of archive",
	"data error",
	"cannot open as archive",
}
