// Package downloadmgr defines the download manager capability the
// dependency resolver reaches for (spec.md §1, §4.8, §6). The download
// manager itself — transport, resume, disk layout — is an external
// collaborator; this module only calls through the interface.
package downloadmgr

import "context"

// FileState is the subset of a download's lifecycle the resolver needs
// to decide whether to reuse, resume, or start fresh (spec.md §4.8 step
// 1).
type FileState struct {
	ID     string
	Paused bool
	// Path is the local archive path once the download has completed;
	// empty while still in flight.
	Path string
}

// Manager exposes exactly the three operations spec.md §6 lists:
// start-download, start-download-update, resume-download.
type Manager interface {
	// StartDownload begins a download from one of urls, tagged with meta,
	// and returns its id.
	StartDownload(ctx context.Context, urls []string, meta map[string]interface{}) (string, error)

	// StartDownloadUpdate begins a download for a specific (domain, modID,
	// fileID) pinned to pattern, used when the reference's version match
	// is fuzzy (spec.md §4.8 step 1). Returns one or more candidate
	// download ids.
	StartDownloadUpdate(ctx context.Context, source, domain, modID, fileID, pattern string) ([]string, error)

	// ResumeDownload resumes a paused download.
	ResumeDownload(ctx context.Context, downloadID string) error

	// GetFileState returns the current state of a download, or
	// (nil, nil) if downloadID is unknown.
	GetFileState(ctx context.Context, downloadID string) (*FileState, error)
}
