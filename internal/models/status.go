package models

import "fmt"

// Status is the transfer state of an [Item].
type Status int

const (
	StatusNotDownloaded Status = iota
	StatusDownloading
	StatusDownloadFailed
	StatusDownloaded

	// Reserved for the upload side of the system; never written by the download engine.
	StatusUploading
	StatusUploadFailed
	StatusUploaded
)

var statusKeys = map[Status]string{
	StatusNotDownloaded:  "not_downloaded",
	StatusDownloading:    "downloading",
	StatusDownloadFailed: "download_failed",
	StatusDownloaded:     "downloaded",
	StatusUploading:      "uploading",
	StatusUploadFailed:   "upload_failed",
	StatusUploaded:       "uploaded",
}

var statusLabels = map[Status]string{
	StatusNotDownloaded:  "Not Downloaded",
	StatusDownloading:    "Downloading",
	StatusDownloadFailed: "Download Failed",
	StatusDownloaded:     "Downloaded",
	StatusUploading:      "Uploading",
	StatusUploadFailed:   "Upload Failed",
	StatusUploaded:       "Uploaded",
}

// DownloadStatuses lists the states managed by the download engine, in lifecycle order.
var DownloadStatuses = []Status{
	StatusNotDownloaded,
	StatusDownloading,
	StatusDownloadFailed,
	StatusDownloaded,
}

// String returns the persisted key of the status.
func (s Status) String() string {
	if key, ok := statusKeys[s]; ok {
		return key
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Label returns the human-readable display label of the status.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return "Unknown"
}

// ParseStatus converts a persisted key back into a [Status].
func ParseStatus(key string) (Status, error) {
	for s, k := range statusKeys {
		if k == key {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", key)
}

// IsEligible reports whether an item in this state may be claimed by the scheduler.
func (s Status) IsEligible() bool {
	return s == StatusNotDownloaded
}

// IsFailed reports whether the status is a failure state.
func (s Status) IsFailed() bool {
	return s == StatusDownloadFailed || s == StatusUploadFailed
}

// IsActive reports whether a transfer is (or was, before a crash) in flight.
func (s Status) IsActive() bool {
	return s == StatusDownloading || s == StatusUploading
}

// transitions maps a target state to the states it may be entered from.
// StatusNotDownloaded is absent: any state may be reset to it.
var transitions = map[Status][]Status{
	StatusDownloading:    {StatusNotDownloaded, StatusDownloadFailed},
	StatusDownloaded:     {StatusDownloading},
	StatusDownloadFailed: {StatusDownloading, StatusDownloaded},
}

// SourcesFor returns the states from which to may be entered.
// A nil result means every state is accepted.
func SourcesFor(to Status) []Status {
	return transitions[to]
}

// CanTransition reports whether the state machine allows moving from one state to another.
func CanTransition(from, to Status) bool {
	if to == StatusNotDownloaded {
		return true
	}
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}
