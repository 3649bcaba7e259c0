package models

import "testing"

func TestStatus(t *testing.T) {
	t.Run("round trips persisted keys", func(t *testing.T) {
		for s := range statusKeys {
			parsed, err := ParseStatus(s.String())
			if err != nil {
				t.Fatalf("ParseStatus(%q) error = %v", s.String(), err)
			}
			if parsed != s {
				t.Errorf("ParseStatus(%q) = %v, want %v", s.String(), parsed, s)
			}
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		if _, err := ParseStatus("lost"); err == nil {
			t.Error("expected error for unknown status")
		}
	})

	t.Run("labels are separate from keys", func(t *testing.T) {
		if StatusDownloadFailed.String() != "download_failed" {
			t.Errorf("unexpected key %q", StatusDownloadFailed.String())
		}
		if StatusDownloadFailed.Label() != "Download Failed" {
			t.Errorf("unexpected label %q", StatusDownloadFailed.Label())
		}
		if Status(99).Label() != "Unknown" {
			t.Errorf("expected Unknown label for out of range status")
		}
	})

	t.Run("only not_downloaded is eligible", func(t *testing.T) {
		for s := range statusKeys {
			if s.IsEligible() != (s == StatusNotDownloaded) {
				t.Errorf("%s.IsEligible() = %v", s, s.IsEligible())
			}
		}
	})
}

func TestCanTransition(t *testing.T) {
	tt := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusNotDownloaded, StatusDownloading, true},
		{StatusDownloading, StatusDownloaded, true},
		{StatusDownloading, StatusDownloadFailed, true},
		{StatusDownloaded, StatusDownloadFailed, true},
		{StatusDownloadFailed, StatusDownloading, true},
		{StatusDownloadFailed, StatusNotDownloaded, true},
		{StatusDownloaded, StatusNotDownloaded, true},
		{StatusDownloading, StatusNotDownloaded, true},
		{StatusNotDownloaded, StatusDownloaded, false},
		{StatusNotDownloaded, StatusDownloadFailed, false},
		{StatusDownloaded, StatusDownloading, false},
		{StatusDownloadFailed, StatusDownloaded, false},
		{StatusDownloading, StatusDownloading, false},
	}

	for _, tc := range tt {
		t.Run(tc.from.String()+"->"+tc.to.String(), func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}
