package model

import (
	"errors"
	"strings"
	"testing"
)

func TestParseSendMode(t *testing.T) {
	cases := []struct {
		in   string
		want SendMode
		ok   bool
	}{
		{"files", ModeFiles, true},
		{"zip", ModeZip, true},
		{"", "", false},
		{"tar", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseSendMode(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseSendMode(%q) = %q,%v want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSessionClone_DoesNotShareState(t *testing.T) {
	s := &Session{
		Token:  "abc",
		URLs:   []string{"https://music.apple.com/us/album/x/1"},
		Meta:   &Metadata{ArtistName: "Artist"},
		Status: &MessageRef{ChatID: 1, MessageID: 2},
	}
	c := s.Clone()
	c.URLs[0] = "changed"
	c.Meta.ArtistName = "Other"
	c.Status.MessageID = 99

	if s.URLs[0] == "changed" {
		t.Fatalf("clone shares URL slice")
	}
	if s.Meta.ArtistName != "Artist" {
		t.Fatalf("clone shares metadata")
	}
	if s.Status.MessageID != 2 {
		t.Fatalf("clone shares status ref")
	}
}

func TestDownloadFailedError_Unwrap(t *testing.T) {
	inner := errors.New("exit status 1")
	err := error(&DownloadFailedError{ExitCode: 1, Tail: "boom", Err: inner})
	if !errors.Is(err, inner) {
		t.Fatalf("expected errors.Is to reach inner error")
	}
	var dfe *DownloadFailedError
	if !errors.As(err, &dfe) || dfe.Tail != "boom" {
		t.Fatalf("expected errors.As to recover tail, got %v", err)
	}
	if !strings.Contains(err.Error(), "exit 1") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
