package model

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyRunning  = errors.New("session already running")
	ErrUnknownPreset   = errors.New("unknown preset")
	ErrArchiveTooLarge = errors.New("archive exceeds size ceiling")
	ErrResourceBusy    = errors.New("resource busy")
)

// DownloadFailedError is a non-zero downloader exit.
type DownloadFailedError struct {
	ExitCode int
	Tail     string
	Err      error
}

func (e *DownloadFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download failed (exit %d): %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("download failed (exit %d)", e.ExitCode)
}

func (e *DownloadFailedError) Unwrap() error {
	return e.Err
}

// DeliveryError is a failed transfer of a single file or batch.
type DeliveryError struct {
	Name string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s: %v", e.Name, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
