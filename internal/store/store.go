// Package store keeps a best-effort record of users and download attempts.
package store

import (
	"context"

	"github.com/yokitheyo/gamdlbot/internal/model"
)

type Recorder interface {
	RecordUser(ctx context.Context, u model.UserRecord) error
	RecordDownload(ctx context.Context, d model.DownloadRecord) error
}

// Nop is used when no database is configured.
type Nop struct{}

func (Nop) RecordUser(context.Context, model.UserRecord) error         { return nil }
func (Nop) RecordDownload(context.Context, model.DownloadRecord) error { return nil }
