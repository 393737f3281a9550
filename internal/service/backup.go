package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"deepsafe/internal/pkg/db"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/repository"
)

// BackupVersion is the format version written to exports.
const BackupVersion = 1

// Backup is a full data export.
type Backup struct {
	Version    int                        `json:"version"`
	ExportedAt time.Time                  `json:"exported_at"`
	Data       map[string]json.RawMessage `json:"data"`
}

// ObjectStore uploads objects and returns their public URL.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.ReadSeeker, contentType string) (string, error)
}

// BackupService exports and restores the database.
type BackupService struct {
	conn       db.Beginner
	backupRepo *repository.BackupRepository
	now        func() time.Time
}

// NewBackupService creates a new BackupService instance.
func NewBackupService(conn db.Beginner, backupRepo *repository.BackupRepository) *BackupService {
	return &BackupService{conn: conn, backupRepo: backupRepo, now: time.Now}
}

// Export dumps every table.
func (s *BackupService) Export(ctx context.Context) (*Backup, error) {
	data, err := s.backupRepo.Export(ctx)
	if err != nil {
		return nil, err
	}
	return &Backup{Version: BackupVersion, ExportedAt: s.now().UTC(), Data: data}, nil
}

// Restore overwrites the tables present in data inside one transaction.
func (s *BackupService) Restore(ctx context.Context, adminID string, data map[string]json.RawMessage) error {
	if len(data) == 0 {
		return result.New(result.KindValidation, "backup has no data")
	}
	err := db.InTx(ctx, s.conn, func(tx pgx.Tx) error {
		return repository.NewBackupRepository(tx).Restore(ctx, data)
	})
	if err != nil {
		return err
	}

	tables := make([]string, 0, len(data))
	for t := range data {
		tables = append(tables, t)
	}
	log.Info().
		Str("admin_id", adminID).
		Str("operation", "restore").
		Strs("tables", tables).
		Msg("Admin operation executed")
	return nil
}

// ExportTo writes an export to object storage under prefix and returns the
// object key.
func (s *BackupService) ExportTo(ctx context.Context, store ObjectStore, prefix string) (string, error) {
	backup, err := s.Export(ctx)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(backup)
	if err != nil {
		return "", fmt.Errorf("failed to encode backup: %w", err)
	}

	key := path.Join(prefix, "deepsafe-"+backup.ExportedAt.Format("20060102-150405")+".json")
	if _, err := store.Upload(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
		return "", err
	}
	log.Info().Str("key", key).Int("bytes", len(body)).Msg("Backup uploaded")
	return key, nil
}
