package uidgid

import (
	"context"

	"go.uber.org/zap"

	"github.com/jshihstsci/uidgid/internal/backup"
)

// backupTables emits both tables as compressed blobs on the log channel
// and keeps timestamped file copies. Backups are best effort: failures
// are logged and never surfaced to the request that triggered them.
func (s *Service) backupTables() {
	for _, path := range []string{s.users.Table().Path(), s.groups.Table().Path()} {
		blob, err := backup.EncodeFromFile(path)
		if err != nil {
			s.log.Warn("table blob backup failed", zap.String("file", path), zap.Error(err))
		} else {
			s.log.Info("table backup", zap.String("file", path), zap.String("blob", blob))
		}
		copyPath, err := backup.BackupFile(path, s.cfg.BackupDir, s.cfg.MaxBackups)
		if err != nil {
			s.log.Warn("table file backup failed", zap.String("file", path), zap.Error(err))
		} else {
			s.log.Info("table copied", zap.String("file", path), zap.String("copy", copyPath))
		}
	}
}

// RestoreFromEvent rewrites both tables from the blobs of a previously
// logged backup event, under the process lock.
func (s *Service) RestoreFromEvent(ctx context.Context, usersBlob, groupsBlob string) error {
	if err := s.acquireLock(ctx); err != nil {
		return err
	}
	defer s.releaseLock()

	usersRaw, err := backup.Decode(usersBlob)
	if err != nil {
		return err
	}
	groupsRaw, err := backup.Decode(groupsBlob)
	if err != nil {
		return err
	}
	if err := s.users.Table().Restore(usersRaw); err != nil {
		return err
	}
	if err := s.groups.Table().Restore(groupsRaw); err != nil {
		return err
	}
	s.log.Info("tables restored from backup event")
	return nil
}
