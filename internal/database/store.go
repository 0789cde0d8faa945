package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/digkill/TGLookupBot/internal/models"
)

// Store keeps the whole bot state in one JSON file plus a rotating backup.
// A single gate serializes every load-modify-save cycle in the process.
type Store struct {
	path       string
	backupPath string
	defaults   Defaults
	log        *slog.Logger
	gate       chan struct{}
	now        func() time.Time
	writeFile  func(name string, data []byte, perm os.FileMode) error
}

func NewStore(path, backupPath string, defaults Defaults, log *slog.Logger) *Store {
	if backupPath == "" {
		backupPath = path + ".backup"
	}
	return &Store{
		path:       path,
		backupPath: backupPath,
		defaults:   defaults,
		log:        log,
		gate:       make(chan struct{}, 1),
		now:        time.Now,
		writeFile:  os.WriteFile,
	}
}

// WithClock replaces the time source used for seeding and backfill.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) BackupPath() string {
	return s.backupPath
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquire store: %w", ctx.Err())
	}
}

func (s *Store) release() {
	<-s.gate
}

// Load returns the current document. Corrupt or missing files are recovered
// from the backup or replaced with a fresh document; only ctx errors surface.
func (s *Store) Load(ctx context.Context) (*models.Document, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	return s.load(), nil
}

// Save persists doc, rotating the previous file into the backup slot.
func (s *Store) Save(ctx context.Context, doc *models.Document) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return s.save(doc)
}

// Snapshot returns the raw bytes of the primary file.
func (s *Store) Snapshot(ctx context.Context) ([]byte, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

func (s *Store) load() *models.Document {
	doc, primaryErr := s.read(s.path)
	if primaryErr == nil {
		return doc
	}
	s.log.Warn("primary data file unusable, trying backup", "path", s.path, "err", primaryErr)

	doc, backupErr := s.read(s.backupPath)
	if backupErr == nil {
		s.log.Info("data restored from backup", "path", s.backupPath)
		return doc
	}
	s.log.Error("backup data file unusable, reinitialising", "path", s.backupPath, "err", backupErr)

	// keep unreadable files out of the fresh save's rotation
	if !errors.Is(primaryErr, os.ErrNotExist) {
		s.quarantine(s.path)
	}
	if !errors.Is(backupErr, os.ErrNotExist) {
		s.quarantine(s.backupPath)
	}

	fresh := DefaultDocument(s.defaults, s.now())
	if err := s.save(fresh); err != nil {
		return fresh
	}
	doc, err := s.read(s.path)
	if err != nil {
		s.log.Error("reload fresh data file", "path", s.path, "err", err)
		return fresh
	}
	return doc
}

// quarantine moves an undecodable file out of the rotation.
func (s *Store) quarantine(path string) {
	target := path + ".corrupt." + s.now().UTC().Format("20060102T150405")
	if err := os.Rename(path, target); err != nil {
		s.log.Error("move aside unreadable data file", "path", path, "err", err)
		return
	}
	s.log.Warn("unreadable data file moved aside", "path", path, "target", target)
}

func (s *Store) read(path string) (*models.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	raw, err = upgradeLegacy(raw, time.Local)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	now := s.now()
	doc := DefaultDocument(s.defaults, now)
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	migrate(doc, s.defaults, now)
	return doc, nil
}

func (s *Store) save(doc *models.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.log.Error("encode data file", "err", err)
		return fmt.Errorf("encode document: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.log.Error("create data dir", "dir", dir, "err", err)
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	if err := os.Remove(s.backupPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Error("remove old backup", "path", s.backupPath, "err", err)
		return fmt.Errorf("remove backup: %w", err)
	}
	rotated := true
	if err := os.Rename(s.path, s.backupPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Error("rotate data file", "path", s.path, "err", err)
			return fmt.Errorf("rotate data file: %w", err)
		}
		rotated = false
	}

	if err := s.writeFile(s.path, data, 0o600); err != nil {
		s.log.Error("write data file", "path", s.path, "err", err)
		if rotated {
			if rerr := os.Rename(s.backupPath, s.path); rerr != nil {
				s.log.Error("restore data file from backup", "err", rerr)
			}
		}
		return fmt.Errorf("write data file: %w", err)
	}
	return nil
}
