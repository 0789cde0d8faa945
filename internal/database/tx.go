package database

import (
	"context"
	"errors"

	"github.com/digkill/TGLookupBot/internal/models"
)

var ErrTxDone = errors.New("transaction already finished")

// Tx holds the store gate for one read-modify-write cycle.
type Tx struct {
	store *Store
	Doc   *models.Document
	done  bool
}

// Begin acquires the gate and loads the document. The caller must finish the
// transaction with Commit or Rollback.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	return &Tx{store: s, Doc: s.load()}, nil
}

// Commit saves the document and releases the gate. The gate is released even
// when the save fails.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	defer tx.store.release()
	return tx.store.save(tx.Doc)
}

// Rollback discards changes. It is a no-op after Commit.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	tx.store.release()
}

// Update runs fn inside a transaction and commits when fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(doc *models.Document) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx.Doc); err != nil {
		return err
	}
	return tx.Commit()
}

// View runs fn under the gate without saving.
func (s *Store) View(ctx context.Context, fn func(doc *models.Document) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(tx.Doc)
}
