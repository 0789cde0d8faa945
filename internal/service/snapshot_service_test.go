package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryUploader struct {
	data [][]byte
	err  error
}

func (m *memoryUploader) UploadSnapshot(_ context.Context, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.data = append(m.data, data)
	return "snapshots/test.json", nil
}

func TestSnapshotService_Upload(t *testing.T) {
	env := newTestEnv(t)
	env.newUser(1, "7")
	uploader := &memoryUploader{}
	snapshots := NewSnapshotService(env.store, uploader, discardLogger())

	key, err := snapshots.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "snapshots/test.json", key)
	require.Len(t, uploader.data, 1)
	assert.Contains(t, string(uploader.data[0]), `"credits": 7`)

	uploader.err = errors.New("bucket missing")
	_, err = snapshots.Upload(context.Background())
	assert.ErrorIs(t, err, uploader.err)
}

func TestSnapshotService_RunStopsWithContext(t *testing.T) {
	env := newTestEnv(t)
	snapshots := NewSnapshotService(env.store, &memoryUploader{}, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, snapshots.Run(ctx, 0), context.Canceled)
}
