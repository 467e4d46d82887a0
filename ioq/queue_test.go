package ioq

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueOpenAndClose(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "child"), 0o755))

	q, err := New(8, 2)
	require.NoError(t, err)
	defer q.Close()

	parent, err := os.Open(dir)
	require.NoError(t, err)
	defer parent.Close()

	req := q.NewRequest(OpOpen)
	req.ParentFD = int(parent.Fd())
	req.Name = "child"
	req.FullPath = filepath.Join(dir, "child")
	require.NoError(t, q.Submit(req))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := q.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	require.Greater(t, res.FD, 0)

	closeReq := q.NewRequest(OpClose)
	closeReq.FD = res.FD
	require.NoError(t, q.Submit(closeReq))
	q.PutResult(res)
}

func TestQueueSubmitFullReturnsErrFull(t *testing.T) {
	q, err := New(1, 1)
	require.NoError(t, err)
	defer q.Close()

	// Each OpStat fails at once (ParentFD -1), but nothing ever drains
	// completions: once the one-slot completion ring is full the single
	// worker blocks delivering, and the one-slot submission ring fills
	// behind it, so Submit must report ErrFull within a few requests.
	for i := 0; i < 64; i++ {
		req := q.NewRequest(OpStat)
		req.ParentFD = -1
		req.Name = "nonexistent"
		if err := q.Submit(req); err == ErrFull {
			return
		}
	}
	t.Fatal("Submit never returned ErrFull")
}

func TestQueueCancelUnblocksWait(t *testing.T) {
	q, err := New(4, 2)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = q.Wait(context.Background())
	}()

	q.Cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not unblock after Cancel")
	}
	require.NoError(t, q.Close())
}

func TestRingBackendBatchesAndCompletes(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0o755))
	}
	parent, err := os.Open(dir)
	require.NoError(t, err)
	defer parent.Close()

	q, err := NewRing(8, 4, 2)
	require.NoError(t, err)
	defer q.Close()

	for _, name := range []string{"a", "b", "c"} {
		req := q.NewRequest(OpOpen)
		req.ParentFD = int(parent.Fd())
		req.Name = name
		req.FullPath = filepath.Join(dir, name)
		require.NoError(t, q.Submit(req))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		res, err := q.Wait(ctx)
		require.NoError(t, err)
		require.NoError(t, res.Err)
		seen[res.Req.Name] = true
		closeReq := q.NewRequest(OpClose)
		closeReq.FD = res.FD
		require.NoError(t, q.Submit(closeReq))
	}
	require.Len(t, seen, 3)
}
