package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/phasic/experiment/checkpointer"
)

func saveStates(t *testing.T, store checkpointer.Store,
	timesteps ...int) []checkpointer.Entry {
	var entries []checkpointer.Entry
	for _, ts := range timesteps {
		entry, err := store.Save(context.Background(), &checkpointer.State{
			TimestepsTotal: ts,
			TimeElapsed:    time.Minute,
			BestReward:     math.Inf(-1),
			Gamma:          0.99,
		})
		require.NoError(t, err)
		entries = append(entries, entry)

		// File stores order checkpoints by modification time
		time.Sleep(10 * time.Millisecond)
	}
	return entries
}

func TestCheckpointsFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := openStore(fileStore, dir, "")
	require.NoError(t, err)
	saved := saveStates(t, store, 100, 200)
	require.NoError(t, store.Close())

	// A fresh store over the same directory reads what train wrote
	store, err = openStore(fileStore, dir, "")
	require.NoError(t, err)
	defer store.Close()

	var out bytes.Buffer
	require.NoError(t, listCheckpoints(context.Background(), &out, store,
		true))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], saved[0].ID))
	assert.True(t, strings.HasPrefix(lines[2], saved[1].ID))

	out.Reset()
	require.NoError(t, inspectCheckpoint(context.Background(), &out, store,
		""))
	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, 200.0, summary["timesteps"])
	assert.Nil(t, summary["bestReward"])

	out.Reset()
	require.NoError(t, inspectCheckpoint(context.Background(), &out, store,
		saved[0].ID))
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, 100.0, summary["timesteps"])
}

func TestCheckpointsSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	first, err := openStore(sqliteStore, dir, "run-a")
	require.NoError(t, err)
	saveStates(t, first, 10)
	require.NoError(t, first.Close())

	second, err := openStore(sqliteStore, dir, "run-b")
	require.NoError(t, err)
	saveStates(t, second, 20, 30)

	var out bytes.Buffer
	require.NoError(t, listCheckpoints(context.Background(), &out, second,
		false))
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 3)

	out.Reset()
	require.NoError(t, listCheckpoints(context.Background(), &out, second,
		true))
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 4)
	assert.Contains(t, out.String(), "run-a")
	require.NoError(t, second.Close())
}

func TestCheckpointsEmptyStore(t *testing.T) {
	store, err := openStore(fileStore, t.TempDir(), "")
	require.NoError(t, err)
	defer store.Close()

	var out bytes.Buffer
	require.NoError(t, listCheckpoints(context.Background(), &out, store,
		true))
	assert.Equal(t, "No checkpoints found\n", out.String())

	err = inspectCheckpoint(context.Background(), &out, store, "")
	assert.True(t, checkpointer.IsNotFound(err))

	_, err = openStore("s3", t.TempDir(), "")
	assert.Error(t, err)
}
