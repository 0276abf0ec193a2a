package jobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"media-pipeline-go/pkg/config"
	"media-pipeline-go/pkg/job"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleJob(owner string, offset time.Duration) *job.Job {
	j := job.New(uuid.NewString(), owner, "La tempesta", "", job.ModeTool, "C'era una volta.", epoch.Add(offset))
	j.Status = job.StatusGenerating
	j.Sequences = []job.Sequence{{Index: 0, Text: "C'era una volta.", Characters: []string{"Marco"}, Emotions: []string{}}}
	adherence := 0.9
	j.PutArtifact(job.Artifact{Stage: job.StageImage, Index: 0, Ref: "jobs/x/images/seq_000.png", Adherence: &adherence})
	j.PutArtifact(job.Artifact{Stage: job.StageVideo, Index: job.JobLevel, Ref: "jobs/x/video/final.mp4"})
	j.Progress.Stages[job.StageImage] = job.StageCount{Completed: 1, Total: 1}
	return j
}

// exerciseStore runs the behavior every backend must share
func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("Round trip", func(t *testing.T) {
		j := sampleJob("alice", 0)
		require.NoError(t, store.Save(ctx, j))

		got, err := store.Get(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, j.ID, got.ID)
		assert.Equal(t, job.StatusGenerating, got.Status)
		assert.Equal(t, j.Sequences, got.Sequences)
		assert.True(t, j.CreatedAt.Equal(got.CreatedAt))

		img, ok := got.Artifact(job.StageImage, 0)
		require.True(t, ok)
		require.NotNil(t, img.Adherence)
		assert.Equal(t, 0.9, *img.Adherence)

		video, ok := got.Artifact(job.StageVideo, job.JobLevel)
		require.True(t, ok)
		assert.Equal(t, "jobs/x/video/final.mp4", video.Ref)
		assert.Equal(t, 1, got.Progress.Stages[job.StageImage].Completed)
	})

	t.Run("Save replaces", func(t *testing.T) {
		j := sampleJob("alice", time.Minute)
		require.NoError(t, store.Save(ctx, j))

		j.Status = job.StatusFailed
		j.Error = "image stage failed"
		require.NoError(t, store.Save(ctx, j))

		got, err := store.Get(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, job.StatusFailed, got.Status)
		assert.Equal(t, "image stage failed", got.Error)
	})

	t.Run("Terminal records are final", func(t *testing.T) {
		j := sampleJob("dave", 0)
		j.Status = job.StatusFailed
		j.Error = "job cancelled"
		require.NoError(t, store.Save(ctx, j))

		late := j.Clone()
		late.Status = job.StatusCompleted
		late.Error = ""
		assert.ErrorIs(t, store.Save(ctx, late), job.ErrConflict)

		late.Status = job.StatusValidating
		assert.ErrorIs(t, store.Save(ctx, late), job.ErrConflict)

		got, err := store.Get(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, job.StatusFailed, got.Status)
		assert.Equal(t, "job cancelled", got.Error)
	})

	t.Run("Stored copy is isolated", func(t *testing.T) {
		j := sampleJob("carol", 0)
		require.NoError(t, store.Save(ctx, j))
		j.Status = job.StatusCompleted

		got, err := store.Get(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, job.StatusGenerating, got.Status)
	})

	t.Run("Missing ids", func(t *testing.T) {
		_, err := store.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, job.ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, uuid.NewString()), job.ErrNotFound)
	})

	t.Run("List by owner newest first", func(t *testing.T) {
		owner := "owner-" + uuid.NewString()
		older := sampleJob(owner, time.Hour)
		newer := sampleJob(owner, 2*time.Hour)
		other := sampleJob("someone-else", 3*time.Hour)
		for _, j := range []*job.Job{older, newer, other} {
			require.NoError(t, store.Save(ctx, j))
		}

		jobs, err := store.List(ctx, owner)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, newer.ID, jobs[0].ID)
		assert.Equal(t, older.ID, jobs[1].ID)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		ids := make([]string, len(all))
		for i, j := range all {
			ids[i] = j.ID
		}
		assert.Contains(t, ids, other.ID)
		assert.Contains(t, ids, newer.ID)

		none, err := store.List(ctx, "nobody-"+uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Delete", func(t *testing.T) {
		owner := "owner-" + uuid.NewString()
		j := sampleJob(owner, 0)
		require.NoError(t, store.Save(ctx, j))
		require.NoError(t, store.Delete(ctx, j.ID))

		_, err := store.Get(ctx, j.ID)
		assert.ErrorIs(t, err, job.ErrNotFound)

		jobs, err := store.List(ctx, owner)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("Rejects unsafe ids", func(t *testing.T) {
		j := sampleJob("alice", 0)
		j.ID = "../escape"
		assert.ErrorIs(t, store.Save(ctx, j), job.ErrInvalidInput)
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestFileStoreSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, store.Save(context.Background(), sampleJob("alice", 0)))

	jobs, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestSQLiteStore(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "jobs.db") + "?mode=rwc"
	store, err := NewSQLiteStore(context.Background(), dsn, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("MEDIA_PIPELINE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MEDIA_PIPELINE_TEST_REDIS_ADDR not set")
	}

	store, err := NewRedisStoreFromConfig(context.Background(), config.StoreConfig{
		RedisAddr: addr,
		KeyPrefix: "media-pipeline-test-" + uuid.NewString(),
	}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, config.StoreConfig{Backend: "memory"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = New(ctx, config.StoreConfig{Backend: "file", Directory: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = New(ctx, config.StoreConfig{Backend: "etcd"}, zap.NewNop())
	assert.Error(t, err)
}
