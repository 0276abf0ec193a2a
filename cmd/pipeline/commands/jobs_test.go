package commands

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"media-pipeline-go/pkg/job"
	"media-pipeline-go/pkg/jobstore"
)

// seedJobs writes a finished and an unfinished job into the configured store
func seedJobs(t *testing.T, a *app) {
	t.Helper()

	ctx := context.Background()
	store, err := jobstore.New(ctx, a.cfg.Store, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	done := job.New("job-done", "alice", "Forest", "", job.ModeTool, story, created)
	done.Status = job.StatusCompleted
	done.Progress.Percent = 100
	done.ValidationResult = job.NewValidationResult(0.92, nil, []string{"Narration slightly long"}, 0.7, 0)
	require.NoError(t, store.Save(ctx, done))

	stuck := job.New("job-stuck", "bob", "Castle", "", job.ModeVeo, story, created.Add(time.Minute))
	stuck.Status = job.StatusGenerating
	require.NoError(t, store.Save(ctx, stuck))
}

func TestJobsCommands(t *testing.T) {
	a := pipelineApp(t)
	seedJobs(t, a)

	tests := []struct {
		name    string
		args    []string
		want    []string
		absent  []string
		wantErr string
	}{
		{
			name: "List table newest first",
			args: []string{"list"},
			want: []string{"STATUS", "job-stuck", "job-done", "generating", "completed"},
		},
		{
			name:   "List filtered by owner",
			args:   []string{"list", "--owner", "alice", "--format", "yaml"},
			want:   []string{"id: job-done", "status: completed"},
			absent: []string{"job-stuck"},
		},
		{
			name:    "List unknown format",
			args:    []string{"list", "--format", "csv"},
			wantErr: "format must be one of",
		},
		{
			name: "Status of finished job",
			args: []string{"status", "job-done"},
			want: []string{`"status": "completed"`, `"quality_score": 0.92`},
		},
		{
			name:    "Status of unknown job",
			args:    []string{"status", "job-missing"},
			wantErr: job.ErrNotFound.Error(),
		},
		{
			name:    "Status of blank id",
			args:    []string{"status", " "},
			wantErr: "job id",
		},
		{
			name: "Report of validated job",
			args: []string{"report", "job-done"},
			want: []string{"=== VALIDATION REPORT ===", "PASSED", "Narration slightly long"},
		},
		{
			name:    "Report of unvalidated job",
			args:    []string{"report", "job-stuck"},
			wantErr: "has not been validated",
		},
		{
			name:    "Delete unfinished job",
			args:    []string{"delete", "job-stuck"},
			wantErr: job.ErrConflict.Error(),
		},
		{
			name: "Cancel orphaned job",
			args: []string{"cancel", "job-stuck"},
			want: []string{"Job job-stuck cancelled"},
		},
		{
			name: "Cancelled job is failed",
			args: []string{"status", "job-stuck", "--format", "yaml"},
			want: []string{"status: failed", job.ErrCancelled.Error()},
		},
		{
			name: "Cancel finished job is a no-op",
			args: []string{"cancel", "job-done"},
			want: []string{"Job job-done cancelled"},
		},
		{
			name: "Delete finished job",
			args: []string{"delete", "job-stuck"},
			want: []string{"Job job-stuck deleted"},
		},
		{
			name:    "Deleted job is gone",
			args:    []string{"status", "job-stuck"},
			wantErr: job.ErrNotFound.Error(),
		},
	}

	// steps share the store and run in order
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(context.Background(), t, a, NewJobsCommand(), "", tt.args...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, out, want)
			}
			for _, absent := range tt.absent {
				assert.NotContains(t, out, absent)
			}
		})
	}
}

func TestJobsListFormats(t *testing.T) {
	a := pipelineApp(t)
	seedJobs(t, a)

	out, err := execute(context.Background(), t, a, NewJobsCommand(), "", "list", "--format", "json")
	require.NoError(t, err)

	var rows []jobSummary
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "job-stuck", rows[0].ID)
	assert.Equal(t, job.ModeVeo, rows[0].Mode)
	assert.Equal(t, "2024-05-01 10:00:00", rows[1].CreatedAt)
	assert.Equal(t, 100.0, rows[1].Percent)

	out, err = execute(context.Background(), t, a, NewJobsCommand(), "", "list", "--format", "yaml")
	require.NoError(t, err)

	var fromYAML []jobSummary
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	assert.Equal(t, rows, fromYAML)
}
