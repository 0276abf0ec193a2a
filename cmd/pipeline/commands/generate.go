package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"media-pipeline-go/internal/orchestrator"
	"media-pipeline-go/pkg/job"
	"media-pipeline-go/pkg/utils"
	"media-pipeline-go/pkg/validation"
)

// NewGenerateCommand creates the generate command
func NewGenerateCommand() *cobra.Command {
	return newGenerateCommand(newRuntime)
}

func newGenerateCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <file|->",
		Short: "Generate a video from a narrative text file",
		Long: `Submit a narrative text to the pipeline and follow the job until it completes
or fails. The job runs inside this process, so the command waits for it; an
interrupt cancels the job and leaves it failed in the job store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args, open)
		},
	}

	cmd.Flags().String("mode", "", "Pipeline mode (tool, veo); empty uses pipeline.default-mode")
	cmd.Flags().String("title", "", "Title of the video")
	cmd.Flags().String("description", "", "Free form description stored with the job")
	cmd.Flags().String("owner", "", "Owner recorded on the job")
	cmd.Flags().Duration("poll-interval", 2*time.Second, "How often to print progress")
	cmd.Flags().Bool("json", false, "Print snapshots as JSON lines")
	cmd.Flags().Bool("report", true, "Print the validation report when available")
	return cmd
}

func runGenerate(cmd *cobra.Command, args []string, open opener) error {
	a, err := appFrom(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	text, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	rt, err := open(ctx, a, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.orch.Start(); err != nil {
		return err
	}

	mode, _ := cmd.Flags().GetString("mode")
	title, _ := cmd.Flags().GetString("title")
	description, _ := cmd.Flags().GetString("description")
	owner, _ := cmd.Flags().GetString("owner")
	interval, _ := cmd.Flags().GetDuration("poll-interval")
	asJSON, _ := cmd.Flags().GetBool("json")
	withReport, _ := cmd.Flags().GetBool("report")

	id, err := rt.orch.Submit(ctx, orchestrator.Input{
		Text:        text,
		Title:       title,
		Description: description,
		Mode:        mode,
		Owner:       owner,
	})
	if err != nil {
		return err
	}
	a.logger.Info("Generation started", zap.String("job_id", id))

	out := cmd.OutOrStdout()
	snap, err := follow(ctx, rt.orch, id, interval, func(s *job.Snapshot) {
		printSnapshot(out, s, asJSON)
	})
	if err != nil {
		return err
	}

	if withReport && !asJSON {
		if j, err := rt.orch.Get(context.WithoutCancel(ctx), id); err == nil && j.ValidationResult != nil {
			fmt.Fprintln(out, validation.Report(j.ValidationResult))
		}
	}
	if !asJSON {
		printStageStats(out, rt.orch.Stats())
	}

	if snap.Status != job.StatusCompleted {
		return fmt.Errorf("job %s failed: %s", id, snap.Error)
	}
	return nil
}

// follow prints the snapshot whenever it changes until the job is terminal.
// When ctx ends first the job is cancelled and followed to its failure.
func follow(ctx context.Context, orch *orchestrator.Orchestrator, id string, interval time.Duration,
	emit func(*job.Snapshot)) (*job.Snapshot, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	bg := context.WithoutCancel(ctx)
	done := ctx.Done()
	var last *job.Snapshot

	for {
		snap, err := orch.GetStatus(bg, id)
		if err != nil {
			return nil, err
		}
		if last == nil || snap.UpdatedAt != last.UpdatedAt || snap.Status != last.Status {
			emit(snap)
			last = snap
		}
		if snap.Status.IsTerminal() {
			return snap, nil
		}

		select {
		case <-done:
			if err := orch.Cancel(bg, id); err != nil {
				return nil, err
			}
			done = nil
		case <-ticker.C:
		}
	}
}

func printSnapshot(out io.Writer, s *job.Snapshot, asJSON bool) {
	if asJSON {
		data, err := json.Marshal(s)
		if err == nil {
			fmt.Fprintln(out, string(data))
		}
		return
	}

	line := fmt.Sprintf("[%s] %-10s %6.2f%% units %d/%d",
		s.UpdatedAt.Format("15:04:05"), s.Status, s.Progress.Percent,
		s.Progress.CompletedUnits, s.Progress.TotalUnits)
	if s.Progress.CurrentStage != "" && !s.Status.IsTerminal() {
		line += " stage " + string(s.Progress.CurrentStage)
	}
	switch {
	case s.Error != "":
		line += " error: " + s.Error
	case s.VideoPath != nil:
		line += " video: " + *s.VideoPath
		if s.QualityScore != nil {
			line += fmt.Sprintf(" quality %.2f", *s.QualityScore)
		}
	}
	fmt.Fprintln(out, line)
}

func printStageStats(out io.Writer, st orchestrator.Stats) {
	if len(st.Stages) == 0 {
		return
	}
	fmt.Fprintln(out, "Stage timings:")
	for _, s := range st.Stages {
		fmt.Fprintf(out, "  %-10s ok %d, failed %d, retries %d, mean %s, max %s\n",
			s.Stage, s.Succeeded, s.Failed, s.Retries,
			utils.FormatDuration(seconds(s.Latency.Mean)),
			utils.FormatDuration(seconds(s.Latency.Max)))
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// readInput reads a file, or stdin when path is "-"
func readInput(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if utils.IsFileNotFoundError(err) {
		return "", fmt.Errorf("input file %s does not exist", path)
	}
	if err != nil {
		return "", utils.WrapErrorf(err, "failed to read %s", path)
	}
	return string(data), nil
}
