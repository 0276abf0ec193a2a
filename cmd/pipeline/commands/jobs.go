package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"media-pipeline-go/pkg/job"
	"media-pipeline-go/pkg/utils"
	"media-pipeline-go/pkg/validation"
)

// jobSummary is one row of the jobs list
type jobSummary struct {
	ID        string     `json:"id" yaml:"id"`
	Owner     string     `json:"owner,omitempty" yaml:"owner,omitempty"`
	Title     string     `json:"title,omitempty" yaml:"title,omitempty"`
	Mode      job.Mode   `json:"mode" yaml:"mode"`
	Status    job.Status `json:"status" yaml:"status"`
	Percent   float64    `json:"percent" yaml:"percent"`
	Sequences int        `json:"sequences" yaml:"sequences"`
	CreatedAt string     `json:"created_at" yaml:"created_at"`
	Error     string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewJobsCommand creates the jobs command group
func NewJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage jobs in the job store",
	}

	cmd.AddCommand(newJobsListCommand())
	cmd.AddCommand(newJobsStatusCommand())
	cmd.AddCommand(newJobsReportCommand())
	cmd.AddCommand(newJobsCancelCommand())
	cmd.AddCommand(newJobsDeleteCommand())
	return cmd
}

// withRuntime runs fn against an orchestrator over the configured stores
func withRuntime(cmd *cobra.Command, fn func(rt *runtime) error) error {
	for _, arg := range cmd.Flags().Args() {
		if err := utils.ValidateNonEmpty(arg, "job id"); err != nil {
			return err
		}
	}

	a, err := appFrom(cmd)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), a, false)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func newJobsListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			format, _ := cmd.Flags().GetString("format")

			return withRuntime(cmd, func(rt *runtime) error {
				jobs, err := rt.orch.List(cmd.Context(), owner)
				if err != nil {
					return err
				}

				rows := make([]jobSummary, len(jobs))
				for i, j := range jobs {
					rows[i] = jobSummary{
						ID:        j.ID,
						Owner:     j.Owner,
						Title:     j.Title,
						Mode:      j.Mode,
						Status:    j.Status,
						Percent:   j.Progress.Percent,
						Sequences: len(j.Sequences),
						CreatedAt: j.CreatedAt.Format("2006-01-02 15:04:05"),
						Error:     j.Error,
					}
				}

				if err := utils.ValidateOneOf(format, []string{"table", "json", "yaml"}, "format"); err != nil {
					return err
				}
				if format != "table" {
					return writeFormatted(cmd.OutOrStdout(), format, rows)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tOWNER\tMODE\tSTATUS\tPERCENT\tSEQUENCES\tCREATED")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%d\t%s\n",
						r.ID, r.Owner, r.Mode, r.Status, r.Percent, r.Sequences, r.CreatedAt)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().String("owner", "", "Only list jobs of this owner")
	cmd.Flags().String("format", "table", "Output format (table, json, yaml)")
	return cmd
}

func newJobsStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Print the status snapshot of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			return withRuntime(cmd, func(rt *runtime) error {
				snap, err := rt.orch.GetStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeFormatted(cmd.OutOrStdout(), format, snap)
			})
		},
	}

	cmd.Flags().String("format", "json", "Output format (json, yaml)")
	return cmd
}

func newJobsReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report <job-id>",
		Short: "Print the validation report of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(rt *runtime) error {
				j, err := rt.orch.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if j.ValidationResult == nil {
					return fmt.Errorf("job %s has not been validated (status %s)", j.ID, j.Status)
				}
				fmt.Fprintln(cmd.OutOrStdout(), validation.Report(j.ValidationResult))
				return nil
			})
		},
	}
}

func newJobsCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Mark an unfinished job left behind by a stopped process as failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(rt *runtime) error {
				if err := rt.orch.Cancel(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", args[0])
				return nil
			})
		},
	}
}

func newJobsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a finished job and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(rt *runtime) error {
				if err := rt.orch.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s deleted\n", args[0])
				return nil
			})
		},
	}
}
