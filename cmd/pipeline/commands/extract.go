package commands

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"media-pipeline-go/pkg/extract"
	"media-pipeline-go/pkg/job"
	"media-pipeline-go/pkg/utils"
)

// extractOutput is the preview printed by the extract command
type extractOutput struct {
	Mode      job.Mode       `json:"mode" yaml:"mode"`
	Ruleset   string         `json:"ruleset" yaml:"ruleset"`
	Sequences []job.Sequence `json:"sequences" yaml:"sequences"`
}

// NewExtractCommand creates the extract command
func NewExtractCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <file|->",
		Short: "Preview the sequences a text would be split into",
		Long: `Run only the sequence extraction on a text and print the resulting
sequences with their metadata. Nothing is generated or stored.`,
		Args: cobra.ExactArgs(1),
		RunE: runExtract,
	}

	cmd.Flags().String("mode", "", "Pipeline mode whose ruleset to use (tool, veo)")
	cmd.Flags().String("format", "yaml", "Output format (json, yaml)")
	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	a, err := appFrom(cmd)
	if err != nil {
		return err
	}

	modeName, _ := cmd.Flags().GetString("mode")
	mode, err := job.ParseMode(modeName, job.Mode(a.cfg.Pipeline.DefaultMode))
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")

	text, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	rules := extract.RulesetFor(a.cfg.Extraction, mode)
	sequences, err := extract.New(rules).Extract(text)
	if err != nil {
		return err
	}

	return writeFormatted(cmd.OutOrStdout(), format, extractOutput{
		Mode:      mode,
		Ruleset:   rules.Version(),
		Sequences: sequences,
	})
}

// writeFormatted encodes v as json or yaml
func writeFormatted(out io.Writer, format string, v interface{}) error {
	if err := utils.ValidateOneOf(format, []string{"json", "yaml"}, "format"); err != nil {
		return err
	}

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
}
