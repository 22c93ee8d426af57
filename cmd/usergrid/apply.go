package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"usergrid/internal/grid"
)

type applyResult struct {
	Rows    int          `json:"rows"`
	Saved   bool         `json:"saved"`
	Issues  []grid.Issue `json:"issues,omitempty"`
	Message string       `json:"message"`
}

func newApplyCmd(opts *globalOptions) *cobra.Command {
	var (
		file   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "apply -f FILE",
		Short: "Apply an edits file and save it in one bulk upsert",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEdits(cmd, opts, file, !dryRun)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Edits file (YAML)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate without saving")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newValidateCmd(opts *globalOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate [-f FILE]",
		Short: "Check current users, optionally with an edits file applied, without saving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEdits(cmd, opts, file, false)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Edits file (YAML)")
	return cmd
}

func runEdits(cmd *cobra.Command, opts *globalOptions, file string, save bool) error {
	var script Script
	if file != "" {
		s, err := loadScript(file)
		if err != nil {
			return err
		}
		script = s
	}
	client := opts.client()
	editor := grid.New(grid.WithLogger(opts.logger), grid.WithSaver(client))
	if err := editor.Reload(cmd.Context(), client); err != nil {
		return err
	}
	if err := script.apply(editor); err != nil {
		return err
	}

	res := applyResult{Rows: editor.Len()}
	var err error
	if save {
		err = editor.Save(cmd.Context())
		res.Saved = err == nil
	} else if issues := editor.Validate(); len(issues) > 0 {
		err = issues
	}

	var issues grid.Issues
	switch {
	case errors.As(err, &issues):
		res.Issues = issues
		res.Message = issues.Error()
	case err != nil:
		return err
	case save:
		res.Message = fmt.Sprintf("saved %d users", res.Rows)
	default:
		res.Message = fmt.Sprintf("%d users valid", res.Rows)
	}
	opts.logger.Debug("edits processed", zap.String("file", file), zap.Bool("saved", res.Saved))

	if opts.output == outputJSON {
		if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
			return werr
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	}
	if len(res.Issues) > 0 {
		return errors.New("validation failed")
	}
	return nil
}
