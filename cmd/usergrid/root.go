package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"usergrid/internal/apiclient"
	"usergrid/internal/config"
	"usergrid/internal/logging"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

type globalOptions struct {
	apiURL string
	output string
	logger *zap.Logger
}

func (o *globalOptions) client() *apiclient.Client {
	return apiclient.New(o.apiURL)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{logger: zap.NewNop()}
	cmd := &cobra.Command{
		Use:           "usergrid",
		Short:         "Inspect and edit the user grid",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("api-url") {
				opts.apiURL = cfg.APIURL
			}
			opts.logger = logging.NewWithSink(cfg.LogLevel, logging.EncodingConsole, zapcore.Lock(os.Stderr))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "Server base URL (default $USERGRID_API_URL)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "Output format. One of: (table, json)")

	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newSortCmd(opts))
	cmd.AddCommand(newApplyCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	return cmd
}
