package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	dbType     string
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "recscribe",
		Short: "Recording transcription desk",
		Long: `recscribe uploads recordings to a bucket, sends them for speech
recognition and lets editors correct the resulting transcripts.

Server commands read a JSON or YAML config file; client commands talk to a
running server.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			if !cmd.Flags().Changed("config") {
				if v := os.Getenv("RECSCRIBE_CONFIG"); v != "" {
					opts.configPath = v
				}
			}
			if !cmd.Flags().Changed("db") {
				if v := os.Getenv("RECSCRIBE_DB"); v != "" {
					opts.dbType = v
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.json", "Config file (JSON, or YAML by extension)")
	cmd.PersistentFlags().StringVar(&opts.dbType, "db", "sqlite3", "Database driver (sqlite3 or mysql)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newUserCmd(opts))
	cmd.AddCommand(newProcessCmd(opts))
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newEditCmd())

	return cmd
}
