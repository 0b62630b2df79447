package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"recscribe/internal/client"
)

func newUploadCmd() *cobra.Command {
	opts := &clientOptions{}

	cmd := &cobra.Command{
		Use:     "upload <file>",
		Short:   "Upload a recording straight to the bucket",
		Example: `  recscribe upload "My File.wav" --server https://desk.example.org -u editor`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.login(cmd.Context())
			if err != nil {
				return err
			}
			file, closer, err := client.OpenFile(args[0])
			if err != nil {
				return err
			}
			defer closer.Close()

			panels := client.NewPanels(cmd.ErrOrStderr())
			session := c.NewUploadSession(file, panels.Observe)
			if err := session.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), session.Key())
			return nil
		},
	}
	opts.register(cmd)

	return cmd
}
