package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recscribe/internal/auth"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage desk users",
	}
	cmd.AddCommand(newUserAddCmd(opts))
	return cmd
}

func newUserAddCmd(opts *rootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:     "add <username>",
		Short:   "Create a user",
		Args:    cobra.ExactArgs(1),
		Example: `  echo 's3cret' | recscribe user add editor`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			db, err := openDatabase(opts, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("password required on stdin or --password")
				}
				password = strings.TrimRight(line, "\r\n")
			}
			svc := auth.NewService(db, nil, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)
			user, err := svc.CreateUser(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password (read from stdin when empty)")

	return cmd
}
