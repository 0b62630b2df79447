package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"recscribe/internal/client"
)

type clientOptions struct {
	server   string
	username string
	password string
}

func (o *clientOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.server, "server", "", "Server URL (env RECSCRIBE_SERVER, default http://localhost:8090)")
	cmd.Flags().StringVarP(&o.username, "username", "u", "", "Username (env HTTP_USER)")
	cmd.Flags().StringVarP(&o.password, "password", "p", "", "Password (env HTTP_PASS)")
}

// login builds a client and signs in with flags or their env fallbacks.
func (o *clientOptions) login(ctx context.Context) (*client.Client, error) {
	server := firstNonEmpty(o.server, os.Getenv("RECSCRIBE_SERVER"), "http://localhost:8090")
	c, err := client.New(server, nil)
	if err != nil {
		return nil, err
	}
	username := firstNonEmpty(o.username, os.Getenv("HTTP_USER"))
	password := firstNonEmpty(o.password, os.Getenv("HTTP_PASS"))
	if err := c.Login(ctx, username, password); err != nil {
		return nil, err
	}
	return c, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
