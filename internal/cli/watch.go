package cli

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/syncclient"
)

// NewWatchCmd follows a session the way a participant's client does and
// prints every refreshed snapshot as a JSON line.
func NewWatchCmd(configPath *string) *cobra.Command {
	var (
		server    string
		sessionID string
		token     string
		userID    string
		role      string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a live session's state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			var opt syncclient.ClientOption
			if token != "" {
				opt = syncclient.WithToken(token)
			} else {
				opt = syncclient.WithDevActor(domain.Actor{UserID: userID, Role: domain.Role(role)})
			}
			client := syncclient.NewClient(server, opt)

			out := json.NewEncoder(cmd.OutOrStdout())
			syncer := syncclient.NewSyncer(sessionID, client, syncclient.NewWSSource(client),
				syncclient.WithPollInterval(config.TTLDuration(cfg.Sync.PollInterval, syncclient.DefaultPollInterval)),
				syncclient.WithOnChange(func(v domain.SessionView) { _ = out.Encode(v) }))

			err = syncer.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "service base URL")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&token, "token", "", "bearer token")
	cmd.Flags().StringVar(&userID, "user", "", "dev-mode user id when no token is given")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStudent), "dev-mode role")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
