package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bizdesk/api"
	"bizdesk/domain"
	"bizdesk/projector"
)

var initStorageCmd = &cobra.Command{
	Use:   "init-storage",
	Short: "Create the tables and the events queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		if err := store.Init(cmd.Context()); err != nil {
			return err
		}
		logger.Info("storage initialised")
		return nil
	},
}

var projectEventsCmd = &cobra.Command{
	Use:   "project-events",
	Short: "Project domain events into the activity feed",
	Long: `project-events drains the domain events queue, appends one activity row per
event and notifies open board streams through Redis when it is configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		var notifier api.Notifier
		if cfg.RedisConnectionString != "" {
			rc, err := openRedis(cfg.RedisConnectionString)
			if err != nil {
				return err
			}
			defer rc.Close()
			notifier = api.NewRedisNotifier(rc, cfg.BoardChannel)
		} else {
			logger.Warn("REDIS_CONNECTION_STRING not set; streams will not be notified")
		}
		return projector.New(store, notifier, logger, projectorOptions()).Run(ctx)
	},
}

var (
	tokenUser string
	tokenRole string
	tokenTTL  time.Duration
)

var genTokenCmd = &cobra.Command{
	Use:   "gen-token",
	Short: "Sign a test-mode bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.TestJWTSecret == "" {
			return fmt.Errorf("TEST_JWT_SECRET is required to sign test tokens")
		}
		token, err := api.SignTestToken([]byte(cfg.TestJWTSecret), tokenUser, domain.ParseRole(tokenRole),
			cfg.RolesClaim, cfg.Auth0Audience, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	genTokenCmd.Flags().StringVar(&tokenUser, "user", "test-user", "subject of the token")
	genTokenCmd.Flags().StringVar(&tokenRole, "role", string(domain.RoleUser), "role: user, moderator or admin")
	genTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")

	rootCmd.AddCommand(initStorageCmd, projectEventsCmd, genTokenCmd)
}
