package main

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bizdesk/internal/config"
	"bizdesk/storage"
)

var (
	cfg    config.Config
	logger = log.New()
)

var rootCmd = &cobra.Command{
	Use:   "bizdesk",
	Short: "Pipeline board and business desk backend",
	Long: `bizdesk serves the sales pipeline board, proposals, contracts,
transactions and services of a small business over HTTP, and projects
domain events into the per-user activity feed.

Configuration comes from environment variables, optionally layered over a
file named by BIZDESK_CONFIG.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger.SetFormatter(&log.JSONFormatter{})
		if cfg.Debug {
			logger.SetLevel(log.DebugLevel)
			log.SetLevel(log.DebugLevel)
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStorage(c config.Config) (*storage.Storage, error) {
	if err := c.ValidateStorage(); err != nil {
		return nil, err
	}
	store, err := storage.New(c.StorageConnectionString, storage.Tables{
		Clients:      c.ClientsTable,
		Proposals:    c.ProposalsTable,
		Contracts:    c.ContractsTable,
		Transactions: c.TransactionsTable,
		Services:     c.ServicesTable,
		Activity:     c.ActivityTable,
		EventsQueue:  c.EventsQueue,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if c.QueueConcurrency > 0 {
		store.SetQueueConcurrency(c.QueueConcurrency)
	}
	return store, nil
}

func openRedis(conn string) (*redis.Client, error) {
	opts, err := config.RedisOptions(conn)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return redis.NewClient(opts), nil
}
