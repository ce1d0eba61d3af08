package cmd

import (
	"errors"

	"github.com/donation-platform/ledger-worker/src/store"
	"github.com/donation-platform/ledger-worker/src/utils/ledger"
	"github.com/donation-platform/ledger-worker/src/utils/logger"
	"github.com/donation-platform/ledger-worker/src/utils/model"

	"github.com/spf13/cobra"
)

var (
	checkpointStartAt string

	errNoContracts = errors.New("no contracts configured")
)

func init() {
	checkpointCmd.Flags().StringVar(&checkpointStartAt, "start-at", "", "ledger timestamp (seconds.nanos) to start from, overrides the configured one")
	RootCmd.AddCommand(checkpointCmd)
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Creates missing checkpoints of the configured contracts. Existing ones are left untouched.",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		log := logger.NewSublogger("checkpoint-cmd")

		if len(conf.Contracts) == 0 {
			return errNoContracts
		}

		db, err := model.NewConnection(applicationCtx, conf, "ledger-worker-checkpoint")
		if err != nil {
			return
		}
		sqlDB, err := db.DB()
		if err != nil {
			return
		}
		defer sqlDB.Close()

		stateStore := store.NewStore(conf, db)

		for _, c := range conf.Contracts {
			startAt := c.StartAt
			if checkpointStartAt != "" {
				startAt = checkpointStartAt
			}

			var ts *ledger.Timestamp
			ts, err = ledger.ParseOptional(&startAt)
			if err != nil {
				return
			}

			var created bool
			created, err = stateStore.SeedCheckpoint(applicationCtx, c.Key, ts)
			if err != nil {
				return
			}

			log.WithField("key", c.Key).
				WithField("start_at", startAt).
				WithField("created", created).
				Info("Checkpoint provisioned")
		}
		return
	},
}
