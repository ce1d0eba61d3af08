package cmd

import (
	"github.com/donation-platform/ledger-worker/src/reconcile"

	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(reconcileCmd)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Applies contract events to the database and publishes approved campaigns",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		controller, err := reconcile.NewController(conf)
		if err != nil {
			return
		}

		err = controller.Start()
		if err != nil {
			return
		}

		select {
		case <-controller.CtxRunning.Done():
		case <-applicationCtx.Done():
		}

		controller.StopWait()

		// Non-zero exit code when a reconciler gave up
		return controller.Err()
	},
}
