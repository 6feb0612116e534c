package serve

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zeroknots/lazyaccount/bootstrap"
	"github.com/zeroknots/lazyaccount/cmd/cli"
)

var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the local user operation builder API",
	Args:  cobra.NoArgs,
	RunE: func(command *cobra.Command, _ []string) error {
		cfg, err := cli.LoadConfig(command)
		if err != nil {
			return err
		}

		ctx, cancel := cli.SignalContext(command.Context())
		defer cancel()

		done := make(chan struct{})
		ready := make(chan struct{})
		once := sync.Once{}
		closeReady := func() {
			once.Do(func() {
				close(ready)
			})
		}

		var runErr error
		go func() {
			defer close(done)
			// In case an error happens before ready is called we need to close the ready channel
			defer closeReady()

			err := bootstrap.Run(ctx, *cfg, closeReady)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Err(err).Msg("API server runtime error")
				runErr = err
			}
		}()

		<-ready

		// wait for the server to exit or for a shutdown signal
		select {
		case <-ctx.Done():
			log.Info().Msg("OS Signal to shutdown received, shutting down")
		case <-done:
			log.Info().Msg("done, shutting down")
		}

		// Wait for the server to completely stop
		<-done

		return runErr
	},
}
