package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chklst/deploysync/internal/logging"
	"github.com/chklst/deploysync/internal/session"
	"github.com/chklst/deploysync/internal/toast"
	"github.com/chklst/deploysync/internal/transport"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print push events as they arrive",
	Long: `Connect to the push channel, keep the caches in sync and print every
event, connection change and notification. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := logging.NewTo(os.Stderr, cfg.LogLevel)

		sess, err := session.New(cfg, logger, nil)
		if err != nil {
			return err
		}
		sess.Relay.Subscribe("watch", displayEvent)
		sess.Channel.OnStateChange(displayState)
		sess.Toasts.OnChange(displayToast)

		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("%s watching %s\n", yellow("👀"), sess.Channel.Endpoint())

		err = sess.Run(cmd.Context())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func displayState(state transport.State) {
	c := color.New(color.FgYellow)
	switch state {
	case transport.StateConnected:
		c = color.New(color.FgGreen)
	case transport.StateDisconnected:
		c = color.New(color.FgRed)
	}
	fmt.Printf("%s channel %s\n", c.Sprint("●"), state)
}

func displayToast(state toast.State) {
	if !state.Visible {
		return
	}
	fmt.Println(formatToast(state))
}
