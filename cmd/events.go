/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/userauth/apiserver/config"
	"github.com/userauth/apiserver/internal/events"
	"github.com/userauth/apiserver/internal/logging"
	"github.com/userauth/apiserver/internal/mq"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect account events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log user.registered events as they arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New("authsrv-events", cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.Events)
		if err != nil {
			return err
		}
		if queue == nil {
			return fmt.Errorf("EVENTS_BACKEND is %q; nothing to tail", cfg.Events.Backend)
		}
		defer queue.Close()

		logger.Info("tailing events", "backend", cfg.Events.Backend, "topic", cfg.Events.Topic)
		err = queue.Subscribe(ctx, cfg.Events.Topic, func(ctx context.Context, msg mq.Message) error {
			ev, err := events.Decode(msg)
			if err != nil {
				logger.Warn("dropping undecodable event", "message_id", msg.ID, "error", err)
				return nil
			}
			logger.Info("user registered", "message_id", msg.ID, "published_at", msg.PublishedAt, "user_id", ev.ID, "email", ev.Email)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
