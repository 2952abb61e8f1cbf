package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rahul/conductor/internal/observability"
	"github.com/rahul/conductor/internal/orchestrator"
	"github.com/rahul/conductor/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, the scheduler and the chat gateways",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func serve(cmd *cobra.Command, args []string) error {
	if !noBanner {
		observability.PrintBanner(os.Stdout)
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	notifiers, tg := a.notifiers()
	var messenger orchestrator.Messenger
	if len(notifiers) > 0 {
		messenger = notifiers
	}
	scheduler := orchestrator.NewScheduler(a.orch, a.runs, messenger, a.logger, a.cfg.Store.ScheduleInterval.Duration)
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Start(ctx)
	}()
	// Runs started by the scheduler must finish before the store and browser close.
	defer func() {
		cancel()
		<-schedulerDone
	}()

	if tg != nil {
		telegramDone := make(chan struct{})
		go func() {
			defer close(telegramDone)
			if err := tg.Start(ctx); err != nil {
				log.Printf("\033[91m[ FAIL ] TELEGRAM GATEWAY ERROR: %v\033[0m", err)
			}
		}()
		defer func() {
			cancel()
			tg.Stop()
			<-telegramDone
		}()
	}

	var jira server.IssueFetcher
	if a.cfg.Jira.BaseURL != "" {
		client, err := a.jiraClient()
		if err != nil {
			log.Printf("Warning: jira disabled: %v", err)
		} else {
			jira = client
		}
	}

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr: addr,
		Handler: server.New(a.orch, a.runs, jira, server.Options{
			AuthToken:      a.cfg.Server.AuthToken,
			MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
			FeaturesDir:    a.cfg.Jira.FeaturesDir,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: HTTP shutdown: %v", err)
	}
	log.Println("\033[95m[ EXIT ] CONDUCTOR STOPPED. GOODBYE.\033[0m")
	return nil
}
