package main

import (
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	apiclient "github.com/prodline/tracker/internal/client"
	"github.com/prodline/tracker/internal/engine"
	"github.com/prodline/tracker/internal/sessionstore"
	"github.com/prodline/tracker/internal/tui"
)

func newClientCmd(configPath *string) *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run the operator terminal client",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			if serverURL != "" {
				cfg.Client.ServerURL = serverURL
			}

			// The TUI owns the terminal, so logs go to a file in the
			// state directory.
			logFile, err := os.OpenFile(filepath.Join(cfg.Client.StateDirectory, "client.log"),
				os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return err
			}
			defer logFile.Close()
			logger := newLogger(cfg, logFile)

			repo, err := sessionstore.NewFileStore(cfg.Client.StateDirectory)
			if err != nil {
				return err
			}
			backend := apiclient.New(cfg.Client.ServerURL)

			clock := engine.NewFeedClock(engine.SystemClock{})
			feed := apiclient.NewWSClockFeed(cfg.Client.ServerURL, clock, logger)
			feed.Interval = cfg.FeedInterval()

			bridge := &tui.PromptBridge{}
			eng := engine.New(engine.Config{
				CountdownDuration: cfg.PopupCountdown(),
				PopupInterval:     cfg.PopupInterval(),
				LockTTL:           cfg.LockTTL(),
				SubmitTimeout:     cfg.SubmitTimeout(),
			}, engine.Deps{
				Clock:     clock,
				Repo:      repo,
				Submitter: backend,
				Locks:     backend,
				Prompts:   bridge,
				Logger:    logger,
			})

			model := tui.NewModel(eng, backend)
			p := tea.NewProgram(model, tea.WithAltScreen())
			bridge.SetProgram(p)

			// One tick source drives both the engine schedule and the
			// UI redraw; the model forwards each beat to the engine.
			cancel := feed.Subscribe(func(now time.Time) {
				p.Send(tui.MsgTick{Now: now})
			})
			defer cancel()
			defer eng.Stop()

			logger.Info().
				Str("server", cfg.Client.ServerURL).
				Str("stateDir", cfg.Client.StateDirectory).
				Msg("tracker client starting")

			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "backend base URL (overrides config)")
	return cmd
}
