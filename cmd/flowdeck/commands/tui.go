package commands

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/flowdeck/flowdeck/internal/config"
	"github.com/flowdeck/flowdeck/internal/metrics"
	"github.com/flowdeck/flowdeck/internal/traffic"
	"github.com/flowdeck/flowdeck/internal/tui"
)

func newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Watch live connections in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("tui requires an interactive terminal")
			}

			cfg, err := config.Load(cfgFile)
			if err != nil {
				cfg = config.Defaults()
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger("error") // keep the screen clean
			tracker := traffic.NewTracker(metrics.New(), logger)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			feed := traffic.NewFeed(cfg.Feed.RedisAddr, cfg.Feed.Channel, tracker, logger)
			defer func() { _ = feed.Close() }()
			go func() { _ = feed.Run(ctx) }()

			model := tui.New(tracker, []string{"connections", "flow"})
			_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
			return err
		},
	}
}
