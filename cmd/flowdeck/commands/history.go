package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowdeck/flowdeck/internal/config"
	"github.com/flowdeck/flowdeck/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var since string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query recorded traffic snapshots",
		Example: `  flowdeck history
  flowdeck history --since 1h
  flowdeck history --limit 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				cfg = config.Defaults()
			}

			logger := newLogger("error")
			store, err := history.NewStore(cfg.History.Path, cfg.History.RetentionDays, logger)
			if err != nil {
				return fmt.Errorf("opening history db: %w", err)
			}
			defer func() { _ = store.Close() }()

			var sinceTime string
			if since != "" {
				dur, err := time.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", since, err)
				}
				sinceTime = time.Now().Add(-dur).UTC().Format(time.RFC3339)
			}

			sums, err := store.Query(history.QueryOpts{Since: sinceTime, Limit: limit})
			if err != nil {
				return err
			}
			if len(sums) == 0 {
				fmt.Println("no snapshots recorded")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RECEIVED\tCONNS\tRULES\tCHAINS\tUP\tDOWN")
			for _, s := range sums {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
					s.ReceivedAt, s.Connections, s.DistinctRules, s.DistinctChains,
					s.UploadTotal, s.DownloadTotal)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "only snapshots newer than this duration (e.g. 1h)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (default 50)")
	return cmd
}
