package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/rerouter/pkg/config"
	"github.com/devicelab-dev/rerouter/pkg/journal"
)

var statsCommand = &cli.Command{
	Name:  "stats",
	Usage: "Summarize the run journal",
	Description: `Print route hit counts, most frequent first, event counts by kind and
optionally the latest events.

Examples:
  rerouter stats
  rerouter stats --journal runs/journal.db --recent 20`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "journal",
			Usage: "Journal database path (default: config journal.path or <home>/journal.db)",
		},
		&cli.IntFlag{
			Name:  "recent",
			Usage: "Also print the N most recent events",
		},
	},
	Action: runStats,
}

func journalPath(c *cli.Context) (string, error) {
	if p := c.String("journal"); p != "" {
		return p, nil
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return "", err
	}
	if p := cfg.JournalPath(); p != "" {
		return p, nil
	}
	return config.GetJournalPath(), nil
}

func runStats(c *cli.Context) error {
	path, err := journalPath(c)
	if err != nil {
		return err
	}
	j, err := journal.Open(path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	stats, err := j.RouteStats()
	if err != nil {
		return err
	}
	counts, err := j.CountByKind()
	if err != nil {
		return err
	}
	w := c.App.Writer
	printStats(w, stats, counts)

	if n := c.Int("recent"); n > 0 {
		events, err := j.Events(n)
		if err != nil {
			return err
		}
		printEvents(w, events)
	}
	return nil
}

func printStats(w io.Writer, stats []journal.RouteStat, counts map[journal.Kind]int) {
	fmt.Fprintln(w, paint(ansiBold, "Routes"))
	if len(stats) == 0 {
		fmt.Fprintln(w, "  "+paint(ansiGray, "(no matches recorded)"))
	}
	for _, s := range stats {
		fmt.Fprintf(w, "  %6d  %-32s %s\n", s.Hits, s.Path, paint(ansiGray, s.LastSeen.Format("2006-01-02 15:04:05")))
	}

	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	fmt.Fprintln(w, "\n"+paint(ansiBold, "Events"))
	for _, k := range kinds {
		fmt.Fprintf(w, "  %6d  %s\n", counts[journal.Kind(k)], k)
	}
}

func printEvents(w io.Writer, events []journal.Event) {
	fmt.Fprintln(w, "\n"+paint(ansiBold, "Recent"))
	for _, e := range events {
		line := fmt.Sprintf("  %s  %-8s %-16s %s", e.At.Format("15:04:05"), e.Kind, e.Task, e.Path)
		if len(e.Pages) > 0 {
			line += " [" + strings.Join(e.Pages, ", ") + "]"
		}
		if e.Detail != "" {
			line += " " + paint(ansiGray, e.Detail)
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}
