package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	bt "github.com/joeycumines/go-behaviortree"
	"github.com/spf13/cobra"

	"example.com/bt-fleet/internal/agent/behavior"
	"example.com/bt-fleet/internal/agent/behavior/btadapt"
	"example.com/bt-fleet/internal/miner"
	"example.com/bt-fleet/internal/scenario"
)

type runOptions struct {
	ticks    int
	interval time.Duration
	scenario string
	verbose  bool
}

var flags runOptions

var rootCmd = &cobra.Command{
	Use:   "miner",
	Short: "Run the gold miner tree locally",
	Long: `Runs the gold miner behavior tree without a broker or a controller.

The rendered tree is printed before the first tick and a summary of the
miner's state after the last one. With --scenario the miner parameters
and tick interval are read from a scenario YAML file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), cmd.OutOrStdout(), flags)
	},
}

func init() {
	rootCmd.Flags().IntVar(&flags.ticks, "ticks", 100, "number of ticks to run")
	rootCmd.Flags().DurationVar(&flags.interval, "interval", 0, "time between ticks (0 ticks as fast as possible)")
	rootCmd.Flags().StringVar(&flags.scenario, "scenario", "", "scenario YAML file with miner parameters")
	rootCmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "log the miner's chatter to stderr")
}

// errEnough stops the ticker once the requested ticks have run.
var errEnough = errors.New("tick budget reached")

func run(ctx context.Context, out io.Writer, opts runOptions) error {
	if opts.ticks <= 0 {
		return fmt.Errorf("--ticks must be positive, got %d", opts.ticks)
	}
	if opts.interval < 0 {
		return fmt.Errorf("--interval must not be negative, got %s", opts.interval)
	}

	params := miner.DefaultParams()
	interval := opts.interval
	if opts.scenario != "" {
		spec, err := scenario.LoadFile(opts.scenario)
		if err != nil {
			return err
		}
		params = spec.Miner
		if interval == 0 && spec.TickIntervalMS > 0 {
			interval = time.Duration(spec.TickIntervalMS) * time.Millisecond
		}
	}

	var logger *log.Logger
	if opts.verbose {
		logger = log.New(os.Stderr, "[miner] ", log.Ltime)
	}
	m := miner.New(params, logger)
	root := m.Tree()

	fmt.Fprintln(out, behavior.Render(root))

	start := time.Now()
	ticked, err := drive(ctx, btadapt.ToBT(root), opts.ticks, interval)
	last := root.Status()
	if last == behavior.Running {
		root.Abort()
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, summary(m, ticked, last, time.Since(start)))
	return nil
}

// drive ticks node up to n times, on a bt.Ticker when interval is positive.
// A cancelled ctx ends the run early without an error.
func drive(ctx context.Context, node bt.Node, n int, interval time.Duration) (int, error) {
	var ticked int
	counted := bt.New(func(children []bt.Node) (bt.Status, error) {
		status, err := children[0].Tick()
		if err != nil {
			return status, err
		}
		ticked++
		if ticked >= n {
			return status, errEnough
		}
		return status, nil
	}, node)

	if interval <= 0 {
		for ctx.Err() == nil {
			if _, err := counted.Tick(); err != nil {
				if errors.Is(err, errEnough) {
					break
				}
				return ticked, err
			}
		}
		return ticked, nil
	}

	ticker := bt.NewTicker(ctx, interval, counted)
	<-ticker.Done()
	if err := ticker.Err(); err != nil && !errors.Is(err, errEnough) && ctx.Err() == nil {
		return ticked, err
	}
	return ticked, nil
}

func summary(m *miner.Miner, ticks int, last behavior.Status, elapsed time.Duration) string {
	stats := m.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "%s ticks in %s, last status %s\n", humanize.Comma(int64(ticks)), elapsed.Round(time.Millisecond), last)
	fmt.Fprintf(&b, "location: %v\n", stats["location"])
	for _, key := range []string{"bank", "pockets", "thirst", "nuggets", "deposits", "drinks", "naps"} {
		n, _ := stats[key].(int)
		fmt.Fprintf(&b, "%s: %s\n", key, humanize.Comma(int64(n)))
	}
	return strings.TrimRight(b.String(), "\n")
}
