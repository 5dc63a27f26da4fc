package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kuangren777/llm-roundtable/internal/api"
	"github.com/kuangren777/llm-roundtable/internal/event"
	"github.com/kuangren777/llm-roundtable/internal/livestate"
	"github.com/kuangren777/llm-roundtable/internal/roundtable"
	"github.com/kuangren777/llm-roundtable/internal/tui"
)

var openCmd = &cobra.Command{
	Use:   "open [discussion-id|share-code]",
	Short: "Open the interactive TUI",
	Long: `Open the interactive TUI, optionally jumping straight into one
discussion. The argument is a numeric discussion id or a share code.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
	client, cfg := newAPIClient()
	log := newLogger(cfg)
	defer func() { _ = log.Close() }()

	stateDir := cfg.Paths.ResolveStateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	bus := event.NewBus()
	live := livestate.NewStore(stateDir)
	ctrl := roundtable.NewController(client, bus, live,
		roundtable.WithLogger(log),
		roundtable.WithPollInterval(cfg.Server.PollInterval()),
		roundtable.WithSummaryCooldowns(cfg.Summary.ErrorCooldown(), cfg.Summary.RunningCooldown()),
	)

	if len(args) == 1 {
		id, err := resolveDiscussionArg(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		if err := ctrl.Select(cmd.Context(), id); err != nil {
			return fmt.Errorf("opening discussion %d: %w", id, err)
		}
	}

	return tui.New(ctrl, client, bus, cfg, log).Run()
}

// resolveDiscussionArg turns a CLI argument into a discussion id: numeric
// arguments are ids, anything else is tried as a share code.
func resolveDiscussionArg(ctx context.Context, client *api.Client, arg string) (int, error) {
	if id, err := strconv.Atoi(arg); err == nil {
		return id, nil
	}
	d, err := client.GetDiscussionByCode(ctx, arg)
	if err != nil {
		return 0, fmt.Errorf("resolving share code %q: %w", arg, err)
	}
	return d.ID, nil
}
