package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/kuangren777/llm-roundtable/internal/stream"
)

var runCmd = &cobra.Command{
	Use:   "run <discussion-id>",
	Short: "Run a discussion and follow its stream in the terminal",
	Long: `Run a discussion headlessly: attach its live event stream and print
phases and messages to stdout until the run finishes. Useful for
scripting; use 'roundtable open' for the interactive view.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var runSingleRound bool

func init() {
	runCmd.Flags().BoolVar(&runSingleRound, "single-round", false, "pause for user input after one round")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	client, cfg := newAPIClient()
	log := newLogger(cfg)
	defer func() { _ = log.Close() }()

	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	var streamErr error
	req := client.RunRequest(id, runSingleRound)
	out := cmd.OutOrStdout()

	h := stream.Open(cmd.Context(), &http.Client{}, stream.Request(req), stream.Options{
		Terminal: []string{stream.EventComplete, stream.EventCycleComplete},
		OnEvent: func(ev stream.Event) {
			switch ev.Type {
			case stream.EventPhaseChange:
				fmt.Fprintf(out, "\n== %s ==\n", ev.Phase)
			case stream.EventMessage:
				fmt.Fprintf(out, "\n[%s] %s\n", ev.AgentName, ev.Content)
			}
		},
		OnError: func(err error) {
			streamErr = err
		},
		OnComplete: func(ev stream.Event) {
			if ev.Type == stream.EventCycleComplete {
				fmt.Fprintf(out, "\nRound finished; discussion %d is waiting for input\n", id)
			} else {
				fmt.Fprintf(out, "\nDiscussion %d completed\n", id)
			}
		},
	})
	defer h.Cancel()

	<-h.Done()
	if streamErr != nil {
		return fmt.Errorf("discussion %d failed: %w", id, streamErr)
	}
	return nil
}
