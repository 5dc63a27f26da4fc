package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kuangren777/llm-roundtable/internal/api"
	"github.com/kuangren777/llm-roundtable/internal/util"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List discussions",
	RunE:  runList,
}

var newCmd = &cobra.Command{
	Use:   "new <topic>",
	Short: "Create a discussion",
	Long: `Create a discussion around a topic. The server assembles the agent
panel on first run; use --mode and --rounds to shape the workflow.`,
	Args: cobra.ExactArgs(1),
	RunE: runNew,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <discussion-id>",
	Short: "Delete a discussion",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var stopCmd = &cobra.Command{
	Use:   "stop <discussion-id>",
	Short: "Stop a running discussion after its current phase",
	Args:  cobra.ExactArgs(1),
	RunE:  runStop,
}

var resetCmd = &cobra.Command{
	Use:   "reset <discussion-id>",
	Short: "Reset a discussion to its initial state",
	Args:  cobra.ExactArgs(1),
	RunE:  runReset,
}

var completeCmd = &cobra.Command{
	Use:   "complete <discussion-id>",
	Short: "Mark a discussion completed without further rounds",
	Args:  cobra.ExactArgs(1),
	RunE:  runComplete,
}

var titleCmd = &cobra.Command{
	Use:   "title <discussion-id>",
	Short: "Generate a title for a discussion",
	Args:  cobra.ExactArgs(1),
	RunE:  runTitle,
}

var materialsCmd = &cobra.Command{
	Use:   "materials <discussion-id>",
	Short: "List uploaded materials for a discussion",
	Args:  cobra.ExactArgs(1),
	RunE:  runMaterials,
}

var (
	newMode   string
	newRounds int
)

func init() {
	newCmd.Flags().StringVar(&newMode, "mode", "", "discussion mode (auto, debate, brainstorm, sequential, custom)")
	newCmd.Flags().IntVar(&newRounds, "rounds", 0, "maximum rounds (0 = server default)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(titleCmd)
	rootCmd.AddCommand(materialsCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	discussions, err := client.ListDiscussions(cmd.Context())
	if err != nil {
		return err
	}

	if len(discussions) == 0 {
		fmt.Println("No discussions. Create one with: roundtable new <topic>")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tROUND\tTOPIC")
	for _, d := range discussions {
		label := d.Title
		if label == "" {
			label = d.Topic
		}
		fmt.Fprintf(w, "%d\t%s\t%d/%d\t%s\n",
			d.ID, d.Status, d.CurrentRound, d.MaxRounds, util.Preview(label, 60))
	}
	return w.Flush()
}

func runNew(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	req := api.CreateDiscussionRequest{
		Topic:     args[0],
		Mode:      api.DiscussionMode(newMode),
		MaxRounds: newRounds,
	}
	d, err := client.CreateDiscussion(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Printf("Created discussion %d. Open it with: roundtable open %d\n", d.ID, d.ID)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := client.DeleteDiscussion(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Deleted discussion %d\n", id)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := client.StopDiscussion(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Discussion %d will pause after its current phase\n", id)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := client.ResetDiscussion(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Discussion %d reset\n", id)
	return nil
}

func runComplete(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := client.CompleteDiscussion(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Discussion %d completed\n", id)
	return nil
}

func runTitle(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	title, err := client.GenerateTitle(cmd.Context(), id)
	if err != nil {
		return err
	}
	fmt.Println(title)
	return nil
}

func runMaterials(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	materials, err := client.ListMaterials(cmd.Context(), id)
	if err != nil {
		return err
	}
	if len(materials) == 0 {
		fmt.Println("No materials")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tFILENAME")
	for _, m := range materials {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.ID, m.FileType, m.Status, m.Filename)
	}
	return w.Flush()
}

// parseID parses a numeric CLI argument.
func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}
