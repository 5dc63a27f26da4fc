package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kuangren777/llm-roundtable/internal/util"
)

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Inspect and edit a discussion transcript",
}

var messagesListCmd = &cobra.Command{
	Use:   "list <discussion-id>",
	Short: "List the finalized messages of a discussion",
	Args:  cobra.ExactArgs(1),
	RunE:  runMessagesList,
}

var messagesEditCmd = &cobra.Command{
	Use:   "edit <discussion-id> <message-id> <content>",
	Short: "Rewrite a message and truncate everything after it",
	Long: `Rewrite one message. The server deletes every later message so the
discussion can regenerate from the edit point; pass --yes to skip the
confirmation.`,
	Args: cobra.ExactArgs(3),
	RunE: runMessagesEdit,
}

var messagesDeleteCmd = &cobra.Command{
	Use:   "delete <discussion-id> <message-id>",
	Short: "Delete one message",
	Args:  cobra.ExactArgs(2),
	RunE:  runMessagesDelete,
}

var messagesInputCmd = &cobra.Command{
	Use:   "input <discussion-id> <content>",
	Short: "Submit user input to a waiting discussion",
	Args:  cobra.ExactArgs(2),
	RunE:  runMessagesInput,
}

var editYes bool

func init() {
	messagesEditCmd.Flags().BoolVar(&editYes, "yes", false, "confirm deleting messages after the edit point")

	messagesCmd.AddCommand(messagesListCmd)
	messagesCmd.AddCommand(messagesEditCmd)
	messagesCmd.AddCommand(messagesDeleteCmd)
	messagesCmd.AddCommand(messagesInputCmd)
	rootCmd.AddCommand(messagesCmd)
}

func runMessagesList(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	detail, err := client.GetDiscussion(cmd.Context(), id)
	if err != nil {
		return err
	}

	if len(detail.Messages) == 0 {
		fmt.Println("No messages")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROUND\tAGENT\tROLE\tCONTENT")
	for _, m := range detail.Messages {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n",
			m.ID, m.RoundNumber, m.AgentName, m.AgentRole, util.Preview(m.Content, 70))
	}
	return w.Flush()
}

func runMessagesEdit(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	discussionID, err := parseID(args[0])
	if err != nil {
		return err
	}
	messageID, err := parseID(args[1])
	if err != nil {
		return err
	}

	detail, err := client.GetDiscussion(cmd.Context(), discussionID)
	if err != nil {
		return err
	}
	later := 0
	for _, m := range detail.Messages {
		if m.ID > messageID {
			later++
		}
	}
	if later > 0 && !editYes {
		return fmt.Errorf("editing message %d deletes %d later message(s); re-run with --yes", messageID, later)
	}

	if err := client.UpdateMessage(cmd.Context(), discussionID, messageID, args[2]); err != nil {
		return err
	}
	deleted, err := client.TruncateAfter(cmd.Context(), discussionID, &messageID)
	if err != nil {
		return err
	}
	fmt.Printf("Message %d updated; %d later message(s) removed\n", messageID, deleted)
	return nil
}

func runMessagesDelete(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	discussionID, err := parseID(args[0])
	if err != nil {
		return err
	}
	messageID, err := parseID(args[1])
	if err != nil {
		return err
	}
	if err := client.DeleteMessage(cmd.Context(), discussionID, messageID); err != nil {
		return err
	}
	fmt.Printf("Message %d deleted\n", messageID)
	return nil
}

func runMessagesInput(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	resp, err := client.SubmitUserInput(cmd.Context(), id, args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Input recorded as message %d. Continue with: roundtable run %d\n", resp.ID, id)
	return nil
}
