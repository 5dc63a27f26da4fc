package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Manage LLM providers and their models",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured providers and models",
	RunE:  runProvidersList,
}

var providersAddCmd = &cobra.Command{
	Use:   "add <name> <provider>",
	Short: "Register a provider",
	Long: `Register a provider. <provider> is the backend kind (openai,
anthropic, ollama, ...); use --api-key and --base-url as the backend
requires.`,
	Args: cobra.ExactArgs(2),
	RunE: runProvidersAdd,
}

var providersRemoveCmd = &cobra.Command{
	Use:   "remove <provider-id>",
	Short: "Remove a provider and its models",
	Args:  cobra.ExactArgs(1),
	RunE:  runProvidersRemove,
}

var modelsAddCmd = &cobra.Command{
	Use:   "add-model <provider-id> <model>",
	Short: "Add a model under a provider",
	Args:  cobra.ExactArgs(2),
	RunE:  runModelsAdd,
}

var modelsRemoveCmd = &cobra.Command{
	Use:   "remove-model <provider-id> <model-id>",
	Short: "Remove a model",
	Args:  cobra.ExactArgs(2),
	RunE:  runModelsRemove,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read and write server-side settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read a setting (e.g. observer_model, summary_model)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a setting",
	Args:  cobra.ExactArgs(2),
	RunE:  runSettingsSet,
}

var (
	providerAPIKey  string
	providerBaseURL string
	modelLabel      string
)

func init() {
	providersAddCmd.Flags().StringVar(&providerAPIKey, "api-key", "", "provider API key")
	providersAddCmd.Flags().StringVar(&providerBaseURL, "base-url", "", "provider base URL (for self-hosted backends)")
	modelsAddCmd.Flags().StringVar(&modelLabel, "label", "", "display name for the model")

	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersAddCmd)
	providersCmd.AddCommand(providersRemoveCmd)
	providersCmd.AddCommand(modelsAddCmd)
	providersCmd.AddCommand(modelsRemoveCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runProvidersList(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	providers, err := client.ListProviders(cmd.Context())
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		fmt.Println("No providers configured")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tMODELS")
	for _, p := range providers {
		models := ""
		for i, m := range p.Models {
			if i > 0 {
				models += ", "
			}
			models += fmt.Sprintf("%s (%d)", m.Model, m.ID)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, p.Name, p.Provider, models)
	}
	return w.Flush()
}

func runProvidersAdd(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	p, err := client.CreateProvider(cmd.Context(), args[0], args[1], providerAPIKey, providerBaseURL)
	if err != nil {
		return err
	}
	fmt.Printf("Provider %d (%s) registered\n", p.ID, p.Name)
	return nil
}

func runProvidersRemove(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := client.DeleteProvider(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Provider %d removed\n", id)
	return nil
}

func runModelsAdd(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	providerID, err := parseID(args[0])
	if err != nil {
		return err
	}
	m, err := client.AddModel(cmd.Context(), providerID, args[1], modelLabel)
	if err != nil {
		return err
	}
	fmt.Printf("Model %d (%s) added\n", m.ID, m.Model)
	return nil
}

func runModelsRemove(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	providerID, err := parseID(args[0])
	if err != nil {
		return err
	}
	modelID, err := parseID(args[1])
	if err != nil {
		return err
	}
	if err := client.DeleteModel(cmd.Context(), providerID, modelID); err != nil {
		return err
	}
	fmt.Printf("Model %d removed\n", modelID)
	return nil
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	setting, err := client.GetSetting(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Println(setting.Value)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	client, _ := newAPIClient()
	if err := client.PutSetting(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", args[0], args[1])
	return nil
}
