// Package tui renders the live roundtable client: a discussion sidebar,
// the streaming transcript, per-agent progress, and the observer side
// panel. It is a thin projection of the controller's state; every mutation
// goes through the controller and comes back as a bus event.
package tui

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kuangren777/llm-roundtable/internal/api"
	"github.com/kuangren777/llm-roundtable/internal/config"
	"github.com/kuangren777/llm-roundtable/internal/event"
	"github.com/kuangren777/llm-roundtable/internal/logging"
	"github.com/kuangren777/llm-roundtable/internal/roundtable"
)

// App wraps the Bubbletea program
type App struct {
	program *tea.Program
	model   Model
	bus     *event.Bus
}

// New creates a new TUI application
func New(ctrl *roundtable.Controller, client *api.Client, bus *event.Bus, cfg *config.Config, log *logging.Logger) *App {
	return &App{
		model: NewModel(ctrl, client, cfg, log),
		bus:   bus,
	}
}

// Run starts the TUI application
func (a *App) Run() error {
	a.program = tea.NewProgram(
		a.model,
		tea.WithAltScreen(),
	)

	// Forward controller bus events into the update loop. The bus is
	// synchronous and the controller publishes outside its lock, so Send
	// here cannot deadlock.
	subID := a.bus.SubscribeAll(func(ev event.Event) {
		a.program.Send(stateMsg{event: ev})
	})
	defer a.bus.Unsubscribe(subID)

	// Graceful shutdown on signals so live state is flushed before exit
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		<-sigChan
		if a.program != nil {
			a.program.Send(tea.Quit())
		}
	}()

	_, err := a.program.Run()

	signal.Stop(sigChan)

	return err
}

// resolveObserverModel resolves the provider+model the observer chat
// should use: the observer_model setting when present and known, otherwise
// the first model of the first configured provider.
func resolveObserverModel(ctx context.Context, client *api.Client) roundtable.ModelSelection {
	providers, err := client.ListProviders(ctx)
	if err != nil || len(providers) == 0 {
		return roundtable.ModelSelection{}
	}

	var want string
	if setting, err := client.GetSetting(ctx, "observer_model"); err == nil && setting != nil {
		want = setting.Value
	}

	if want != "" {
		for _, p := range providers {
			for _, mdl := range p.Models {
				if mdl.Model == want {
					return roundtable.ModelSelection{
						ProviderID: p.ID,
						Provider:   p.Provider,
						Model:      mdl.Model,
					}
				}
			}
		}
	}

	for _, p := range providers {
		if len(p.Models) > 0 {
			return roundtable.ModelSelection{
				ProviderID: p.ID,
				Provider:   p.Provider,
				Model:      p.Models[0].Model,
			}
		}
	}
	return roundtable.ModelSelection{}
}
