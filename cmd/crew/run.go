package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/crew/config"
	"github.com/mohammad-safakhou/crew/internal/capability"
	"github.com/mohammad-safakhou/crew/internal/dispatch"
	"github.com/mohammad-safakhou/crew/internal/supervisor"
	"github.com/mohammad-safakhou/crew/internal/telemetry"
	"github.com/mohammad-safakhou/crew/provider"
)

// runCMD executes a single request end to end from the command line,
// without the HTTP server or any storage.
func runCMD() *cobra.Command {
	var cfgPath string
	var run = &cobra.Command{
		Use:   "run [request]",
		Short: "Process one request and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			request := strings.Join(args, " ")
			ctx := context.Background()

			fallback := make(map[string]capability.Metadata, len(cfg.Discovery.Fallback))
			for port, entry := range cfg.Discovery.Fallback {
				fallback[port] = capability.Metadata{AgentName: entry.AgentName, Capabilities: entry.Capabilities}
			}
			discoverer := capability.NewDiscoverer(cfg.Discovery.Endpoints, fallback, cfg.Discovery.ProbeTimeout, nil)
			directory := discoverer.Discover(ctx)

			llmProvider, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}

			tele := telemetry.NewTelemetry(cfg.Telemetry)
			planner := supervisor.NewPlanner(llmProvider, cfg.LLM.Routing, tele, nil)
			dispatcher := dispatch.NewDispatcher(cfg.Supervisor.DispatchTimeout, nil)
			sup := supervisor.New(directory, planner, dispatcher, tele, cfg.Supervisor, nil)

			result, err := sup.Process(ctx, request, func(ev supervisor.StepEvent) {
				if ev.Error != "" {
					fmt.Printf("cycle %d: %s -> %s: %s\n", ev.Cycle, ev.Step, ev.Agent, ev.Error)
					return
				}
				fmt.Printf("cycle %d: %s -> %s (advanced=%t)\n", ev.Cycle, ev.Step, ev.Agent, ev.Advanced)
			})
			if err != nil {
				return err
			}

			if len(result.Plan) > 0 {
				fmt.Printf("plan: %v\n", result.Plan)
			}
			fmt.Println()
			fmt.Println(result.Answer)
			tele.Shutdown()
			return nil
		},
	}
	run.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return run
}
