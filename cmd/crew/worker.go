package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/crew/config"
	"github.com/mohammad-safakhou/crew/internal/worker"
	"github.com/mohammad-safakhou/crew/provider"
)

// workerCMD starts the reference direct-answer worker. It exists so a
// deployment has at least one dispatchable agent out of the box; real
// workers are separate services built on the same scaffold.
func workerCMD() *cobra.Command {
	var addr string
	var name string
	var capToken string
	var cfgPath string
	var w = &cobra.Command{
		Use:   "worker",
		Short: "Run the direct-answer worker agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			llmProvider, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}
			model := cfg.LLM.Routing.Answering
			if model == "" {
				model = cfg.LLM.Routing.Fallback
			}
			if model == "" {
				return fmt.Errorf("no answering model configured (llm.routing.answering or llm.routing.fallback)")
			}

			svc := worker.NewService(name, []string{capToken}, worker.DirectAnswer(llmProvider, model, capToken))
			return svc.Run(addr)
		},
	}
	w.Flags().StringVar(&addr, "addr", ":8003", "listen address")
	w.Flags().StringVar(&name, "name", "DirectAnswer", "agent name advertised to discovery")
	w.Flags().StringVar(&capToken, "capability", "direct_answer", "capability token this worker claims")
	w.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return w
}
