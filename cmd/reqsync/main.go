package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"reqsync/internal/config"
	"reqsync/internal/generate"
	"reqsync/internal/pipeline"
)

var (
	rootCmd = &cobra.Command{
		Use:   "reqsync",
		Short: "Requirement-driven design and code synchronization engine",
	}
	configPath string
	bindFlags  []string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the project configuration")

	runCmd.Flags().StringArrayVar(&bindFlags, "bind", nil, "Pin an intent to a target for a re-run, as INT-001=SymbolName (repeatable)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
}

func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// newGenerator builds the configured patch generator. Only `run` needs one;
// scan and plan never call the model.
func newGenerator(ctx context.Context, cfg *config.Config) generate.Generator {
	switch cfg.AI.Provider {
	case "gemini":
		if cfg.AI.APIKey == "" {
			log.Fatal("Gemini API key is required (set REQSYNC_API_KEY or ai.api_key in config.yaml)")
		}
		gen, err := generate.NewGeminiGenerator(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			log.Fatalf("Failed to create generator: %v", err)
		}
		return gen
	default:
		log.Fatalf("Unsupported AI provider: %s", cfg.AI.Provider)
		return nil
	}
}

func parseBindings(flags []string) []pipeline.Disambiguation {
	var bindings []pipeline.Disambiguation
	for _, flag := range flags {
		parts := strings.SplitN(flag, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			log.Fatalf("Invalid --bind value %q, expected INT-001=SymbolName", flag)
		}
		bindings = append(bindings, pipeline.Disambiguation{IntentID: parts[0], Target: parts[1]})
	}
	return bindings
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Build the code/design index and traceability graph and cache them",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := context.Background()

		fmt.Printf("📂 Scanning %s against %s...\n", cfg.Project.CodeRoot, cfg.Project.DesignDoc)
		p := pipeline.New(cfg, nil)
		if _, err := p.Scan(ctx); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		fmt.Printf("🎉 Scan complete! Cache: %s\n", cfg.Project.CachePath)
	},
}

var runCmd = &cobra.Command{
	Use:   "run <change-file>",
	Short: "Interpret a requirement change and update design and code to match",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := context.Background()

		p := pipeline.New(cfg, newGenerator(ctx, cfg))
		res, err := p.Run(ctx, args[0], parseBindings(bindFlags))
		if err != nil {
			log.Fatalf("Run %s ended %s: %v", res.RunID, res.State, err)
		}

		fmt.Printf("🏁 Run %s finished: %s\n", res.RunID, res.State)
		if res.ReportPath != "" {
			fmt.Printf("  -> Report: %s\n", res.ReportPath)
		}
		if res.TestSpecPath != "" {
			fmt.Printf("  -> Test specification: %s\n", res.TestSpecPath)
		}
		if res.DeployPath != "" {
			fmt.Printf("  -> Deployment plan: %s\n", res.DeployPath)
		}
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <change-file>",
	Short: "Dry run: interpret intents and resolve impact, write nothing",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := context.Background()

		p := pipeline.New(cfg, nil)
		res, err := p.Plan(ctx, args[0])
		if err != nil {
			log.Fatalf("Plan failed: %v", err)
		}

		fmt.Printf("🧭 %d intents:\n", len(res.Intents))
		for _, ci := range res.Intents {
			fmt.Printf("  %s [%s] %s\n", ci.ID, ci.Kind, ci.Rationale)
		}
		for _, set := range res.Sets {
			fmt.Printf("🔍 %s touches %d design sections, %d symbols\n", set.Intent.ID, len(set.NodeIDs), len(set.SymbolIDs))
		}
	},
}
