package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/martinemde/metagent/controller"
	"github.com/martinemde/metagent/engine"
	"github.com/martinemde/metagent/memstore"
)

var (
	flagServer     string
	flagProvider   string
	flagModel      string
	flagSteps      int
	flagNoThinking bool
	flagMemoryPath string
	flagNoMemory   bool
	flagVerbose    bool
	flagWorkingDir string
	flagOllamaHost string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "metagent [objective]",
	Short: "Adaptive self-extending agent with step budgets and cross-session memory",
	Long: `metagent drives an LLM agent toward an objective under a fixed step
budget. The agent adapts its strategy to the remaining budget, extends its
own capabilities at runtime, delegates to sub-agent swarms, and carries
knowledge across sessions through a persistent local memory store.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if flagVerbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runObjective,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagServer, "server", "remote", "inference backend: remote or local (ollama)")
	flags.StringVar(&flagProvider, "provider", "anthropic", "remote provider: anthropic or openai")
	flags.StringVar(&flagModel, "model", "", "model identifier (default: provider's catalog default)")
	flags.IntVar(&flagSteps, "steps", 10, "step budget for the session")
	flags.BoolVar(&flagNoThinking, "no-thinking", false, "disable interleaved thinking on supported models")
	flags.StringVar(&flagMemoryPath, "memory-path", "", "directory for the memory store (default: ~/.metagent/memory)")
	flags.BoolVar(&flagNoMemory, "no-memory", false, "disable the cross-session memory system")
	flags.StringVar(&flagWorkingDir, "workdir", "", "working directory for shell and editor capabilities")
	flags.StringVar(&flagOllamaHost, "ollama-host", "", "ollama base URL for --server local")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	viper.SetEnvPrefix("METAGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, name := range []string{"server", "provider", "model", "steps", "memory-path", "ollama-host"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func defaultMemoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".metagent", "memory")
	}
	return filepath.Join(home, ".metagent", "memory")
}

func resolveProvider(backend controller.BackendMode) string {
	if backend == controller.BackendLocal {
		return "ollama"
	}
	return viper.GetString("provider")
}

func runObjective(cmd *cobra.Command, args []string) error {
	objective := args[0]
	backend := controller.ParseBackendMode(viper.GetString("server"))
	provider := resolveProvider(backend)

	eng, err := engine.NewGollmEngine(engine.Config{
		Provider:   provider,
		Model:      viper.GetString("model"),
		Thinking:   !flagNoThinking,
		OllamaHost: viper.GetString("ollama-host"),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	var store controller.MemoryStore
	if !flagNoMemory {
		path := viper.GetString("memory-path")
		if path == "" {
			path = defaultMemoryPath()
		}
		bs, err := memstore.Open(memstore.Config{Path: path})
		if err != nil {
			return fmt.Errorf("open memory store: %w", err)
		}
		defer bs.Close()
		store = bs
	}

	env := controller.NewLocalExecutionEnvironment(flagWorkingDir)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := controller.NewSession(ctx, objective, eng, env, store, &controller.SessionConfig{
		MaxSteps: viper.GetInt("steps"),
		Backend:  backend,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer session.Close()

	if flagVerbose {
		go func() {
			for ev := range session.Events() {
				logger.Debug("session event",
					zap.String("kind", string(ev.Kind)),
					zap.Any("data", ev.Data))
			}
		}()
	}

	printBanner(session, eng, backend)

	result, err := session.Run(ctx, "")
	summary := session.Summary()

	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "\nInterrupted.")
		printSummary(summary)
		return errInterrupted
	}
	if err != nil {
		printSummary(summary)
		return fmt.Errorf("session failed: %w", err)
	}

	printResult(result, summary)
	return nil
}

// errInterrupted marks a SIGINT/SIGTERM exit so main can map it to exit
// code 1 without printing a second error line.
var errInterrupted = errors.New("interrupted")

func printBanner(session *controller.Session, eng *engine.GollmEngine, backend controller.BackendMode) {
	summary := session.Summary()
	fmt.Println("=== metagent ===")
	fmt.Printf("Objective: %s\n", summary.Objective)
	fmt.Printf("Backend:   %s (%s / %s)\n", backend, eng.Provider(), eng.Model())
	fmt.Printf("Budget:    %d steps\n", summary.MaxSteps)
	fmt.Printf("Session:   %s\n", summary.SessionID)
	fmt.Println()
}

func printResult(result *engine.TurnResult, summary controller.SessionSummary) {
	fmt.Println("\n=== Result ===")
	if result != nil && result.Text != "" {
		fmt.Println(result.Text)
	}
	printSummary(summary)
}

func printSummary(summary controller.SessionSummary) {
	fmt.Println("\n=== Execution Summary ===")
	fmt.Printf("Steps:          %d/%d\n", summary.StepsTaken, summary.MaxSteps)
	fmt.Printf("State:          %s\n", summary.State)
	if summary.CompletionReason != "" {
		fmt.Printf("Stop reason:    %s\n", summary.CompletionReason)
	}
	if len(summary.ToolsCreated) > 0 {
		fmt.Printf("Tools created:  %s\n", strings.Join(summary.ToolsCreated, ", "))
	}
	if len(summary.AgentsSpawned) > 0 {
		fmt.Printf("Agents spawned: %d\n", len(summary.AgentsSpawned))
	}
	if summary.MemoryWrites > 0 {
		fmt.Printf("Memory writes:  %d\n", summary.MemoryWrites)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errInterrupted) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
