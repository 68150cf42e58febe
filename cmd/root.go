package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentforge/taskrunner/cmd/server"
)

// rootCmd represents the base command when called without any
// subcommands. Trimmed from the teacher's multi-server MCP CLI (its mcp/
// testing command groups have no equivalent operation in this spec) down
// to the one thing this engine does: serve the task orchestration HTTP
// surface named in spec §6.
var rootCmd = &cobra.Command{
	Use:   "taskrunner",
	Short: "Task orchestration engine for LLM-driven code-execution agents",
	Long: `taskrunner drives a bounded, multi-stage workflow that asks an LLM to
plan, generate code, execute it inside an isolated sandbox, observe the
results, and iterate until a task completes, fails, or is abandoned.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Run()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().String("listen-addr", "", "HTTP listen address")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("listen_addr", rootCmd.PersistentFlags().Lookup("listen-addr"))

	rootCmd.AddCommand(server.ServerCmd)
}

// initConfig mirrors the teacher's dotenv-then-AutomaticEnv order; the
// actual per-field loading and defaulting lives in internal/config.Load,
// called once server.Run starts.
func initConfig() {
	viper.AutomaticEnv()
	if viper.GetString("log_level") == "" {
		fmt.Fprintln(os.Stderr, "no --log-level set, falling back to LOG_LEVEL / default")
	}
}
