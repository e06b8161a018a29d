package cli

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/scribe/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol; logs go to stderr
		obs := newObserver(cmd.ErrOrStderr())
		defer obs.Close()

		runner, cleanup, err := setupRunner(cmd.Context(), obs)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := runner.Build(cmd.Context()); err != nil {
			return err
		}

		srv := mcp.NewServer(runner, runner.Memory(), runner.Guard(), obs).WithTools(runner.Tools())
		return srv.Serve(Version)
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&providerType, "provider", "p", "", "Model provider (mock, stub, gemini, openai, anthropic, ollama, cli)")
	serveCmd.Flags().StringVarP(&modelName, "model", "m", "", "Model name (default depends on provider)")
	serveCmd.Flags().StringVar(&memoryPath, "memory", "", "Memory store path")
}
