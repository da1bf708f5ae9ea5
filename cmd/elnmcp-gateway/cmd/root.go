// Package cmd provides the CLI commands for the ELN MCP gateway.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/elnmcp/gateway/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "elnmcp-gateway",
	Short: "MCP server bridging AI clients to an Electronic Lab Notebook API",
	Long: `elnmcp-gateway is a Model Context Protocol server. It accepts JSON-RPC
2.0 requests over stdio from an AI client, authenticates to an Electronic
Lab Notebook (ELN) REST API, discovers and retrieves notebook/page/entry
resources, enforces the configured scope boundary, and returns
MCP-compliant resource representations. All upstream operations are
read-only.

Quick start:
  1. Create a config file: elnmcp-gateway.yaml
  2. Run: elnmcp-gateway serve

Configuration:
  Config is loaded from elnmcp-gateway.yaml in the current directory,
  $HOME/.elnmcp-gateway/, or /etc/elnmcp-gateway/.

  Environment variables override config values with the ELNMCP_ prefix,
  e.g. ELNMCP_AUTH_ACCESS_PASSWORD. The access password / SSO token is
  never read from the config file — only from the environment or, if
  auth.access_password_hash is set, verified against that hash.

Commands:
  serve         Run the MCP server, serving JSON-RPC over stdio
  hash-secret   Generate an Argon2id hash of an ELN secret for at-rest storage
  version       Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./elnmcp-gateway.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
