package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverAddr   string
	authToken    string
	outputFormat string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pmicdash",
		Short: "PMIC rail control dashboard",
		Long: `pmicdash serves a dashboard for a simulated power management IC and
controls a running dashboard from the command line.`,
		SilenceUsage: true,
	}

	// Get defaults from env vars if set
	defaultAddr := "http://localhost:8080"
	if envAddr := os.Getenv("PMICDASH_SERVER"); envAddr != "" {
		defaultAddr = envAddr
	}

	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultAddr, "Dashboard server address (env: PMICDASH_SERVER)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("PMICDASH_TOKEN"), "API bearer token (env: PMICDASH_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(enableCmd(true))
	rootCmd.AddCommand(enableCmd(false))
	rootCmd.AddCommand(railCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(suggestCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(hashPasswordCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}
