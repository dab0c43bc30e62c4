// Package main is the didgen operator CLI. It derives Bharat-ID DIDs offline,
// generates issuer keys and benchmarks the derivation and credential paths.
package main

import (
	"log"

	"github.com/spf13/cobra"

	"praman/cmd/didgen/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "didgen",
		Short: "Bharat-ID DID tooling",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	rootCmd.AddCommand(commands.GetDeriveCmd())
	rootCmd.AddCommand(commands.GetPairwiseCmd())
	rootCmd.AddCommand(commands.GetKeygenCmd())
	rootCmd.AddCommand(commands.GetBenchCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("didgen: %s", err.Error())
	}
}
