package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "matchd",
		Short: "Donation matching daemon",
		Long:  "Daemon for semantic item matching and fair allocation suggestions over donor offers",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(cli.ServeCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
