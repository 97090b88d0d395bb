package cmd

import (
	"fmt"
	"github.com/ValentinKolb/dCP/cmd/chat"
	"github.com/ValentinKolb/dCP/cmd/serve"
	"github.com/ValentinKolb/dCP/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dcp",
		Short: "connection-oriented command server",
		Long: fmt.Sprintf(`dCP (v%s)

A connection-oriented command protocol server written in Go.
Clients send binary, enum-coded commands over a persistent
connection and receive correlated replies and broadcasts.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dCP",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dCP v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(chat.ChatCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
