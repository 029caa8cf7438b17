package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "wireflow",
		Short: "Wireflow broker adapter",
		Long: `Wireflow - workflow trigger adapter.

Maintains a single auto-reconnecting connection to the broker and serves
HTTP trigger requests by round-tripping messages over it.`,
	}

	rootCmd.PersistentFlags().String("broker-url", "", "broker connection URL")
	_ = v.BindPFlag("broker_url", rootCmd.PersistentFlags().Lookup("broker-url"))

	rootCmd.PersistentFlags().String("http-addr", "", "HTTP listen address")
	_ = v.BindPFlag("http_addr", rootCmd.PersistentFlags().Lookup("http-addr"))

	rootCmd.PersistentFlags().Duration("reconnect-backoff", 0, "delay between connect attempts")
	_ = v.BindPFlag("reconnect_backoff", rootCmd.PersistentFlags().Lookup("reconnect-backoff"))

	rootCmd.PersistentFlags().Duration("connect-timeout", 0, "per-attempt connect timeout")
	_ = v.BindPFlag("connect_timeout", rootCmd.PersistentFlags().Lookup("connect-timeout"))

	rootCmd.AddCommand(newServeCmd(v))

	return rootCmd.ExecuteContext(context.Background())
}
