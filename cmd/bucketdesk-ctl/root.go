package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	backend    string
	verbose    bool
}

// newRootCmd builds the command tree. The app is opened before any
// subcommand that needs it runs; the returned func closes it.
func newRootCmd() (*cobra.Command, func()) {
	flags := &rootFlags{}
	var app *appContainer

	rootCmd := &cobra.Command{
		Use:   "bucketdesk-ctl",
		Short: "bucketdesk-ctl manages buckets and files from the command line.",
		Long: `A command-line client for BucketDesk. It runs the same bucket and file
operations as the HTTP server, directly against the configured object store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "bucketdesk.yaml", "Path to the configuration file (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&flags.backend, "backend", "", "Override the storage backend (aws, gcp, azure, minio, local, memory)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log operation details to stderr")

	openApp := func(cmd *cobra.Command, args []string) error {
		var err error
		app, err = newApp(cmd.Context(), flags.configPath, flags.backend, flags.verbose)
		return err
	}
	getApp := func() *appContainer { return app }

	for _, sub := range []*cobra.Command{newBucketsCmd(getApp), newObjectsCmd(getApp)} {
		sub.PersistentPreRunE = openApp
		rootCmd.AddCommand(sub)
	}
	rootCmd.AddCommand(newReportsCmd(flags))

	closeApp := func() {
		if app != nil {
			app.Close()
		}
	}
	return rootCmd, closeApp
}

func Execute() {
	rootCmd, closeApp := newRootCmd()
	err := rootCmd.Execute()
	closeApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
