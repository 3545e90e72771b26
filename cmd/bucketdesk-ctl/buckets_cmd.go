package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bucketdesk/bucketdesk/internal/resolver"
)

func newBucketsCmd(app func() *appContainer) *cobra.Command {
	bucketsCmd := &cobra.Command{
		Use:   "buckets",
		Short: "List, find, create, delete and empty buckets",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := app().Service.ListBuckets(cmd.Context())
			if err != nil {
				return err
			}
			printListing(cmd, res, "No buckets to list.")
			return nil
		},
	}

	findCmd := &cobra.Command{
		Use:   "find [bucket-name]",
		Short: "Check whether a bucket exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := app().Service.FindBucket(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if res.Outcome != resolver.Found {
				return fmt.Errorf("bucket '%s' not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bucket '%s' exists.\n", args[0])
			return nil
		},
	}

	createCmd := &cobra.Command{
		Use:   "create [bucket-name]",
		Short: "Create a new bucket",
		Long:  `Creates a bucket in the configured region. The name is lower-cased and spaces become dashes.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app().Service.CreateBucket(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("error creating bucket '%s': %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bucket '%s' created successfully.\n", args[0])
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [bucket-name]",
		Short: "Delete an empty bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app().Service.DeleteBucket(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("error deleting bucket '%s': %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bucket '%s' deleted successfully.\n", args[0])
			return nil
		},
	}

	emptyCmd := &cobra.Command{
		Use:   "empty [bucket-name]",
		Short: "Delete every object in a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := app().Service.EmptyBucket(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("error emptying bucket '%s': %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d object(s) from bucket '%s'.\n", n, args[0])
			return nil
		},
	}

	bucketsCmd.AddCommand(listCmd, findCmd, createCmd, deleteCmd, emptyCmd)
	return bucketsCmd
}

// printListing prints one name per line, or empty when there is nothing.
func printListing(cmd *cobra.Command, res resolver.Resolution, empty string) {
	if res.Outcome != resolver.Listing {
		fmt.Fprintln(cmd.OutOrStdout(), empty)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(res.Names, "\n"))
}
