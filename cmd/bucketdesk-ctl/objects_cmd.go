package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bucketdesk/bucketdesk/internal/resolver"
)

func newObjectsCmd(app func() *appContainer) *cobra.Command {
	var bucket string

	objectsCmd := &cobra.Command{
		Use:   "objects",
		Short: "List, find, upload and download objects",
	}
	objectsCmd.PersistentFlags().StringVarP(&bucket, "bucket", "b", "", "The bucket to operate on")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the objects in a bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := app().Service.ListObjects(cmd.Context(), bucket)
			if err != nil {
				return err
			}
			printListing(cmd, res, "Bucket is empty.")
			return nil
		},
	}

	findCmd := &cobra.Command{
		Use:   "find [name]",
		Short: "Find an object by name, ignoring case and extension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := app().Service.FindObject(cmd.Context(), bucket, args[0])
			if err != nil {
				return err
			}
			if res.Outcome != resolver.Found {
				return fmt.Errorf("no object matching '%s' in bucket '%s'", args[0], bucket)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Key)
			return nil
		},
	}

	uploadCmd := &cobra.Command{
		Use:   "upload [file-path]",
		Short: "Upload a local file",
		Long:  `Uploads a local file under its base name. Without --bucket the configured default bucket is used.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := app().Service.UploadFile(cmd.Context(), args[0], bucket)
			if err != nil {
				return fmt.Errorf("error uploading '%s': %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded '%s' as '%s'.\n", args[0], key)
			return nil
		},
	}

	downloadCmd := &cobra.Command{
		Use:   "download [name]",
		Short: "Download an object into the downloads directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app().Service.DownloadFile(cmd.Context(), args[0], bucket)
			if err != nil {
				return fmt.Errorf("error downloading '%s': %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Downloaded to '%s'.\n", path)
			return nil
		},
	}

	objectsCmd.AddCommand(listCmd, findCmd, uploadCmd, downloadCmd)
	return objectsCmd
}
