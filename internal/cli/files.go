package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/me/choppy/internal/storage"
	"github.com/spf13/cobra"
)

// newStorage is replaced in tests.
var newStorage = func() (*storage.Client, error) {
	return storage.New(cfg.OSS, logger)
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <local_path> <oss://bucket/prefix>",
		Short: "Upload a file or directory to object storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newStorage()
			if err != nil {
				return err
			}
			n, err := c.Upload(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d file(s) to %s\n", n, args[1])
			return nil
		},
	}
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <oss://bucket/prefix> <local_path>",
		Short: "Download an object or prefix from object storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newStorage()
			if err != nil {
				return err
			}
			n, err := c.Download(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d file(s) to %s\n", n, args[1])
			return nil
		},
	}
}

func newListFilesCmd() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "listfiles <oss://bucket/prefix>",
		Short: "List objects under a prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newStorage()
			if err != nil {
				return err
			}
			objs, err := c.List(cmd.Context(), args[0], recursive)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(objs) == 0 {
				fmt.Fprintln(out, "No files found.")
				return nil
			}
			var total uint64
			for _, o := range objs {
				modified := "-"
				if !o.Modified.IsZero() {
					modified = o.Modified.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(out, "%10s  %s  %s\n", humanize.Bytes(uint64(o.Size)), modified, o.Key)
				total += uint64(o.Size)
			}
			fmt.Fprintf(out, "\n%d object(s), %s\n", len(objs), humanize.Bytes(total))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "List every object below the prefix")
	return cmd
}
