package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"snapshare/internal/cli"
	"snapshare/internal/client"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("snapshare")
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "snapshare",
		Short:         "Share text and files through a snapshare server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("server", "s", "http://localhost:8080", "Server URL (env SNAPSHARE_SERVER)")
	_ = v.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))

	newClient := func() *client.Client {
		return client.New(v.GetString("server"), nil)
	}

	rootCmd.AddCommand(
		newPutCmd(newClient),
		newGetCmd(newClient),
		newStatsCmd(newClient),
	)
	return rootCmd
}

func newPutCmd(newClient func() *client.Client) *cobra.Command {
	var (
		text string
		opts client.ShareOptions
	)

	cmd := &cobra.Command{
		Use:   "put [paths...]",
		Short: "Share text, a file, or a zipped set of files",
		Example: `  snapshare put --text "hello" --max-views 1
  snapshare put report.pdf --hours 24
  snapshare put ./project notes.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if text != "" {
				if len(args) > 0 {
					return errors.New("--text cannot be combined with paths")
				}
				res, err := newClient().CreateText(ctx, text, opts)
				if err != nil {
					return err
				}
				printCreated(out, res)
				return nil
			}

			paths, err := cli.ParseArgs(args)
			if err != nil {
				return err
			}
			upload, err := cli.Bundle(paths, time.Now())
			if err != nil {
				return fmt.Errorf("failed to prepare upload: %w", err)
			}
			if upload.Zipped {
				fmt.Fprintf(out, "✓ Compressed %d file(s) to %s\n", upload.Files, humanize.Bytes(uint64(len(upload.Data))))
			}

			res, err := newClient().CreateFile(ctx, upload.Filename, bytes.NewReader(upload.Data), opts)
			if err != nil {
				return err
			}
			printCreated(out, res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&text, "text", "t", "", "Share this text instead of files")
	cmd.Flags().IntVar(&opts.ExpirationHours, "hours", 0, "Expire after this many hours (0 = never)")
	cmd.Flags().IntVar(&opts.MaxViews, "max-views", 0, "Delete after this many views (0 = unlimited)")
	return cmd
}

func printCreated(w io.Writer, res *client.CreateResponse) {
	fmt.Fprintf(w, "✓ Shared as %s\n", res.ID)
	fmt.Fprintf(w, "  %s\n", res.URL)
	if res.ExpiresAt != nil {
		fmt.Fprintf(w, "  expires %s (%s)\n", res.ExpiresAt.Local().Format(time.RFC1123), humanize.Time(*res.ExpiresAt))
	}
}

func newGetCmd(newClient func() *client.Client) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a share; text goes to stdout, files to disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			share, err := newClient().Get(cmd.Context(), args[0])
			if errors.Is(err, client.ErrNotFound) {
				return fmt.Errorf("share %s not found, expired, or out of views", args[0])
			}
			if err != nil {
				return err
			}

			if !share.IsFile() {
				if output == "" {
					_, err := io.WriteString(cmd.OutOrStdout(), share.Content)
					return err
				}
				return os.WriteFile(output, []byte(share.Content), 0644)
			}

			dest := output
			if dest == "" {
				dest = filepath.Base(share.Filename)
			}
			if err := os.WriteFile(dest, share.Data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", dest, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s (%s, %s)\n", dest, humanize.Bytes(uint64(len(share.Data))), share.MimeType)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the share to this file")
	return cmd
}

func newStatsCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show server-wide share statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := newClient().Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "shares:  %s (%s text, %s files)\n",
				humanize.Comma(stats.TotalShares), humanize.Comma(stats.TotalTexts), humanize.Comma(stats.TotalFiles))
			fmt.Fprintf(out, "views:   %s\n", humanize.Comma(stats.TotalViews))
			fmt.Fprintf(out, "storage: %s\n", stats.StorageUsedHuman)
			return nil
		},
	}
}
