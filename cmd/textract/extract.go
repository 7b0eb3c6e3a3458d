package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/textract/docpipe"
)

func newExtractCmd() *cobra.Command {
	var (
		asJSON   bool
		maxBytes int64
		debug    bool
	)
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract text from a local file and print it",
		Long:  "Extract text from a local file. The format is detected from the extension; \"-\" reads plain text from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			pipe := docpipe.New(docpipe.Config{MaxInputBytes: maxBytes, Logger: logger})

			name := args[0]
			var (
				data []byte
				err  error
			)
			if name == "-" {
				name = "stdin.txt"
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(name)
			}
			if err != nil {
				return err
			}

			res, err := pipe.Extract(cmd.Context(), filepath.Base(name), data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			_, err = fmt.Fprintln(out, res.Text)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result (format, length, title, quality) as JSON")
	cmd.Flags().Int64Var(&maxBytes, "max-bytes", 50<<20, "reject inputs larger than this")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging on stderr")
	return cmd
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported formats and extensions",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, f := range docpipe.SupportedFormats() {
				fmt.Fprintln(out, f)
			}
			fmt.Fprintln(out, "extensions:", docpipe.SupportedExtensions())
			return nil
		},
	}
}
