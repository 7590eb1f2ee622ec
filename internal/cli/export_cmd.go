// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export_cmd.go - Export a stored conversation to a file.
//
// Examples:
//   fimum export 1
//   fimum export 3f2a --format json --dir ~/notes
//   fimum export 1 --stdout --format yaml

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/fimum/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		format  string
		dir     string
		open    bool
		stdout  bool
		noMeta  bool
		noTimes bool
	)

	cmd := &cobra.Command{
		Use:   "export <n|id>",
		Short: "Export a conversation (" + strings.Join(export.Formats(), ", ") + ")",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := a.findConversation(args[0])
			if err != nil {
				return err
			}

			opts := export.DefaultOptions()
			opts.OutputDir = dir
			opts.OpenAfterExport = open
			opts.IncludeMetadata = !noMeta
			opts.IncludeTimestamps = !noTimes

			exp, err := export.ForFormat(format, opts)
			if err != nil {
				return err
			}

			if stdout {
				data, err := exp.Export(conv)
				if err != nil {
					return err
				}
				_, err = a.out.Write(data)
				return err
			}

			path, err := export.ExportToFile(conv, exp, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, SuccessStyle.Render("Exported to ")+path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", export.FormatMarkdown, "output format")
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "output directory")
	cmd.Flags().BoolVar(&open, "open", false, "open the file after export")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "write to stdout instead of a file")
	cmd.Flags().BoolVar(&noMeta, "no-metadata", false, "omit the metadata header (markdown)")
	cmd.Flags().BoolVar(&noTimes, "no-timestamps", false, "omit per-message times (markdown)")
	return cmd
}
