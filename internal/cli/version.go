// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(a.out, TitleStyle.Render("fimum")+" "+Version)
			fmt.Fprintln(a.out, FormatKeyValue("Commit", GitCommit))
			fmt.Fprintln(a.out, FormatKeyValue("Built", BuildDate))
			fmt.Fprintln(a.out, FormatKeyValue("Go", runtime.Version()+" "+runtime.GOOS+"/"+runtime.GOARCH))
			return nil
		},
	}
}
