// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newModesCmd(a *app) *cobra.Command {
	var detail bool
	cmd := &cobra.Command{
		Use:   "modes",
		Short: "List chat modes and the models behind them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printModes(a.out, a.registry, a.cfg.Mode())
			if !detail {
				return nil
			}
			fmt.Fprintln(a.out)
			for _, m := range a.registry.Modes() {
				fmt.Fprintf(a.out, "%s %s\n  %s\n", m.Icon, TitleStyle.Render(m.Label), DimStyle.Render(m.Description))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&detail, "long", "l", false, "include descriptions")
	return cmd
}
