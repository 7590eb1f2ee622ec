// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/jeranaias/fimum/internal/storage"
	"github.com/jeranaias/fimum/internal/ui"
)

func newTUICmd(a *app) *cobra.Command {
	var (
		modeFlag string
		gateway  string
	)

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Full-screen chat client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !IsTTY() || !IsStdoutTTY() {
				return errors.New("tui needs an interactive terminal (try `fimum chat`)")
			}
			mode, err := parseModeFlag(modeFlag)
			if err != nil {
				return err
			}
			st, err := a.newState(gateway, mode)
			if err != nil {
				return err
			}

			var watch ui.WatchFunc
			if fkv, ok := a.kv.(*storage.FileKV); ok {
				watch = func(ctx context.Context, onChange func()) error {
					return fkv.Watch(ctx, storage.ConversationsKey, onChange)
				}
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return ui.Run(ctx, st, a.registry, watch)
		},
	}

	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "starting mode")
	cmd.Flags().StringVar(&gateway, "gateway", "", "gateway URL (default from config)")
	return cmd
}
