// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command and shared wiring for fimum.

package cli

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jeranaias/fimum/internal/chat"
	"github.com/jeranaias/fimum/internal/config"
	"github.com/jeranaias/fimum/internal/model"
	"github.com/jeranaias/fimum/internal/storage"
)

// Version information (can be overridden at build time).
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// app carries what every command needs after flag parsing.
type app struct {
	configPath string
	verbose    bool

	cfg      *config.Config
	registry *model.Registry
	out      io.Writer
	errOut   io.Writer

	kv    storage.KV
	store *storage.ConversationStore
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{registry: model.DefaultRegistry(), out: os.Stdout, errOut: os.Stderr}

	root := &cobra.Command{
		Use:           "fimum",
		Short:         "Multi-mode AI chat gateway and terminal client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			a.errOut = cmd.ErrOrStderr()
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ~/.fimum/config.toml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newServeCmd(a),
		newChatCmd(a),
		newTUICmd(a),
		newConversationsCmd(a),
		newExportCmd(a),
		newModesCmd(a),
		newVersionCmd(a),
	)
	return root
}

// Execute runs the root command and returns a process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
		return 1
	}
	return 0
}

func (a *app) init(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFromPath(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	a.setupLogging(cmd.Name() == "serve")
	return nil
}

// setupLogging sends log output to stderr for the server or --verbose.
// Interactive commands otherwise log to <config dir>/fimum.log so the
// terminal stays clean.
func (a *app) setupLogging(server bool) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if server || a.verbose {
		log.SetOutput(a.errOut)
		return
	}

	dir, err := config.ConfigDir()
	if err == nil {
		if err = os.MkdirAll(dir, 0700); err == nil {
			var f *os.File
			f, err = os.OpenFile(filepath.Join(dir, "fimum.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
			if err == nil {
				log.SetOutput(f)
				return
			}
		}
	}
	log.SetOutput(io.Discard)
}

// conversations opens the configured store on first use.
func (a *app) conversations() (*storage.ConversationStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	path, err := a.cfg.ResolvedStorePath()
	if err != nil {
		return nil, err
	}
	kv, err := storage.Open(a.cfg.Client.StoreBackend, path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.kv = kv
	a.store = storage.NewConversationStore(kv)
	return a.store, nil
}

// newState builds a chat State against gatewayURL, hydrated from the store.
func (a *app) newState(gatewayURL string, mode model.Mode) (*chat.State, error) {
	store, err := a.conversations()
	if err != nil {
		return nil, err
	}
	if gatewayURL == "" {
		gatewayURL = a.cfg.Client.GatewayURL
	}
	st := chat.New(store, chat.NewHTTPGateway(gatewayURL), chat.WithMode(a.cfg.Mode()))
	if err := st.Load(); err != nil {
		return nil, err
	}
	if mode != "" {
		st.SetMode(mode)
	}
	return st, nil
}

func (a *app) close() error {
	if a.kv != nil {
		err := a.kv.Close()
		a.kv, a.store = nil, nil
		return err
	}
	return nil
}

// parseModeFlag validates a --mode value; empty means unset.
func parseModeFlag(s string) (model.Mode, error) {
	if s == "" {
		return "", nil
	}
	return model.ParseMode(s)
}
