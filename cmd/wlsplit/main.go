// Package main provides the CLI entrypoint for wlsplit.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/wlsplit/internal/config"
	"github.com/verte-zerg/wlsplit/internal/control"
	"github.com/verte-zerg/wlsplit/internal/model"
	"github.com/verte-zerg/wlsplit/internal/splits"
	"github.com/verte-zerg/wlsplit/internal/stats"
	"github.com/verte-zerg/wlsplit/internal/store"
)

const (
	defaultDisplay  = "terminal"
	defaultTick     = 10 * time.Millisecond
	defaultLogLevel = "info"
	ctlTimeout      = 2 * time.Second
)

var (
	runGame     string
	runCategory string
	runSplits   string
	runSocket   string
	runDisplay  string
	runTick     time.Duration
	runLogLevel string
	runDB       string

	ctlSocket string

	historyGame     string
	historyCategory string
	historyLast     int
	historyDB       string

	initGame     string
	initCategory string
	initSplits   string
	initForce    bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "wlsplit [file]",
		Short:         "Speedrun split timer controlled over a local socket",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runTimerCmd,
	}

	rootCmd.Flags().StringVar(&runGame, "game", "", "game name used when creating the split file")
	rootCmd.Flags().StringVar(&runCategory, "category", "", "category used when creating the split file")
	rootCmd.Flags().StringVar(&runSplits, "splits", "", "comma-separated split names used when creating the split file")
	rootCmd.Flags().StringVar(&runSocket, "socket", config.DefaultSocketPath(), "command socket path")
	rootCmd.Flags().StringVar(&runDisplay, "display", defaultDisplay, "display backend (terminal|headless)")
	rootCmd.Flags().DurationVar(&runTick, "tick", defaultTick, "display refresh interval")
	rootCmd.Flags().StringVar(&runLogLevel, "log-level", defaultLogLevel, "log level (debug|info|warn|error)")
	rootCmd.Flags().StringVar(&runDB, "db", config.DefaultDBPath(), "attempt history database path")

	rootCmd.AddCommand(newCtlCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func runTimerCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "display", &runDisplay, fileCfg.Display)
	applyStringConfig(cmd, "socket", &runSocket, fileCfg.Socket)
	applyDurationConfig(cmd, "tick", &runTick, fileCfg.Tick)
	applyStringConfig(cmd, "log-level", &runLogLevel, fileCfg.LogLevel)
	applyStringConfig(cmd, "db", &runDB, fileCfg.DB)

	cfg := model.Config{
		SplitsPath: splitsPathArg(args),
		Game:       runGame,
		Category:   runCategory,
		SplitNames: runSplits,
		SocketPath: runSocket,
		Display:    runDisplay,
		Tick:       runTick,
		LogLevel:   runLogLevel,
		DBPath:     runDB,
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}
	return runTimer(contextOrBackground(cmd), cfg)
}

func splitsPathArg(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0]
	}
	return config.DefaultSplitsPath()
}

func validateConfig(cfg model.Config) error {
	if cfg.Tick <= 0 {
		return fmt.Errorf("%w: --tick must be positive", model.ErrConfig)
	}
	if strings.TrimSpace(cfg.SocketPath) == "" {
		return fmt.Errorf("%w: --socket must not be empty", model.ErrConfig)
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return fmt.Errorf("%w: --db must not be empty", model.ErrConfig)
	}
	return nil
}

func newCtlCmd() *cobra.Command {
	names := make([]string, 0, len(control.Commands()))
	for _, c := range control.Commands() {
		names = append(names, c.String())
	}
	cmd := &cobra.Command{
		Use:       "ctl <" + strings.Join(names, "|") + ">",
		Short:     "Send a command to a running timer",
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE:      runCtlCmd,
	}
	cmd.Flags().StringVar(&ctlSocket, "socket", config.DefaultSocketPath(), "command socket path")
	return cmd
}

func runCtlCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "socket", &ctlSocket, fileCfg.Socket)

	c, err := control.ParseCommand(args[0])
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(contextOrBackground(cmd), ctlTimeout)
	defer cancel()
	return control.Send(ctx, ctlSocket, c)
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [file]",
		Short: "Show recorded attempts and per-split averages",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyGame, "game", "", "game filter")
	cmd.Flags().StringVar(&historyCategory, "category", "", "category filter")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N attempts")
	cmd.Flags().StringVar(&historyDB, "db", config.DefaultDBPath(), "attempt history database path")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "db", &historyDB, fileCfg.DB)
	if historyLast < 0 {
		return fmt.Errorf("%w: --last must not be negative", model.ErrConfig)
	}

	cfg := model.HistoryConfig{Game: historyGame, Category: historyCategory, Last: historyLast}
	if len(args) > 0 {
		f, err := splits.Load(afero.NewOsFs(), args[0])
		if err != nil {
			return fmt.Errorf("failed to load split file: %w", err)
		}
		if !cmd.Flags().Changed("game") {
			cfg.Game = f.Game
		}
		if !cmd.Flags().Changed("category") {
			cfg.Category = f.Category
		}
	}

	st, err := store.Open(historyDB)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	report, err := stats.BuildReport(contextOrBackground(cmd), st, cfg)
	if err != nil {
		return fmt.Errorf("failed to build history: %w", err)
	}
	return stats.Render(cmd.OutOrStdout(), report)
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init <file>",
		Short: "Create a split file",
		Args:  cobra.ExactArgs(1),
		RunE:  runInitCmd,
	}
	cmd.Flags().StringVar(&initGame, "game", "", "game name")
	cmd.Flags().StringVar(&initCategory, "category", "", "category")
	cmd.Flags().StringVar(&initSplits, "splits", "", "comma-separated split names")
	cmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
	return cmd
}

func runInitCmd(cmd *cobra.Command, args []string) error {
	fsys := afero.NewOsFs()
	path := args[0]
	if !initForce {
		if _, err := fsys.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}
	f := splits.New(splits.Defaults{Game: initGame, Category: initCategory, SplitNames: initSplits})
	if err := splits.Save(fsys, path, f); err != nil {
		return fmt.Errorf("failed to write split file: %w", err)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d splits)\n", path, len(f.Splits))
	return err
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.Template), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target *time.Duration, value *config.Duration) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = value.Duration
}

func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
