package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/skobkin/machinecfg/internal/app"
	"github.com/skobkin/machinecfg/internal/config"
	"github.com/skobkin/machinecfg/internal/platform"
	"github.com/skobkin/machinecfg/internal/ui"
)

type launchOptions struct {
	StartHidden bool
	// Profile replaces the per-user config directory when set.
	Profile     string
	ShowVersion bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("run machinecfg", "error", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	opts, err := parseLaunchOptions(args)
	if err != nil {
		return err
	}
	if opts.ShowVersion {
		_, err := fmt.Fprintln(out, app.Name, app.CurrentBuild())

		return err
	}

	paths, err := resolvePaths(opts)
	if err != nil {
		return err
	}

	// One process per profile: two of them would fight over the serial port.
	lock, err := platform.AcquireInstanceLock(app.Name, paths.RootDir)
	switch {
	case errors.Is(err, platform.ErrInstanceAlreadyRunning):
		return fmt.Errorf("%s is already running for %s", app.Name, paths.RootDir)
	case errors.Is(err, platform.ErrInstanceLockUnsupported):
		slog.Warn("single instance lock is not supported on this platform")
	case err != nil:
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if lock != nil {
		defer func() {
			if releaseErr := lock.Release(); releaseErr != nil {
				slog.Warn("release instance lock", "error", releaseErr)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return err
	}
	rt, err := app.InitializeWith(ctx, paths, cfg)
	if err != nil {
		return fmt.Errorf("initialize app runtime: %w", err)
	}

	var closeOnce sync.Once
	closeRuntime := func() {
		closeOnce.Do(func() {
			_ = rt.Close()
		})
	}
	defer closeRuntime()

	dep := ui.BuildRuntimeDependencies(rt, ui.LaunchOptions{StartHidden: opts.StartHidden}, func() {
		stop()
		closeRuntime()
	})
	if err := ui.Run(dep); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}

	return nil
}

func parseLaunchOptions(args []string) (launchOptions, error) {
	var opts launchOptions

	fs := flag.NewFlagSet(app.Name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&opts.StartHidden, "start-hidden", false, "start with the main window hidden in the system tray")
	fs.StringVar(&opts.Profile, "profile", "", "directory holding config, journal and log instead of the user config dir")
	fs.BoolVar(&opts.ShowVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return launchOptions{}, fmt.Errorf("parse launch options: %w", err)
	}
	if fs.NArg() > 0 {
		return launchOptions{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	opts.Profile = strings.TrimSpace(opts.Profile)

	return opts, nil
}

func resolvePaths(opts launchOptions) (app.Paths, error) {
	if opts.Profile == "" {
		return app.ResolvePaths()
	}
	root, err := filepath.Abs(opts.Profile)
	if err != nil {
		return app.Paths{}, fmt.Errorf("resolve profile dir: %w", err)
	}

	return app.PathsIn(root)
}
