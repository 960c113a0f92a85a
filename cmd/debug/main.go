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
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/skobkin/machinecfg/internal/app"
	"github.com/skobkin/machinecfg/internal/config"
	"github.com/skobkin/machinecfg/internal/connectors"
	"github.com/skobkin/machinecfg/internal/persistence"
	"github.com/skobkin/machinecfg/internal/settings"
	"github.com/skobkin/machinecfg/internal/transport"
)

const (
	defaultTimeout    = 30 * time.Second
	journalWaitPeriod = 2 * time.Second
	pollInterval      = 50 * time.Millisecond
)

type options struct {
	connector string
	host      string
	port      int
	serial    string
	baud      int
	timeout   time.Duration

	fetch        bool
	set          string
	history      int
	clearHistory bool
	listPorts    bool
	version      bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("run debug tool", "error", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}

	switch {
	case opts.version:
		_, err := fmt.Fprintln(out, app.Name, app.BuildVersionWithDate())

		return err
	case opts.listPorts:
		return listPorts(out)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, err := app.ResolvePaths()
	if err != nil {
		return err
	}

	if opts.clearHistory || opts.history > 0 {
		return journalCommand(ctx, paths, opts, out)
	}

	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return err
	}
	applyOverrides(&cfg, opts)
	cfg.Logging.LogToFile = false
	cfg.UI.Notifications.Desktop = false
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("connection settings: %w", err)
	}

	rt, err := app.InitializeWith(ctx, paths, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = rt.Close()
	}()
	logger := rt.LogManager.Logger("cli")
	logger.Info("starting machinecfg debug", "version", app.BuildVersion(), "target", app.ConnectionTarget(cfg.Connection))

	waitCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	select {
	case <-waitCtx.Done():
		return fmt.Errorf("wait for connection: %w", waitCtx.Err())
	case <-rt.Ready:
	}

	entries, err := fetchSettings(waitCtx, rt.MachineSettings)
	if err != nil {
		return err
	}

	if opts.set == "" {
		return printSettings(out, entries)
	}

	return submitSetting(waitCtx, rt, entries, opts.set, out)
}

func parseOptions(args []string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("machinecfg-debug", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.connector, "connector", "", "connector type: serial or ip (default from config)")
	fs.StringVar(&opts.host, "host", "", "controller ip/hostname")
	fs.IntVar(&opts.port, "port", 0, "controller tcp port")
	fs.StringVar(&opts.serial, "serial", "", "serial port, e.g. /dev/ttyUSB0")
	fs.IntVar(&opts.baud, "baud", 0, "serial baud rate")
	fs.DurationVar(&opts.timeout, "timeout", defaultTimeout, "connection and query timeout")
	fs.BoolVar(&opts.fetch, "fetch", false, "print the machine settings")
	fs.StringVar(&opts.set, "set", "", "update one setting, e.g. '$110=500'")
	fs.IntVar(&opts.history, "history", 0, "print the last N recorded settings changes")
	fs.BoolVar(&opts.clearHistory, "clear-history", false, "delete the recorded settings changes")
	fs.BoolVar(&opts.listPorts, "list-ports", false, "list serial ports")
	fs.BoolVar(&opts.version, "version", false, "print version")
	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("parse options: %w", err)
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	switch strings.ToLower(strings.TrimSpace(opts.connector)) {
	case "", string(config.ConnectorIP), string(config.ConnectorSerial):
	default:
		return options{}, fmt.Errorf("unknown connector %q", opts.connector)
	}
	if opts.set != "" {
		if _, _, err := parseAssignment(opts.set); err != nil {
			return options{}, err
		}
	}
	if opts.timeout <= 0 {
		opts.timeout = defaultTimeout
	}
	if !opts.fetch && opts.set == "" && opts.history <= 0 && !opts.clearHistory && !opts.listPorts && !opts.version {
		opts.fetch = true
	}

	return opts, nil
}

// parseAssignment splits "$110=500" into the setting tag and its value.
func parseAssignment(raw string) (string, string, error) {
	command, value, ok := strings.Cut(strings.TrimSpace(raw), "=")
	command = strings.TrimSpace(command)
	value = strings.TrimSpace(value)
	if !ok || len(command) < 2 || !strings.HasPrefix(command, "$") {
		return "", "", fmt.Errorf("invalid setting %q: expected $<n>=<value>", raw)
	}
	if value == "" {
		return "", "", fmt.Errorf("invalid setting %q: value is required", raw)
	}

	return command, value, nil
}

func applyOverrides(cfg *config.AppConfig, opts options) {
	if connector := strings.ToLower(strings.TrimSpace(opts.connector)); connector != "" {
		cfg.Connection.Connector = config.ConnectorType(connector)
	}
	if host := strings.TrimSpace(opts.host); host != "" {
		cfg.Connection.Host = host
	}
	if opts.port > 0 {
		cfg.Connection.Port = opts.port
	}
	if serialPort := strings.TrimSpace(opts.serial); serialPort != "" {
		cfg.Connection.SerialPort = serialPort
	}
	if opts.baud > 0 {
		cfg.Connection.SerialBaud = opts.baud
	}
	cfg.FillMissingDefaults()
}

func listPorts(out io.Writer) error {
	ports, err := transport.ListSerialPorts()
	if err != nil {
		return err
	}
	for _, port := range ports {
		if _, err := fmt.Fprintln(out, port); err != nil {
			return err
		}
	}

	return nil
}

func journalCommand(ctx context.Context, paths app.Paths, opts options, out io.Writer) error {
	db, err := persistence.Open(ctx, paths.DBFile)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	if opts.clearHistory {
		if err := persistence.ClearHistory(ctx, db); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out, "history cleared"); err != nil {
			return err
		}
	}
	if opts.history <= 0 {
		return nil
	}

	events, err := persistence.NewChangeRepo(db).ListRecent(ctx, opts.history)
	if err != nil {
		return err
	}

	return printHistory(out, events)
}

func fetchSettings(ctx context.Context, ctrl *app.MachineSettingsController) ([]*settings.Entry, error) {
	if !ctrl.Refresh(ctx) {
		return nil, errors.New("settings query refused: another query is outstanding")
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for ctrl.State().Loading {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for settings: %w", ctx.Err())
		case <-ctrl.Changes():
		case <-ticker.C:
		}
	}

	entries := ctrl.Store().Entries()
	if len(entries) == 0 {
		return nil, errors.New("settings query failed, see log for details")
	}

	return entries, nil
}

func submitSetting(ctx context.Context, rt *app.Runtime, entries []*settings.Entry, assignment string, out io.Writer) error {
	command, value, err := parseAssignment(assignment)
	if err != nil {
		return err
	}

	var entry *settings.Entry
	for _, candidate := range entries {
		if candidate.Kind.Editable() && candidate.Command == command {
			entry = candidate

			break
		}
	}
	if entry == nil {
		// Not reported by the machine; send it anyway as a detached entry.
		entry = settings.NewText(command, "", "")
	}

	ctrl := rt.MachineSettings
	if validation := ctrl.Edit(entry, value); !validation.Valid {
		return fmt.Errorf("invalid value for %s", command)
	}

	startedAt := time.Now()
	result := <-ctrl.Submit(ctx, entry)
	if result.Err != nil {
		return fmt.Errorf("submit %s: %w", result.Command, result.Err)
	}
	if _, err := fmt.Fprintln(out, "sent", result.Command); err != nil {
		return err
	}

	waitForJournal(ctx, rt.ChangeRepo, command, startedAt)

	return nil
}

// waitForJournal gives the asynchronous change journal a moment to record the
// submit before the runtime is closed.
func waitForJournal(ctx context.Context, repo *persistence.ChangeRepo, command string, since time.Time) {
	deadline := time.Now().Add(journalWaitPeriod)
	for time.Now().Before(deadline) {
		events, err := repo.ListRecent(ctx, 5)
		if err == nil {
			for _, event := range events {
				if event.Command == command && !event.At.Before(since.Truncate(time.Millisecond)) {
					return
				}
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(pollInterval):
		}
	}
	slog.Warn("settings change was not recorded in time", "command", command)
}

func printSettings(out io.Writer, entries []*settings.Entry) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, entry := range entries {
		if !entry.Kind.Editable() {
			fmt.Fprintf(w, "#\t%s\t\n", entry.Value)

			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", entry.Command, entry.Value, entry.Label)
	}

	return w.Flush()
}

func printHistory(out io.Writer, events []connectors.SubmitEvent) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tCOMMAND\tPREVIOUS\tVALUE\tOUTCOME\tERROR")
	for _, event := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(event.At),
			event.Command,
			event.Previous,
			event.Value,
			event.Outcome,
			event.Err,
		)
	}

	return w.Flush()
}
