package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"remindd/internal/app"
	"remindd/internal/mcpserver"
	"remindd/internal/notifier"
	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

var version = "dev"

const usage = `usage: remindd [-config path] <command> [args]

commands:
  run                 start the daemon (default)
  add   [flags]       store a new reminder
  list                show reminders and their next run
  cancel <id>         remove a reminder by id or id prefix
  mcp                 run the daemon and serve MCP tools on stdio
`

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./remindd.yaml", "path to config yaml or json")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	cmd, args := "run", flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = runDaemon(cfgPath)
	case "mcp":
		err = runMCP(cfgPath)
	case "add":
		err = runAdd(cfgPath, args)
	case "list":
		err = runList(cfgPath)
	case "cancel":
		err = runCancel(cfgPath, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runDaemon(cfgPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Close()
		return fmt.Errorf("start: %w", err)
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}
	return stop(a, reason)
}

func runMCP(cfgPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Close()
		return fmt.Errorf("start: %w", err)
	}

	srv := mcpserver.New(a.Reminders(), version, a.Logger())
	serveErr := srv.Serve(ctx, os.Stdin, os.Stdout)

	reason := app.StopInputEOF
	switch {
	case ctx.Err() != nil:
		reason = app.StopSignal
	case serveErr != nil && !errors.Is(serveErr, context.Canceled):
		a.Logger().Warn("mcp server stopped", logx.Err(serveErr))
	}
	return stop(a, reason)
}

func stop(a *app.App, reason app.StopReason) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stop(ctx, reason); err != nil {
		return err
	}
	return a.Err()
}

// openOffline builds an App for one-shot commands. Deliveries are discarded;
// a running daemon picks the change up from the file and delivers itself.
func openOffline(ctx context.Context, cfgPath string) (*app.App, error) {
	quiet := notifier.SinkFunc(func(context.Context, string, string) error { return nil })
	a, err := app.NewApp(cfgPath,
		app.WithSink(quiet),
		app.WithLogLevel("warn"),
		app.WithStorageWatch(false),
	)
	if err != nil {
		return nil, err
	}
	rep, err := a.Reminders().LoadReminders(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	for _, e := range rep.Errors {
		fmt.Fprintf(os.Stderr, "warning: entry %d (%s): %v\n", e.Index, e.Title, e.Err)
	}
	return a, nil
}

func runAdd(cfgPath string, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	title := fs.String("title", "", "notification title")
	message := fs.String("message", "", "notification body")
	hhmm := fs.String("time", "", "time of day, HH:MM")
	date := fs.String("date", "", "YYYY-MM-DD, required unless -recurring")
	recurring := fs.Bool("recurring", false, "fire every day")
	_ = fs.Parse(args)

	if *title == "" || *hhmm == "" {
		return errors.New("add: -title and -time are required")
	}
	if !*recurring && *date == "" {
		return errors.New("add: -date is required for a one-time reminder")
	}

	ctx := context.Background()
	a, err := openOffline(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	r := reminder.Daily(*title, *message, *hhmm)
	if !*recurring {
		r = reminder.Once(*title, *message, *date, *hhmm)
	}
	c, createErr := a.Reminders().CreateReminder(ctx, r)
	if err := a.Reminders().SaveReminders(ctx); err != nil {
		return err
	}
	if createErr != nil {
		return fmt.Errorf("add: %s stored but not scheduled: %w", c.ID, createErr)
	}

	reg := c.Registration
	switch {
	case !reg.Armed:
		fmt.Printf("%s stored but will not fire: %s\n", c.ID, reg.DropReason)
	default:
		fmt.Printf("%s next run %s\n", c.ID, reg.Job.NextRun.Format("2006-01-02 15:04"))
	}
	return nil
}

func runList(cfgPath string) error {
	ctx := context.Background()
	a, err := openOffline(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	items := a.Reminders().Overview()
	if len(items) == 0 {
		fmt.Println("no reminders")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tWHEN\tNEXT RUN")
	for _, it := range items {
		r := it.Reminder
		when := "daily " + r.Time
		if !r.Recurring {
			when = r.DateString() + " " + r.Time
		}
		next := "-"
		if it.Job != nil {
			next = it.Job.NextRun.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", shortID(r.ID), r.Title, when, next)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runCancel(cfgPath string, args []string) error {
	if len(args) != 1 {
		return errors.New("cancel: expected exactly one id")
	}
	ctx := context.Background()
	a, err := openOffline(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.Reminders().Resolve(args[0])
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	a.Reminders().CancelReminder(ctx, r.ID)
	if err := a.Reminders().SaveReminders(ctx); err != nil {
		return err
	}
	fmt.Printf("cancelled %s (%s)\n", r.ID, r.Title)
	return nil
}
