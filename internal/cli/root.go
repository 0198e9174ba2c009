package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"spokehub/internal/display"
	"spokehub/internal/listener"
	"spokehub/internal/registry"
	"spokehub/internal/supervisor"
)

// App is everything the commands need once configuration is loaded.
type App struct {
	Processor supervisor.Processor
	Registry  *registry.Registry
	Log       *zap.Logger
	// Timeout bounds one request end to end (0 means none).
	Timeout time.Duration
	Close   func()
}

// Bootstrap loads configuration from configPath and wires the App.
type Bootstrap func(ctx context.Context, configPath string) (*App, error)

type options struct {
	configPath  string
	principal   string
	showMetrics bool
}

var chatCommands = []string{"exit", "quit", "cancel", "actions", "help"}

func NewRootCmd(boot Bootstrap) *cobra.Command {
	opts := &options{}
	var app *App

	load := func(cmd *cobra.Command, args []string) error {
		a, err := boot(cmd.Context(), opts.configPath)
		if err != nil {
			return err
		}
		app = a
		return nil
	}
	// withApp closes the App after the command, whatever its outcome.
	withApp := func(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			defer func() {
				if app != nil && app.Close != nil {
					app.Close()
				}
			}()
			return fn(cmd, args)
		}
	}
	chatE := func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context(), app, opts)
	}

	root := &cobra.Command{
		Use:   "assistant",
		Short: "A personal assistant CLI for your calendar, mail and todos",
		Long: `An assistant that turns plain requests into actions on your integrations
(Google Calendar, Gmail, todo list) and answers with the results.`,
		SilenceUsage:      true,
		PersistentPreRunE: load,
		RunE:              withApp(chatE),
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVarP(&opts.principal, "user", "u", "1", "user id requests run as")
	root.PersistentFlags().BoolVar(&opts.showMetrics, "metrics", false, "print execution metrics after each request")

	chat := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE:  withApp(chatE),
	}

	var asJSON bool
	ask := &cobra.Command{
		Use:   "ask <request>",
		Short: "Process a single request and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if app.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, app.Timeout)
				defer cancel()
			}
			resp := app.Processor.Process(ctx, strings.Join(args, " "), opts.principal)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprint(out, display.FormatResponse(resp))
			if opts.showMetrics {
				fmt.Fprint(out, display.FormatRequestMetrics(resp.Metrics))
			}
			if !resp.Success {
				return fmt.Errorf("request failed")
			}
			return nil
		}),
	}
	ask.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")

	actions := &cobra.Command{
		Use:   "actions",
		Short: "List the actions the assistant can perform",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), display.FormatActions(app.Registry))
			return nil
		}),
	}

	root.AddCommand(chat, ask, actions)
	return root
}

// Execute runs the root command, cancelling on SIGINT/SIGTERM.
func Execute(boot Bootstrap) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd(boot).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func runChat(ctx context.Context, app *App, opts *options) error {
	console, err := listener.New(listener.Config{
		Prompt:      "> ",
		HistoryFile: historyFile(),
		Commands:    chatCommands,
	})
	if err != nil {
		return fmt.Errorf("failed to init terminal input: %w", err)
	}
	defer console.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sup := supervisor.New(app.Processor, app.Timeout, app.Log)
	go sup.Start(ctx)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for r := range sup.Results() {
			console.Printf("[Request %s %s]", r.RequestID, r.State)
			console.Println(strings.TrimRight(display.FormatResponse(r.Response), "\n"))
			if opts.showMetrics {
				console.Println(strings.TrimRight(display.FormatRequestMetrics(r.Response.Metrics), "\n"))
			}
		}
	}()

	console.Println("Hello! How can I help you today? (type 'help' for commands, 'exit' or Ctrl+D to quit)")
	for {
		line, err := console.ReadLine()
		if err != nil {
			break
		}
		cmd, arg, _ := strings.Cut(line, " ")
		switch strings.ToLower(cmd) {
		case "exit", "quit":
			cancel()
			<-printed
			fmt.Println("Goodbye!")
			return nil
		case "help":
			console.Println("Commands: cancel [id], actions, exit. Anything else is sent to the assistant.")
			continue
		case "actions":
			console.Println(strings.TrimRight(display.FormatActions(app.Registry), "\n"))
			continue
		case "cancel":
			id, err := sup.Cancel(strings.TrimSpace(arg))
			if err != nil {
				console.Printf("[Cancel] %v", err)
			} else {
				console.Printf("[Request %s CANCELLING]", id)
			}
			continue
		}

		id, err := sup.Submit(line, opts.principal)
		if err != nil {
			console.Printf("[Submit FAILED] %v", err)
			continue
		}
		console.Printf("[Request %s ACCEPTED]", id)
	}
	cancel()
	<-printed
	fmt.Println("\nGoodbye!")
	return nil
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "spokehub_history")
}
