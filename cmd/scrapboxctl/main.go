// Command scrapboxctl is a small front end exercising join, insert,
// deletePage, and listenStream end-to-end, grounded on the pack's cobra
// command-tree idiom (omarkohl-jip, ehrlich-b-wingthing) rather than the
// teacher's bare net/http main.go, since the teacher's cmd/server is a
// server entrypoint and this is a client-core front end.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/takker99/scrapbox-core-go/internal/config"
	"github.com/takker99/scrapbox-core-go/pkg/logger"
	"github.com/takker99/scrapbox-core-go/pkg/metaclient"
	"github.com/takker99/scrapbox-core-go/pkg/page"
	"github.com/takker99/scrapbox-core-go/pkg/room"
	"github.com/takker99/scrapbox-core-go/pkg/transport"
)

var rootCmd = &cobra.Command{
	Use:   "scrapboxctl",
	Short: "Join, patch, and watch Scrapbox pages from the command line",
}

func main() {
	logger.Init()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newDialer(cfg config.Config) func(context.Context) (room.Socket, error) {
	d := &transport.Dialer{
		URL:          cfg.WebsocketURL,
		ReadTimeout:  cfg.WSReadTimeout,
		WriteTimeout: cfg.WSWriteTimeout,
		Backoff:      transport.NewBackoff(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay),
	}
	return d.Dial
}

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var joinCmd = &cobra.Command{
	Use:   "join <project> <title>",
	Short: "Join a page's editing room, print its lines, then append each line read from stdin",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, title := args[0], args[1]
		cfg := config.Load()
		fetcher := metaclient.New(cfg.BaseURL, nil)

		ctx, cancel := interruptContext()
		defer cancel()

		r, err := room.Join(ctx, fetcher, newDialer(cfg), project, title, cfg.PushRetryBound)
		if err != nil {
			return fmt.Errorf("join: %w", err)
		}
		defer r.Cleanup()

		for _, line := range r.Snapshot().Lines {
			fmt.Fprintln(cmd.OutOrStdout(), line.Text)
		}

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			text := scanner.Text()
			if _, err := r.Insert(ctx, text, page.EndAnchor); err != nil {
				return fmt.Errorf("insert: %w", err)
			}
		}
		return scanner.Err()
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <project>",
	Short: "Run listenStream against a project and print incoming commits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project := args[0]
		cfg := config.Load()
		fetcher := metaclient.New(cfg.BaseURL, nil)

		ctx, cancel := interruptContext()
		defer cancel()

		events, stop, err := room.ListenStream(ctx, fetcher, newDialer(cfg), project)
		if err != nil {
			return fmt.Errorf("listen stream: %w", err)
		}
		defer stop()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", ev.Event, string(ev.Data))
			case <-ctx.Done():
				return nil
			}
		}
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <project> <title>",
	Short: "Delete a page",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, title := args[0], args[1]
		cfg := config.Load()
		fetcher := metaclient.New(cfg.BaseURL, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := room.DeletePage(ctx, fetcher, newDialer(cfg), project, title, cfg.PushRetryBound); err != nil {
			return fmt.Errorf("delete page: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(joinCmd, watchCmd, rmCmd)
}
