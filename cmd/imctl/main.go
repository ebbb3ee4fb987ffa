package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/imsync/internal/api"
	"github.com/matheus3301/imsync/internal/lock"
	"github.com/matheus3301/imsync/internal/session"
)

type globals struct {
	session string
	json    bool
	timeout time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "imctl",
		Short:         "Control a running imsyncd session",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			g.session = session.Resolve(g.session)
			return session.ValidateName(g.session)
		},
	}
	root.PersistentFlags().StringVar(&g.session, "session", "", "session name (overrides config default)")
	root.PersistentFlags().BoolVar(&g.json, "json", false, "output in JSON format")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		newInitCmd(),
		newStatusCmd(g),
		newRoomsCmd(g),
		newSelectCmd(g),
		newOlderCmd(g),
		newTimelineCmd(g),
		newSendCmd(g),
		newLocationCmd(g),
		newRevokeCmd(g),
		newReadCmd(g),
		newRoomStatusCmd(g),
		newTypingCmd(g),
		newGalleryCmd(g),
		newWatchCmd(g),
	)
	return root
}

// withClient dials the session daemon and runs fn with a request context.
func (g *globals) withClient(cmd *cobra.Command, fn func(ctx context.Context, c *api.Client) error) error {
	c, err := api.Dial(session.SocketPath(g.session))
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	defer cancel()
	return g.explain(fn(ctx, c))
}

// explain turns an unreachable socket into a hint about the daemon.
func (g *globals) explain(err error) error {
	if err == nil || grpcstatus.Code(err) != codes.Unavailable {
		return err
	}
	holder, inspectErr := lock.Inspect(session.Dir(g.session))
	if inspectErr == nil && holder == nil {
		return fmt.Errorf("daemon for session %q is not running (start imsyncd --session %s)", g.session, g.session)
	}
	return err
}

func (g *globals) output(v any, text func()) {
	if !g.json {
		text()
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
