package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/imsync/internal/api"
	"github.com/matheus3301/imsync/internal/config"
	"github.com/matheus3301/imsync/internal/session"
)

func newInitCmd() *cobra.Command {
	cfg := config.Default()
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write ~/.imsync/config.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := session.ConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.DefaultSession, "default-session", "", "session used when --session is omitted")
	f.StringVar(&cfg.UserID, "user-id", "", "account user id")
	f.StringVar(&cfg.Token, "token", "", "account token")
	f.StringVar(&cfg.GatewayAddr, "gateway", "", "websocket gateway address")
	f.StringVar(&cfg.APIAddr, "api", "", "user directory HTTP address")
	f.StringVar(&cfg.AdminUserID, "admin-user-id", "", "service account hidden from member lists")
	f.StringVar(&cfg.Grouping, "grouping", cfg.Grouping, "message grouping policy (strict|sender)")
	f.BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func newStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *api.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				g.output(st, func() {
					fmt.Printf("Session:    %s\n", st.Session)
					fmt.Printf("Connection: %s\n", st.Connection)
					fmt.Printf("Rooms:      %d\n", st.Rooms)
					if st.SelectedGroupID != "" {
						fmt.Printf("Selected:   %s\n", st.SelectedGroupID)
					}
					fmt.Printf("Uptime:     %s\n", time.Duration(st.UptimeMs)*time.Millisecond)
				})
				return nil
			})
		},
	}
}

func newRoomsCmd(g *globals) *cobra.Command {
	var req api.ListRoomsRequest
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *api.Client) error {
				rooms, err := c.ListRooms(ctx, req)
				if err != nil {
					return err
				}
				g.output(rooms, func() {
					if len(rooms) == 0 {
						fmt.Println("No rooms.")
						return
					}
					for _, r := range rooms {
						printRoom(r)
					}
				})
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Category, "category", "", "all, open or close")
	f.StringVar(&req.Search, "search", "", "case-insensitive name filter")
	f.StringVar(&req.Sort, "sort", "", "newest, alphaAZ or alphaZA")
	f.StringVar(&req.Locale, "locale", "", "collation locale for name sorts, e.g. vi")
	return cmd
}

func printRoom(r api.Room) {
	flags := ""
	if r.UnreadCount > 0 {
		flags += fmt.Sprintf(" (%d unread)", r.UnreadCount)
	}
	if r.Typing {
		flags += " typing..."
	}
	last := ""
	if r.LastMessage != nil {
		last = r.LastMessage.Preview
	}
	fmt.Printf("%-2s %-24s %-5s %-20s %s%s\n", r.Symbol, r.GroupID, r.Status, sanitize(r.Name), sanitize(last), flags)
}

func newSelectCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "select <group-id>",
		Short: "Make a room active and load its newest messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *api.Client) error {
				resp, err := c.SelectRoom(ctx, args[0])
				if err != nil {
					return err
				}
				g.output(resp, func() {
					printRoom(resp.Room)
					printTimeline(resp.Timeline)
				})
				return nil
			})
		},
	}
}

func newOlderCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "older",
		Short: "Load the previous page of the active room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *api.Client) error {
				resp, err := c.LoadOlder(ctx)
				if err != nil {
					return err
				}
				g.output(resp, func() {
					fmt.Printf("Loaded %d older messages (%s).\n", resp.Added, resp.Timeline.State)
				})
				return nil
			})
		},
	}
}

func newTimelineCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "timeline",
		Short: "Print the grouped timeline of the active room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *api.Client) error {
				tl, err := c.Timeline(ctx)
				if err != nil {
					return err
				}
				g.output(tl, func() { printTimeline(*tl) })
				return nil
			})
		},
	}
}

func printTimeline(tl api.Timeline) {
	if tl.Count == 0 {
		fmt.Printf("No messages (%s).\n", tl.State)
		return
	}
	for _, b := range tl.Bursts {
		ts := time.UnixMilli(b.SendTime).Format("2006-01-02 15:04")
		fmt.Printf("\n%s  %s\n", b.SendID, ts)
		for _, m := range b.Items {
			fmt.Printf("  [%s] %s\n", m.ClientMsgID, sanitize(m.Preview))
		}
	}
}

func newSendCmd(g *globals) *cobra.Command {
	var quoted string
	cmd := &cobra.Command{
		Use:   "send <text>...",
		Short: "Send a text message to the active room",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *api.Client) error {
				id, err := c.SendText(ctx, strings.Join(args, " "), quoted)
				if err != nil {
					return err
				}
				g.output(api.SendResponse{ClientMsgID: id}, func() { fmt.Printf("Queued %s\n", id) })
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&quoted, "reply", "", "client message id to quote")
	return cmd
}

func newLocationCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "location <lat> <lng> [description]",
		Short: "Send a location to the active room",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("latitude: %w", err)
			}
			lng, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("longitude: %w", err)
			}
			req := api.SendLocationRequest{Latitude: lat, Longitude: lng}
			if len(args) == 3 {
				req.Description = args[2]
			}
			return g.withClient(cmd, func(ctx context.Context, c *api.Client) error {
				id, err := c.SendLocation(ctx, req)
				if err != nil {
					return err
				}
				g.output(api.SendResponse{ClientMsgID: id}, func() { fmt.Printf("Queued %s\n", id) })
				return nil
			})
		},
	}
}

func newRevokeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <client-msg-id>",
		Short: "Recall the message group containing a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *api.Client) error {
				n, err := c.Revoke(ctx, args[0])
				if err != nil {
					return err
				}
				g.output(api.RevokeResponse{Revoked: n}, func() { fmt.Printf("Recalled %d messages.\n", n) })
				return nil
			})
		},
	}
}

func newReadCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Mark the active room read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *api.Client) error {
				return c.MarkRead(ctx)
			})
		},
	}
}

func newRoomStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:       "set-status <group-id> <open|close>",
		Short:     "Set the workflow status of a room",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"open", "close"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *api.Client) error {
				return c.SetRoomStatus(ctx, args[0], args[1])
			})
		},
	}
}

func newTypingCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "typing",
		Short: "Signal that you are typing in the active room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *api.Client) error {
				return c.AnnounceTyping(ctx)
			})
		},
	}
}

func newGalleryCmd(g *globals) *cobra.Command {
	var conv string
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "List the pictures, videos and files of a conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *api.Client) error {
				msgs, err := c.MediaGallery(ctx, conv)
				if err != nil {
					return err
				}
				g.output(msgs, func() {
					for _, m := range msgs {
						fmt.Printf("%-8s %s %s\n", m.ContentType, m.ClientMsgID, m.Content.URL)
					}
				})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&conv, "conversation", "", "conversation id (default: active room)")
	return cmd
}

func newWatchCmd(g *globals) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream view events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := api.Dial(session.SocketPath(g.session))
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			err = c.WatchEvents(cmd.Context(), prefix, func(evt api.Event) error {
				if g.json {
					g.output(evt, nil)
					return nil
				}
				ts := time.UnixMilli(evt.OccurredAtMs).Format("15:04:05")
				fmt.Printf("%s %-18s %d bytes\n", ts, evt.Kind, len(evt.Payload))
				return nil
			})
			if cmd.Context().Err() != nil {
				return nil
			}
			return g.explain(err)
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "view.", "event kind prefix")
	return cmd
}
