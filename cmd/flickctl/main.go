// flickctl is the one-shot command line for a flick session: inspect
// conversations and history over REST, send over a short-lived gateway
// connection, and manage per-conversation settings.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/flicksocial/flick/internal/api"
	"github.com/flicksocial/flick/internal/bus"
	"github.com/flicksocial/flick/internal/config"
	"github.com/flicksocial/flick/internal/message"
	"github.com/flicksocial/flick/internal/session"
	"github.com/flicksocial/flick/internal/streak"
	"github.com/flicksocial/flick/internal/transport"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const commandTimeout = 15 * time.Second

var (
	sessionFlag string
	jsonFlag    bool
)

func main() {
	root := &cobra.Command{
		Use:           "flickctl",
		Short:         "Inspect and drive a flick chat session",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&sessionFlag, "session", "", "session name (overrides config default)")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")

	root.AddCommand(
		newLoginCmd(),
		newChatsCmd(),
		newMessagesCmd(),
		newSendCmd(),
		newShareCmd(),
		newStreakCmd(),
		newReadCmd(),
		newDisappearingCmd(),
		newDeleteCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type env struct {
	session string
	cfg     *config.Config
	client  *api.Client
}

func newEnv() (*env, error) {
	name := session.Resolve(sessionFlag)
	if err := session.ValidateName(name); err != nil {
		return nil, err
	}
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	ts := session.NewFileTokenSource(name)
	return &env{
		session: name,
		cfg:     cfg,
		client:  api.NewClient(cfg.API.BaseURL, ts),
	}, nil
}

func newLoginCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the API token for this session",
		RunE: func(_ *cobra.Command, _ []string) error {
			if token == "" {
				return fmt.Errorf("--token is required")
			}
			name := session.Resolve(sessionFlag)
			if err := session.ValidateName(name); err != nil {
				return err
			}
			if err := session.SaveToken(name, token); err != nil {
				return err
			}
			fmt.Printf("token saved for session %q\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token")
	return cmd
}

func newChatsCmd() *cobra.Command {
	var search, cursor string
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List conversations, most recent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			page, err := e.client.GetConversations(ctx, search, cursor, e.cfg.Paging.ConversationLimit)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(page)
			}
			now := time.Now()
			for _, conv := range page.Data {
				state := streak.Derive(conv.LastInteractionAt, now, conv.StreakCount, conv.LastStreakCount)
				fmt.Printf("%s  %-20s  unread=%d  %s\n",
					conv.ID, conv.Participant.Username, conv.UnreadCount, streakLabel(state))
			}
			if page.NextCursor != "" {
				fmt.Printf("next cursor: %s\n", page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter by participant name")
	cmd.Flags().StringVar(&cursor, "cursor", "", "page cursor")
	return cmd
}

func newMessagesCmd() *cobra.Command {
	var cursor string
	cmd := &cobra.Command{
		Use:   "messages <conversation-id>",
		Short: "Show a conversation's history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			page, err := e.client.GetMessages(ctx, args[0], cursor, e.cfg.Paging.MessageLimit)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(page)
			}
			for _, m := range page.Messages {
				fmt.Printf("%s  %s  %s\n", m.CreatedAt.Local().Format(time.Stamp), m.SenderID, renderBody(m))
			}
			if page.HasNextPage {
				fmt.Printf("next cursor: %s\n", page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cursor, "cursor", "", "page cursor")
	return cmd
}

func newSendCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "send <receiver-id> <content>",
		Short: "Send a message over the gateway",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k := message.Kind(kind)
			if !k.Valid() {
				return fmt.Errorf("unknown message type %q", kind)
			}
			e, err := newEnv()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			return sendOnce(ctx, e, args[0], k, args[1])
		},
	}
	cmd.Flags().StringVar(&kind, "type", "text", "message type (text, gif, image)")
	return cmd
}

// sendOnce dials the gateway, emits one message, and waits for the ack.
func sendOnce(ctx context.Context, e *env, receiverID string, kind message.Kind, content string) error {
	ts := session.NewFileTokenSource(e.session)
	conn := transport.New(e.cfg.Realtime.URL, ts, bus.New(), zap.NewNop())
	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect gateway: %w", err)
	}
	defer conn.Disconnect()

	payload := transport.SendMessagePayload{
		ReceiverID: receiverID,
		Content:    content,
		Type:       string(kind),
		UUID:       uuid.NewString(),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	acked := make(chan error, 1)
	conn.Emit(transport.EventSendMessage, payload, func(err error) { acked <- err })

	select {
	case err := <-acked:
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	fmt.Printf("sent %s\n", payload.UUID)
	return nil
}

func newShareCmd() *cobra.Command {
	var kind, imageURL, caption string
	cmd := &cobra.Command{
		Use:   "share <post-id> <receiver-id>...",
		Short: "Share a post or reel with one or more users",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != string(message.KindPost) && kind != string(message.KindReel) {
				return fmt.Errorf("unknown share type %q", kind)
			}
			e, err := newEnv()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			return sharePost(ctx, e, kind, args[0], imageURL, caption, args[1:])
		},
	}
	cmd.Flags().StringVar(&kind, "type", "post", "share type (post, reel)")
	cmd.Flags().StringVar(&imageURL, "image", "", "post media URL")
	cmd.Flags().StringVar(&caption, "caption", "", "post caption")
	return cmd
}

// sharePost dials the gateway, emits one sendPost, and waits for the
// bulk completion push. Post sends are confirmed by bulkPostComplete or
// bulkPostError, not by the emit ack.
func sharePost(ctx context.Context, e *env, kind, postID, imageURL, caption string, receiverIDs []string) error {
	ts := session.NewFileTokenSource(e.session)
	conn := transport.New(e.cfg.Realtime.URL, ts, bus.New(), zap.NewNop())
	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect gateway: %w", err)
	}
	defer conn.Disconnect()

	done := make(chan error, 1)
	okID := conn.On(transport.EventBulkPostComplete, func(transport.InboundEvent) {
		select {
		case done <- nil:
		default:
		}
	})
	defer conn.Off(transport.EventBulkPostComplete, okID)
	errID := conn.On(transport.EventBulkPostError, func(evt transport.InboundEvent) {
		select {
		case done <- fmt.Errorf("share failed: %s", evt.Error):
		default:
		}
	})
	defer conn.Off(transport.EventBulkPostError, errID)

	payload := transport.SendPostPayload{
		Type:        kind,
		ReceiverIDs: receiverIDs,
		PostID:      postID,
		Post:        &message.PostRef{ID: postID, ImageURL: imageURL, Caption: caption},
	}
	acked := make(chan error, 1)
	conn.Emit(transport.EventSendPost, payload, func(err error) { acked <- err })
	select {
	case err := <-acked:
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	fmt.Printf("shared %s with %d user(s)\n", postID, len(receiverIDs))
	return nil
}

func newStreakCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streak",
		Short: "Inspect or recover a conversation streak",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <conversation-id>",
			Short: "Show the derived streak state",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := newEnv()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
				defer cancel()

				conv, err := findConversation(ctx, e, args[0])
				if err != nil {
					return err
				}
				state := streak.Derive(conv.LastInteractionAt, time.Now(), conv.StreakCount, conv.LastStreakCount)
				if jsonFlag {
					return outputJSON(state)
				}
				fmt.Printf("streak: %s\n", streakLabel(state))
				fmt.Printf("count: %d  last: %d  active: %v  danger: %v  recoverable: %v\n",
					state.CurrentCount, state.LastStreakCount, state.IsActive, state.IsDanger, state.CanRecover)
				return nil
			},
		},
		&cobra.Command{
			Use:   "recover <conversation-id>",
			Short: "Recover an expired streak within the recovery window",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := newEnv()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
				defer cancel()

				conv, err := e.client.RecoverStreak(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonFlag {
					return outputJSON(conv)
				}
				fmt.Printf("streak recovered: count=%d\n", conv.StreakCount)
				return nil
			},
		},
	)
	return cmd
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <conversation-id>",
		Short: "Mark a conversation's messages read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			return e.client.MarkMessagesRead(ctx, args[0])
		},
	}
}

func newDisappearingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disappearing <conversation-id> <on|off>",
		Short: "Toggle disappearing messages",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var disappear bool
			switch args[1] {
			case "on":
				disappear = true
			case "off":
				disappear = false
			default:
				return fmt.Errorf("expected on or off, got %q", args[1])
			}
			e, err := newEnv()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			return e.client.ChangeMessageDeletionSettings(ctx, args[0], disappear)
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			return e.client.DeleteChat(ctx, args[0])
		},
	}
}

// findConversation pages through the list until the id shows up.
func findConversation(ctx context.Context, e *env, conversationID string) (*api.Conversation, error) {
	cursor := ""
	for {
		page, err := e.client.GetConversations(ctx, "", cursor, e.cfg.Paging.ConversationLimit)
		if err != nil {
			return nil, err
		}
		for i := range page.Data {
			if page.Data[i].ID == conversationID {
				return &page.Data[i], nil
			}
		}
		if page.NextCursor == "" {
			return nil, fmt.Errorf("conversation %s not found", conversationID)
		}
		cursor = page.NextCursor
	}
}

func streakLabel(s streak.State) string {
	switch {
	case s.CanRecover:
		return "expired (recoverable, was " + strconv.Itoa(s.LastStreakCount) + ")"
	case s.IsDanger:
		return "🔥 " + strconv.Itoa(s.CurrentCount) + " (at risk)"
	case s.IsActive:
		return "🔥 " + strconv.Itoa(s.CurrentCount)
	default:
		return "no streak"
	}
}

func renderBody(m *message.Message) string {
	switch m.Kind {
	case message.KindText:
		return m.Content
	case message.KindImage:
		return "[photo] " + m.Content
	case message.KindGif:
		return "[gif " + m.Content + "]"
	case message.KindPost:
		return "[shared post]"
	case message.KindReel:
		return "[shared reel]"
	default:
		return "[" + string(m.Kind) + "]"
	}
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
