package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/fallback"
	"github.com/ashureev/shsh-chat/internal/identity"
	"github.com/ashureev/shsh-chat/internal/session"
	"github.com/ashureev/shsh-chat/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	sendChatID   string
	sendFallback bool
	sendWait     time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send one message and print the assistant reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendChatID, "chat", "", "Conversation id (default: a new conversation)")
	sendCmd.Flags().BoolVar(&sendFallback, "fallback", false, "Use the request/response HTTP API instead of the stream")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 2*time.Minute, "How long to wait for the reply")
}

func runSend(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	ctx, cancel := context.WithTimeout(cmd.Context(), sendWait)
	defer cancel()

	if sendFallback {
		return sendViaFallback(ctx, cmd, text)
	}

	e, cleanup, err := startEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := e.SwitchConversation(ctx, sendChatID); err != nil {
		return err
	}
	if err := e.SendMessage(ctx, text); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	v, err := awaitTurn(ctx, e)
	for _, m := range v.Messages {
		if m.Sender == domain.SenderAssistant {
			fmt.Fprintln(cmd.OutOrStdout(), formatMessage(m))
		}
	}
	if v.ActiveID != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", v.ActiveID)
	}
	return err
}

// awaitTurn waits for the turn started by SendMessage to end and returns
// the view at that point, holding only the messages after the sent one.
func awaitTurn(ctx context.Context, e *session.Engine) (session.View, error) {
	start, err := e.View(ctx)
	if err != nil {
		return session.View{}, err
	}
	from := len(start.Messages)
	if !start.Busy {
		// Blank text was ignored.
		return session.View{ActiveID: start.ActiveID}, nil
	}

	for {
		select {
		case <-ctx.Done():
			return session.View{}, fmt.Errorf("waiting for reply: %w", ctx.Err())
		case n, ok := <-e.Notices():
			if !ok {
				return session.View{}, session.ErrClosed
			}
			if n.Kind != session.NoticeCache {
				return session.View{}, fmt.Errorf("turn failed: %s", n)
			}
		case v, ok := <-e.Updates():
			if !ok {
				return session.View{}, session.ErrClosed
			}
			if !v.Busy && v.ActiveID == start.ActiveID && len(v.Messages) >= from {
				v.Messages = v.Messages[from:]
				return v, nil
			}
		}
	}
}

func sendViaFallback(ctx context.Context, cmd *cobra.Command, text string) error {
	st, err := store.NewSQLite(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer closeCache(st)

	clientID, err := identity.Resolve(ctx, st)
	if err != nil {
		return err
	}
	chatID := sendChatID
	if chatID == "" {
		chatID = uuid.NewString()
	}

	client, err := fallback.New(cfg.APIURL, clientID, sendWait)
	if err != nil {
		return err
	}
	reply, err := client.SendMessage(ctx, chatID, text)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatMessage(reply))
	fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", chatID)
	return nil
}
