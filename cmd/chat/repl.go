package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/ashureev/shsh-chat/internal/session"
	"golang.org/x/sync/errgroup"
)

type commandKind int

const (
	cmdSend commandKind = iota
	cmdNew
	cmdSwitch
	cmdList
	cmdDelete
	cmdDrop
	cmdHelp
	cmdQuit
)

type command struct {
	kind  commandKind
	text  string
	msgID int64
}

const helpText = `commands:
  /new              start a new conversation
  /switch <id>      switch to a cached conversation
  /list             list conversations
  /delete <msg-id>  delete a message from the current conversation
  /drop <chat-id>   delete a conversation
  /help             show this help
  /quit             exit`

// parseCommand turns one input line into a command. Lines not starting with
// "/" are messages; "//" escapes a message that starts with a slash.
func parseCommand(line string) (command, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return command{kind: cmdSend, text: line}, nil
	}
	if strings.HasPrefix(trimmed, "//") {
		return command{kind: cmdSend, text: trimmed[1:]}, nil
	}

	name, arg, _ := strings.Cut(trimmed[1:], " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "new":
		return command{kind: cmdNew}, nil
	case "switch":
		if arg == "" {
			return command{}, errors.New("usage: /switch <id>")
		}
		return command{kind: cmdSwitch, text: arg}, nil
	case "list", "ls":
		return command{kind: cmdList}, nil
	case "delete":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return command{}, errors.New("usage: /delete <msg-id>")
		}
		return command{kind: cmdDelete, msgID: id}, nil
	case "drop":
		if arg == "" {
			return command{}, errors.New("usage: /drop <chat-id>")
		}
		return command{kind: cmdDrop, text: arg}, nil
	case "help", "?":
		return command{kind: cmdHelp}, nil
	case "quit", "exit", "q":
		return command{kind: cmdQuit}, nil
	default:
		return command{}, fmt.Errorf("unknown command /%s (try /help)", name)
	}
}

// runREPL reads commands from in and renders session updates to out until
// /quit, end of input or ctx cancellation.
func runREPL(ctx context.Context, e *session.Engine, in io.Reader, out io.Writer) error {
	r := newRenderer(out)
	r.printf("%s\n", "connected as chat client; type /help for commands")

	g, gctx := errgroup.WithContext(ctx)

	// The scanner cannot be interrupted, so it runs outside the group.
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-gctx.Done():
				return
			}
		}
	}()

	g.Go(func() error {
		updates, notices := e.Updates(), e.Notices()
		for updates != nil || notices != nil {
			select {
			case <-gctx.Done():
				return nil
			case v, ok := <-updates:
				if !ok {
					updates = nil
					continue
				}
				r.view(v)
			case n, ok := <-notices:
				if !ok {
					notices = nil
					continue
				}
				r.notice(n)
			}
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return errQuit
				}
				cmd, err := parseCommand(line)
				if err != nil {
					r.printf("%v\n", err)
					continue
				}
				if err := execute(gctx, e, r, cmd); err != nil {
					if errors.Is(err, errQuit) {
						return err
					}
					r.printf("error: %v\n", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

func execute(ctx context.Context, e *session.Engine, r *renderer, cmd command) error {
	switch cmd.kind {
	case cmdSend:
		return e.SendMessage(ctx, cmd.text)
	case cmdNew:
		if err := e.SwitchConversation(ctx, ""); err != nil {
			return err
		}
		r.printf("new conversation; it is saved when you send the first message\n")
		return nil
	case cmdSwitch:
		return e.SwitchConversation(ctx, cmd.text)
	case cmdDelete:
		return e.DeleteMessage(ctx, cmd.msgID)
	case cmdDrop:
		return e.DeleteConversation(ctx, cmd.text)
	case cmdList:
		v, err := e.View(ctx)
		if err != nil {
			return err
		}
		r.conversations(v)
		return nil
	case cmdHelp:
		r.printf("%s\n", helpText)
		return nil
	case cmdQuit:
		return errQuit
	}
	return nil
}

// renderer prints views as an append-only transcript.
type renderer struct {
	mu  sync.Mutex
	out io.Writer

	activeID string
	printed  []int64
	state    session.View
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

func (r *renderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *renderer) view(v session.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.ActiveID != r.activeID {
		r.activeID = v.ActiveID
		r.printed = r.printed[:0]
		if v.ActiveID != "" {
			fmt.Fprintf(r.out, "== %s (%s) ==\n", titleOf(v), v.ActiveID)
		}
	}

	// A deletion shrinks the transcript; reprint from scratch.
	if !isPrefix(r.printed, v) {
		r.printed = r.printed[:0]
		fmt.Fprintln(r.out, "-- conversation updated --")
	}
	for _, m := range v.Messages[len(r.printed):] {
		fmt.Fprintln(r.out, formatMessage(m))
		r.printed = append(r.printed, m.ID)
	}

	if v.Busy && (v.State != r.state.State || !r.state.Busy) {
		fmt.Fprintf(r.out, "  ... %s\n", v.State)
	}
	r.state = v
}

func (r *renderer) notice(n session.Notice) {
	r.printf("! %s\n", n)
}

func (r *renderer) conversations(v session.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(v.Conversations) == 0 {
		fmt.Fprintln(r.out, "no conversations")
		return
	}
	for _, c := range v.Conversations {
		marker := " "
		if c.ID == v.ActiveID {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %s  %s\n", marker, c.ID, c.Title)
	}
}

func isPrefix(printed []int64, v session.View) bool {
	if len(printed) > len(v.Messages) {
		return false
	}
	for i, id := range printed {
		if v.Messages[i].ID != id {
			return false
		}
	}
	return true
}

func titleOf(v session.View) string {
	for _, c := range v.Conversations {
		if c.ID == v.ActiveID {
			return c.Title
		}
	}
	return "untitled"
}
