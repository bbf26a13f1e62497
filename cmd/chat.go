package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/killallgit/normachat/pkg/chat"
	"github.com/killallgit/normachat/pkg/config"
	"github.com/killallgit/normachat/pkg/logger"
	"github.com/killallgit/normachat/pkg/optimistic"
	"github.com/killallgit/normachat/pkg/rag"
)

// errReported is returned once the failure has already been printed
var errReported = errors.New("message failed")

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the legal assistant",
	Long: `Starts an interactive chat, or sends a single message when one is given.

Inside the chat:
  /like, /dislike   rate the last answer
  /unrate           remove the rating of the last answer
  /status           show the session state
  /quit             leave`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().String("type", "", "chat type sent with every message (default from chat.type)")
	chatCmd.Flags().String("tone", "", "answer tone (default from chat.tone)")
	chatCmd.Flags().String("resume", "", "continue an existing conversation")
	chatCmd.Flags().Bool("local", false, "answer from the local index instead of the backend")
	rootCmd.AddCommand(chatCmd)
}

// console prints streamed replies incrementally
type console struct {
	mu      sync.Mutex
	out     io.Writer
	printed int
}

func (c *console) handlers() chat.Handlers {
	return chat.Handlers{
		OnPartial: func(text string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.printed == 0 {
				fmt.Fprint(c.out, botStyle.Render("normachat> "))
			}
			if len(text) > c.printed {
				fmt.Fprint(c.out, text[c.printed:])
				c.printed = len(text)
			}
		},
		OnComplete: func(msg chat.Message) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.printed == 0 {
				fmt.Fprint(c.out, botStyle.Render("normachat> ")+msg.Content)
			}
			fmt.Fprintln(c.out)
			renderMessageFooter(c.out, msg)
			c.printed = 0
		},
		OnConversationCreated: func(id string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			fmt.Fprintln(c.out, dimStyle.Render("conversación "+id))
		},
		OnError: func(err error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.printed > 0 {
				fmt.Fprintln(c.out)
				c.printed = 0
			}
			renderError(c.out, err)
		},
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	chatType, _ := cmd.Flags().GetString("type")
	if chatType == "" {
		chatType = cfg.Chat.Type
	}
	tone, _ := cmd.Flags().GetString("tone")
	if tone == "" {
		tone = cfg.Chat.Tone
	}
	resume, _ := cmd.Flags().GetString("resume")
	local, _ := cmd.Flags().GetBool("local")

	ctx, cancel := commandContext()
	defer cancel()
	out := cmd.OutOrStdout()
	cons := &console{out: out}

	var (
		transport chat.Transport
		opts      []chat.StreamerOption
		session   = chat.NewSession(chatType, tone)
	)

	if local {
		if resume != "" {
			return fmt.Errorf("--resume needs the backend")
		}
		col, closeStore, err := openCollection()
		if err != nil {
			return err
		}
		defer closeStore()
		pipeline, err := newPipeline(col)
		if err != nil {
			return err
		}
		transport = rag.NewLocalTransport(pipeline)
	} else {
		client, err := newBackend()
		if err != nil {
			return err
		}
		transport = client

		dispatcher := optimistic.NewDispatcher(
			optimistic.WithTimeout(cfg.Backend.Timeout),
			optimistic.WithFailureHandler(func(f optimistic.Failure) {
				cons.handlers().OnError(f.Err)
			}),
		)
		defer func() {
			flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelFlush()
			if err := dispatcher.Flush(flushCtx); err != nil {
				logger.Warn("chat: pending feedback not flushed: %v", err)
			}
			dispatcher.Close()
		}()
		opts = append(opts, chat.WithFeedbackClient(client, dispatcher))

		if resume != "" {
			session, err = client.ResumeSession(ctx, resume, tone)
			if err != nil {
				return err
			}
			if session.Conversation != nil {
				renderConversation(out, *session.Conversation, session.Messages, nil)
			}
		}
	}

	streamer := chat.NewStreamer(transport, session, cons.handlers(), opts...)
	defer streamer.Close()

	if len(args) > 0 {
		return send(ctx, streamer, strings.Join(args, " "))
	}
	return repl(ctx, cmd.InOrStdin(), out, streamer)
}

// send returns errors not already shown through the handlers
func send(ctx context.Context, streamer *chat.Streamer, text string) error {
	err := streamer.Send(ctx, text)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrBusy), errors.Is(err, chat.ErrClosed):
		return err
	default:
		return errReported
	}
}

func repl(ctx context.Context, in io.Reader, out io.Writer, streamer *chat.Streamer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, userStyle.Render("vos> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/status":
			fmt.Fprintln(out, dimStyle.Render(streamer.Summary()))
			continue
		case "/like", "/dislike", "/unrate":
			rate(out, streamer, line)
			continue
		}

		if err := send(ctx, streamer, line); err != nil && !errors.Is(err, errReported) {
			renderError(out, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// rate applies feedback to the last assistant message
func rate(out io.Writer, streamer *chat.Streamer, command string) {
	var kind chat.FeedbackKind
	switch command {
	case "/like":
		kind = chat.FeedbackLike
	case "/dislike":
		kind = chat.FeedbackDislike
	}

	messages := streamer.Session().Messages
	for i := len(messages) - 1; i >= 0; i-- {
		if !messages[i].IsAssistant() {
			continue
		}
		if err := streamer.SetFeedback(messages[i].ID, kind); err != nil {
			renderError(out, err)
			return
		}
		if kind == "" {
			fmt.Fprintln(out, dimStyle.Render("calificación eliminada"))
		} else {
			fmt.Fprintln(out, dimStyle.Render("calificada como "+string(kind)))
		}
		return
	}
	renderError(out, errors.New("no hay respuestas para calificar"))
}
