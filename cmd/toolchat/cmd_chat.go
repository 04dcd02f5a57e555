package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/user/toolchat/internal/render"
	"github.com/user/toolchat/internal/session"
)

var chatOpts backendOptions

func init() {
	chatCmd.Flags().StringVar(&chatOpts.backend, "backend", "", "model backend: gemini or groq (default from config)")
	chatCmd.Flags().StringVar(&chatOpts.systemPromptFile, "system-prompt-file", "", "file holding a custom system prompt template")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Start an interactive chat, or send a single message",
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)
	term := render.NewTerminal(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, closeProvider, err := newRuntime(ctx, cfg, chatOpts)
	if err != nil {
		return reportSetupError(term, err)
	}
	defer closeProvider()

	sess := rt.NewSession()

	if len(args) > 0 {
		return sendOne(ctx, term, sess, strings.Join(args, " "))
	}

	for _, turn := range sess.Snapshot() {
		if err := term.Render(string(turn.Role), turn.Content); err != nil {
			return err
		}
	}

	interactive := isatty.IsTerminal(os.Stdin.Fd())
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/new":
			sess = rt.NewSession()
			for _, turn := range sess.Snapshot() {
				term.Render(string(turn.Role), turn.Content)
			}
			continue
		}
		if !interactive {
			term.Render("user", line)
		}

		term.Status("Thinking...")
		reply, err := sess.Send(ctx, line)
		if err != nil {
			term.Error(err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if err := term.Render("assistant", reply); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func sendOne(ctx context.Context, term render.Sink, sess *session.Session, text string) error {
	term.Status("Thinking...")
	reply, err := sess.Send(ctx, text)
	if err != nil {
		term.Error(err)
		return err
	}
	return term.Render("assistant", reply)
}
