package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ent0n29/solace/internal/app"
	"github.com/ent0n29/solace/internal/turn"
)

const (
	chatGreeting = "I'm here to listen and provide support. Feel free to share what's on your mind.\nType 'quit' to end the conversation."
	chatGoodbye  = "Take care of yourself. Remember, seeking help is a sign of strength."
	chatEOFBye   = "Take care of yourself. Remember, you're not alone."
)

var chatActor string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant from the terminal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		built, err := app.Build(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			built.Orchestrator.Wait()
			if err := built.Cleanup(); err != nil {
				logger.Warn("cleanup failed", zap.Error(err))
			}
		}()
		return runChat(cmd.Context(), built.Orchestrator, cmd.InOrStdin(), cmd.OutOrStdout(), chatActor, uuid.NewString())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatActor, "actor", turn.AnonymousActor, "actor id recorded with each turn")
}

type turnHandler interface {
	HandleTurn(ctx context.Context, actorID, sessionID, message string) (turn.Result, error)
}

// runChat reads one message per line until EOF or a quit word. Lines have no length limit.
func runChat(ctx context.Context, turns turnHandler, in io.Reader, out io.Writer, actorID, sessionID string) error {
	fmt.Fprintln(out, "Solace support chat")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out, chatGreeting)
	fmt.Fprintln(out)

	reader := bufio.NewReader(in)
	done := false
	for !done {
		fmt.Fprint(out, "You: ")
		raw, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return err
			}
			if strings.TrimSpace(raw) == "" {
				fmt.Fprintf(out, "\n\nAgent: %s\n", chatEOFBye)
				return nil
			}
			done = true
		}
		line := strings.TrimSpace(raw)
		switch strings.ToLower(line) {
		case "quit", "exit", "bye":
			fmt.Fprintf(out, "\nAgent: %s\n", chatGoodbye)
			return nil
		case "":
			continue
		}

		res, err := turns.HandleTurn(ctx, actorID, sessionID, line)
		if err != nil {
			if errors.Is(err, turn.ErrInvalidInput) {
				continue
			}
			return err
		}
		fmt.Fprintf(out, "\nAgent: %s\n\n", res.Reply)
	}
	fmt.Fprintf(out, "\nAgent: %s\n", chatEOFBye)
	return nil
}
