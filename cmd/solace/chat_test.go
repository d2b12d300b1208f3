package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/solace/internal/turn"
)

type scriptedTurns struct {
	messages []string
}

func (s *scriptedTurns) HandleTurn(_ context.Context, actorID, sessionID, message string) (turn.Result, error) {
	s.messages = append(s.messages, message)
	return turn.Result{Reply: "echo: " + message, ActorID: actorID, SessionID: sessionID}, nil
}

func TestRunChatEndsOnQuitWord(t *testing.T) {
	turns := &scriptedTurns{}
	var out bytes.Buffer

	err := runChat(context.Background(), turns, strings.NewReader("hello there\n\n  \nBYE\nnever sent\n"), &out, "u1", "s1")
	require.NoError(t, err)

	assert.Equal(t, []string{"hello there"}, turns.messages)
	assert.Contains(t, out.String(), "Agent: echo: hello there")
	assert.Contains(t, out.String(), chatGoodbye)
	assert.NotContains(t, out.String(), "never sent")
}

func TestRunChatSaysGoodbyeOnEOF(t *testing.T) {
	turns := &scriptedTurns{}
	var out bytes.Buffer

	err := runChat(context.Background(), turns, strings.NewReader("first\nsecond"), &out, "u1", "s1")
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, turns.messages)
	assert.Contains(t, out.String(), chatEOFBye)
}

func TestRunChatAcceptsVeryLongLines(t *testing.T) {
	turns := &scriptedTurns{}
	var out bytes.Buffer
	long := strings.Repeat("a", 200<<10)

	err := runChat(context.Background(), turns, strings.NewReader(long+"\nquit\n"), &out, "u1", "s1")
	require.NoError(t, err)

	require.Len(t, turns.messages, 1)
	assert.Len(t, turns.messages[0], len(long))
	assert.Contains(t, out.String(), chatGoodbye)
}
