package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/matrix-org/peercall/pkg/media"
	"github.com/matrix-org/peercall/pkg/peer"
	"github.com/matrix-org/peercall/pkg/signaling"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const callTimeout = 30 * time.Second

// The part of `*session.Controller` the shell drives.
type calls interface {
	InitiateCall(ctx context.Context, peerID signaling.PeerID, kind media.Kind) error
	Terminate(peerID signaling.PeerID) error
	Presence() []signaling.PeerID
	Sessions() map[signaling.PeerID]peer.State
}

type shell struct {
	calls  calls
	output io.Writer
}

func newShell(calls calls, output io.Writer) *shell {
	return &shell{calls: calls, output: output}
}

// Reads commands line by line until `quit`, the end of the input or the context is done.
func (s *shell) run(ctx context.Context, input io.Reader) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	s.help()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || !s.execute(ctx, line) {
				return
			}
		}
	}
}

// Returns false once the user wants to quit.
func (s *shell) execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	command, args := fields[0], fields[1:]
	switch command {
	case "list":
		peers := s.calls.Presence()
		if len(peers) == 0 {
			fmt.Fprintln(s.output, "nobody is online")
		}
		for _, peerID := range peers {
			fmt.Fprintln(s.output, peerID)
		}

	case "call":
		if len(args) < 1 || len(args) > 2 {
			fmt.Fprintln(s.output, "usage: call <peer> [camera|screen]")
			return true
		}

		var kind media.Kind
		if len(args) == 2 {
			parsed, err := media.ParseKind(args[1])
			if err != nil {
				fmt.Fprintln(s.output, err)
				return true
			}
			kind = parsed
		}

		ctx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		if err := s.calls.InitiateCall(ctx, signaling.PeerID(args[0]), kind); err != nil {
			fmt.Fprintf(s.output, "call failed: %v\n", err)
			return true
		}
		fmt.Fprintf(s.output, "calling %s\n", args[0])

	case "hangup":
		if len(args) != 1 {
			fmt.Fprintln(s.output, "usage: hangup <peer>")
			return true
		}

		if err := s.calls.Terminate(signaling.PeerID(args[0])); err != nil {
			fmt.Fprintf(s.output, "hangup failed: %v\n", err)
		}

	case "status":
		sessions := s.calls.Sessions()
		if len(sessions) == 0 {
			fmt.Fprintln(s.output, "no sessions")
		}

		peers := maps.Keys(sessions)
		slices.Sort(peers)
		for _, peerID := range peers {
			fmt.Fprintf(s.output, "%s: %s\n", peerID, sessions[peerID])
		}

	case "quit", "exit":
		return false

	default:
		s.help()
	}

	return true
}

func (s *shell) help() {
	fmt.Fprintln(s.output, "commands: list | call <peer> [camera|screen] | hangup <peer> | status | quit")
}
