package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	natspkg "github.com/brojonat/chutulu/service/nats"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func eventsCommands() *cli.Command {
	filterFlag := &cli.StringFlag{
		Name:    "filter",
		Aliases: []string{"f"},
		Usage:   "jq expression, only events for which it is truthy are printed",
	}
	return &cli.Command{
		Name:  "events",
		Usage: "Watch fire events",
		Subcommands: []*cli.Command{
			{
				Name:      "stream",
				Usage:     "Stream fire events from the server via SSE (HTTP)",
				ArgsUsage: "[PLAYER]",
				Flags:     []cli.Flag{filterFlag},
				Action:    streamEventsAction,
			},
			{
				Name:      "subscribe",
				Usage:     "Subscribe to fire events directly on NATS",
				ArgsUsage: "[PLAYER]",
				Description: `Subscribe to fire events published to NATS.

Events are published to the subject: actions.fire.{player}

Example:
  chutulu events subscribe 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM --json`,
				Flags:  []cli.Flag{filterFlag},
				Action: subscribeEventsAction,
			},
		},
	}
}

// eventPrinter writes fire events that pass an optional jq filter.
type eventPrinter struct {
	w          io.Writer
	filter     *gojq.Code
	jsonOutput bool
}

func newEventPrinter(c *cli.Context) (*eventPrinter, error) {
	p := &eventPrinter{w: c.App.Writer, jsonOutput: c.Bool("json")}
	if expr := c.String("filter"); expr != "" {
		code, err := compileJQ(expr)
		if err != nil {
			return nil, err
		}
		p.filter = code
	}
	return p, nil
}

// matches reports whether the filter yields a truthy value for event. A
// filter error counts as no match.
func (p *eventPrinter) matches(event *natspkg.FireEvent) bool {
	if p.filter == nil {
		return true
	}
	input, err := toJQValue(event)
	if err != nil {
		return false
	}
	iter := p.filter.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			return true
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
}

func (p *eventPrinter) print(event *natspkg.FireEvent) {
	if !p.matches(event) {
		return
	}
	if p.jsonOutput {
		data, _ := json.Marshal(event)
		fmt.Fprintln(p.w, string(data))
		return
	}
	fmt.Fprintln(p.w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintf(p.w, "Player:        %s\n", event.Player)
	fmt.Fprintf(p.w, "Token account: %s\n", event.PlayerTokenAccount)
	fmt.Fprintf(p.w, "Fee payer:     %s\n", event.FeePayer)
	fmt.Fprintf(p.w, "Blockhash:     %s\n", event.Blockhash)
	fmt.Fprintf(p.w, "Built:         %s\n", event.BuiltAt.Format(time.RFC3339))
	fmt.Fprintln(p.w)
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

// signalContext is cancelled on interrupt.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func streamEventsAction(c *cli.Context) error {
	player := c.Args().First()
	printer, err := newEventPrinter(c)
	if err != nil {
		return err
	}

	url := strings.TrimSuffix(c.String("server-url"), "/") + "/events"
	if player != "" {
		url += "/" + player
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// No timeout for streaming
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	err = readSSE(resp.Body, func(name, data string) error {
		return handleSSEEvent(printer, name, data)
	})
	if err != nil && ctx.Err() != nil {
		// Context cancelled (user interrupt)
		if !printer.jsonOutput {
			fmt.Fprintln(os.Stderr, "\nDisconnected")
		}
		return nil
	}
	return err
}

// readSSE parses a server-sent event stream and calls handle once per
// complete event. Comment lines are skipped.
func readSSE(r io.Reader, handle func(name, data string) error) error {
	scanner := bufio.NewScanner(r)
	var currentEvent, currentData string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line indicates end of event
		if line == "" {
			if currentEvent != "" && currentData != "" {
				if err := handle(currentEvent, currentData); err != nil {
					return err
				}
			}
			currentEvent = ""
			currentData = ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			currentData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}

func handleSSEEvent(p *eventPrinter, name, data string) error {
	switch name {
	case "connected":
		if !p.jsonOutput {
			var info map[string]string
			if err := json.Unmarshal([]byte(data), &info); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ Streaming fire events for %s (Ctrl+C to stop)\n\n", info["player"])
		}
		return nil

	case "fire":
		var event natspkg.FireEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
			return nil
		}
		p.print(&event)
		return nil

	default:
		// Unknown event type, ignore
		return nil
	}
}

func subscribeEventsAction(c *cli.Context) error {
	player := c.Args().First()
	printer, err := newEventPrinter(c)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	conn, err := natspkg.NewPublisher(c.String("nats-url"), nil, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	return subscribeEvents(ctx, conn, player, printer)
}

type fireSubscriber interface {
	SubscribeFire(player string, fn func(*natspkg.FireEvent)) (func() error, error)
}

// subscribeEvents prints events from sub until ctx is done.
func subscribeEvents(ctx context.Context, sub fireSubscriber, player string, printer *eventPrinter) error {
	// NATS callbacks run on their own goroutine
	events := make(chan *natspkg.FireEvent, 64)
	unsubscribe, err := sub.SubscribeFire(player, func(e *natspkg.FireEvent) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	if !printer.jsonOutput {
		target := player
		if target == "" {
			target = "all players"
		}
		fmt.Fprintf(os.Stderr, "📡 Subscribed to fire events for %s (Ctrl+C to stop)\n\n", target)
	}

	for {
		select {
		case event := <-events:
			printer.print(event)
		case <-ctx.Done():
			return nil
		}
	}
}
