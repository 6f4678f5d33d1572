// Package main provides a terminal chat client for one conversation.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hemeroteca/internal/api"
	"hemeroteca/internal/chat"
	"hemeroteca/internal/config"
	"hemeroteca/internal/models"
	"hemeroteca/internal/realtime"
)

func main() {
	base := flag.String("api", "http://localhost:8375", "API base URL")
	token := flag.String("token", os.Getenv("AUTH_TOKEN"), "Bearer token")
	peer := flag.String("peer", "", "Open the direct conversation with this user id")
	group := flag.String("group", "", "Open this group id")
	conv := flag.String("conv", "", "Open this conversation id")
	transport := flag.String("transport", config.TransportWebSocket, "Realtime transport: websocket or none")
	pageSize := flag.Int("page-size", chat.DefaultPageSize, "History page size")
	flag.Parse()

	if *token == "" {
		log.Fatal("a token is required (-token or AUTH_TOKEN)")
	}

	client := api.New(*base, api.WithToken(*token), api.WithTimeout(15*time.Second))
	var ch realtime.Channel
	if *transport == config.TransportWebSocket {
		ch = realtime.NewWebSocket(realtime.WebSocketConfig{
			URL:       config.DeriveWSURL(*base),
			Token:     *token,
			Ticket:    client.IssueWSTicket,
			Reconnect: true,
		})
	}

	session, err := chat.NewSession(chat.SessionConfig{Token: *token, PageSize: *pageSize}, client, ch)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer func() { _ = session.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := session.Connect(ctx); err != nil {
		log.Printf("⚠️  realtime unavailable, sending over HTTP: %v", err)
	}

	v, err := open(ctx, session, *peer, *group, *conv)
	if err != nil {
		log.Fatalf("❌ open conversation: %v", err)
	}
	log.Printf("✅ conversation %s open as user %s", v.ID(), session.User())
	if reason := v.State().SendBlocked; reason != "" {
		log.Printf("⚠️  %s", reason)
	}

	events, stop := v.Subscribe()
	defer stop()
	go printEvents(v, events)
	printMessages(v.Messages())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleLine(ctx, v, strings.TrimSpace(line)); quit {
				return
			}
		}
	}
}

func open(ctx context.Context, s *chat.Session, peer, group, conv string) (*chat.View, error) {
	switch {
	case peer != "":
		return s.OpenDirect(ctx, models.ID(peer))
	case group != "":
		g, err := s.OpenGroup(ctx, models.ID(group))
		if err != nil {
			return nil, err
		}
		return g.View, nil
	case conv != "":
		return s.OpenConversation(ctx, models.ID(conv))
	}
	return nil, fmt.Errorf("one of -peer, -group or -conv is required")
}

// handleLine runs a command or sends the line. It reports whether to quit.
func handleLine(ctx context.Context, v *chat.View, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "":
		return false
	case "/quit":
		return true
	case "/older":
		res, err := v.LoadOlder(ctx)
		if err != nil {
			log.Printf("❌ %v", err)
			return false
		}
		log.Printf("📜 page %d: %d messages, more: %v", res.Page, res.Count, res.HasMore)
	case "/retry":
		retry(ctx, v, strings.TrimSpace(arg))
	case "/export":
		if err := export(v, strings.TrimSpace(arg)); err != nil {
			log.Printf("❌ export: %v", err)
		}
	case "/read":
		if err := v.MarkRead(ctx); err != nil {
			log.Printf("❌ %v", err)
		}
	default:
		if _, err := v.Send(ctx, chat.Draft{Text: line}); err != nil {
			log.Printf("❌ %v", err)
		}
	}
	return false
}

// retry resends one failed message, or every failed message when tempID is empty.
func retry(ctx context.Context, v *chat.View, tempID string) {
	var ids []string
	if tempID != "" {
		ids = append(ids, tempID)
	} else {
		for _, m := range v.Failed() {
			ids = append(ids, m.TempID)
		}
	}
	if len(ids) == 0 {
		log.Println("nothing to retry")
		return
	}
	for _, id := range ids {
		if err := v.Retry(ctx, id); err != nil {
			log.Printf("❌ retry %s: %v", id, err)
		}
	}
}

func export(v *chat.View, path string) error {
	if path == "" {
		path = fmt.Sprintf("transcript-%s.yaml", v.ID())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := chat.WriteTranscript(f, v); err != nil {
		_ = f.Close()
		return err
	}
	log.Printf("💾 transcript written to %s", path)
	return f.Close()
}

func printEvents(v *chat.View, events <-chan chat.Event) {
	seen := make(map[string]models.MessageStatus)
	for ev := range events {
		switch ev.Kind {
		case chat.EventMessages:
			for _, m := range ev.Messages {
				key := m.TempID
				if key == "" {
					key = m.ID.String()
				}
				if prev, ok := seen[key]; ok && prev == m.Status {
					continue
				}
				seen[key] = m.Status
				printMessage(m)
			}
		case chat.EventTyping:
			for _, p := range ev.Typing {
				log.Printf("✍️  %s is typing…", name(p.Username, p.UserID))
			}
		case chat.EventError:
			log.Printf("❌ %s: %s", ev.Error.Code, ev.Error.Message)
		case chat.EventDropped:
			log.Println("⚠️  realtime events were dropped, reloading")
			printMessages(v.Messages())
		case chat.EventState:
			if ev.State != nil && ev.State.Status == chat.StatusError && ev.State.Error != nil {
				log.Printf("❌ %s (type /older or restart to reload)", ev.State.Error.Message)
			}
		}
	}
}

func printMessages(msgs []models.Message) {
	for _, m := range msgs {
		printMessage(m)
	}
}

func printMessage(m models.Message) {
	text := m.Text()
	if m.MediaURL != "" {
		text = strings.TrimSpace(text + " [" + string(m.MessageType) + "] " + m.MediaURL)
	}
	fmt.Printf("%s  %-6s %-9s %s\n", m.CreatedAt.Local().Format("15:04"), m.SenderID, m.Status, text)
}

func name(username string, id models.ID) string {
	if username != "" {
		return username
	}
	return "user " + id.String()
}
