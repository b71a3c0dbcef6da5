package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/DoyleJ11/cs-chat-backend/internal/chat"
	"github.com/DoyleJ11/cs-chat-backend/internal/ws"
	"github.com/DoyleJ11/cs-chat-backend/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var server, nick string
	var debug bool

	cmd := &cobra.Command{
		Use:   "chat-client",
		Short: "Line-oriented chat client",
		Long: `Type to chat. Commands:
  /join <room-id>   switch room (leaves the current one)
  /rooms            list rooms
  /quit             exit
  :enter-cs         enter the room's critical section
  :exit-cs          leave it`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := zap.NewNop()
			if debug {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				log = l
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runClient(ctx, server, nick, cmd.InOrStdin(), cmd.OutOrStdout(), log)
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVarP(&nick, "nick", "n", os.Getenv("USER"), "nickname")
	cmd.Flags().BoolVar(&debug, "debug", false, "log to stderr")
	return cmd
}

func runClient(ctx context.Context, server, nick string, in io.Reader, out io.Writer, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := ws.Dial(ctx, server, nick, log)
	if err != nil {
		return err
	}
	defer client.Close()

	session := chat.NewSession(client, log)
	session.OnUpdate(func(u chat.Update) { fmt.Fprintln(out, render(u)) })

	readErr := make(chan error, 1)
	go func() {
		readErr <- client.Run(ctx, session.Apply)
		cancel()
	}()

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			select {
			case err := <-readErr:
				return err
			default:
				return nil
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, server, session, line, out); quit {
				return nil
			}
		}
	}
}

// handleLine runs local slash commands; everything else goes to the session.
func handleLine(ctx context.Context, server string, s *chat.Session, line string, out io.Writer) bool {
	switch {
	case line == "/quit":
		return true
	case line == "/rooms":
		rooms, err := listRooms(ctx, server)
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
			return false
		}
		for _, r := range rooms {
			fmt.Fprintf(out, "  %s  %s (%d online)\n", r.ID, r.Name, r.NumClients)
		}
	case strings.HasPrefix(line, "/join "):
		id := strings.TrimSpace(strings.TrimPrefix(line, "/join "))
		s.SelectRoom(chat.Room{ID: id, Name: id})
	default:
		s.SetInput(line)
		s.SubmitInput()
	}
	return false
}

func listRooms(ctx context.Context, server string) ([]types.RoomInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(server, "/")+"/rooms", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list rooms: %s", resp.Status)
	}
	var rooms []types.RoomInfo
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func render(u chat.Update) string {
	switch u.Kind {
	case chat.UpdateWelcome:
		return fmt.Sprintf("* connected as %s", u.Nick)
	case chat.UpdateJoined:
		return fmt.Sprintf("* %s joined %s", u.Nick, u.Room)
	case chat.UpdateLeft:
		if u.Err != "" {
			return fmt.Sprintf("* %s left %s (%s)", u.Nick, u.Room, u.Err)
		}
		return fmt.Sprintf("* %s left %s", u.Nick, u.Room)
	case chat.UpdateMessage:
		return fmt.Sprintf("[%s #%d] %s: %s", u.Room, u.Seq, u.Nick, u.Text)
	case chat.UpdateCSEntered:
		return fmt.Sprintf("* %s entered the critical section", u.Nick)
	case chat.UpdateCSExited:
		return fmt.Sprintf("* %s left the critical section", u.Nick)
	case chat.UpdateError:
		return fmt.Sprintf("! %s", u.Err)
	default:
		return fmt.Sprintf("? %+v", u)
	}
}
