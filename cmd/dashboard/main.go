package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/aeolun/lobbyd/pkg/client"
	"github.com/aeolun/lobbyd/pkg/protocol"
)

const requestTimeout = 5 * time.Second

func main() {
	addr := flag.String("server", "localhost:8080", "Server address (host:port or ws:// URL)")
	once := flag.Bool("once", false, "Print one report and exit")
	interval := flag.Duration("interval", 5*time.Second, "Refresh interval")
	flag.Parse()

	if err := run(*addr, *once, *interval); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(addr string, once bool, interval time.Duration) error {
	updates := make(chan tea.Msg, 16)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	c, err := client.Dial(ctx, addr, client.Options{
		PlayerID:   "dashboard-" + uuid.NewString()[:8],
		PlayerName: "Dashboard",
		Handlers: client.Handlers{
			OnLobbyList: func(m *protocol.LobbyListMessage) {
				select {
				case updates <- lobbyListMsg{list: m, at: time.Now()}:
				default:
				}
			},
			OnClose: func(err error) {
				select {
				case updates <- closedMsg{err: err}:
				default:
				}
			},
		},
	})
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer c.Close()

	info := c.State().ServerInfo
	if once {
		return report(c, addr, info, updates)
	}

	p := tea.NewProgram(newModel(c.Address(), info, interval, updates, c.RequestLobbyList), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// report requests one lobby list and prints it
func report(c *client.Client, addr string, info protocol.ServerInfo, updates <-chan tea.Msg) error {
	if err := c.RequestLobbyList(); err != nil {
		return err
	}
	timeout := time.After(requestTimeout)
	for {
		select {
		case msg := <-updates:
			switch m := msg.(type) {
			case lobbyListMsg:
				fmt.Print(renderOnce(addr, info, m.list.Lobbies, m.at))
				return nil
			case closedMsg:
				if m.err != nil {
					return m.err
				}
				return errDisconnected
			}
		case <-timeout:
			return fmt.Errorf("no lobby list within %s", requestTimeout)
		}
	}
}
