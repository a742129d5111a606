package main

import (
	"bufio"
	"chat-widget/contract"
	"chat-widget/domain"
	apperrors "chat-widget/errors"
	"chat-widget/identity"
	"chat-widget/repositories"
	"chat-widget/session"
	"chat-widget/transport"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	// The store holds the persisted identity in both modes and the shared
	// event log in degraded mode.
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Transport selection, decided once at startup
	var channel contract.Transport
	if config.RelayURL == "" {
		log.Warn("Falling back to local store sync", "error", apperrors.ErrRelayNotConfigured)
		events := repositories.NewEventRepository(db, log)
		channel = transport.NewLocalStoreTransport(log, db, events, config.HistoryLimit, config.StalenessWindow)
	} else {
		channel = transport.NewRelayTransport(log, config.RelayURL, config.HistoryLimit, config.RedialInterval)
	}

	ids := identity.NewStore(db)
	controller := session.NewController(log, session.Config{
		HeartbeatInterval:           config.HeartbeatInterval,
		StalenessWindow:             config.StalenessWindow,
		AnnounceLeaveInDegradedMode: config.AnnounceLeave,
		WorkerRestartDelay:          config.RestartInterval,
	}, ids, channel)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader := bufio.NewScanner(os.Stdin)
	name, err := resolveDisplayName(config, ids, reader)
	if err != nil {
		return err
	}

	// Registered before Join so the historical batch is printed too
	controller.OnEvent(printEvent)

	if err := controller.Join(ctx, name); err != nil {
		return fmt.Errorf("joining failed: %w", err)
	}
	state := controller.State()
	color.New(color.FgGreen).Printf("Connected as %s (%s mode). /who lists participants, /quit leaves.\n",
		state.Self.DisplayName, state.Mode)

	// 5. Input loop
	lines := make(chan string)
	go func() {
		defer close(lines)
		for reader.Scan() {
			lines <- reader.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return leave(controller, log)
		case line, ok := <-lines:
			if !ok {
				return leave(controller, log)
			}
			switch strings.TrimSpace(line) {
			case "":
			case "/quit":
				return leave(controller, log)
			case "/who":
				printRoster(controller.Online(time.Now().UTC()))
			default:
				if err := controller.Send(ctx, line); err != nil {
					color.New(color.FgRed).Printf("Not delivered: %v\n", err)
				}
			}
		}
	}
}

// resolveDisplayName prompts only when neither the environment nor the store
// already knows who we are.
func resolveDisplayName(config Config, ids identity.IStore, reader *bufio.Scanner) (string, error) {
	if config.DisplayName != "" {
		return config.DisplayName, nil
	}
	if _, found, err := ids.Load(); err != nil {
		return "", fmt.Errorf("loading identity: %w", err)
	} else if found {
		return "", nil
	}
	fmt.Print("Display name: ")
	if !reader.Scan() {
		return "", apperrors.ErrEmptyDisplayName
	}
	return reader.Text(), nil
}

func leave(controller *session.Controller, log *slog.Logger) error {
	log.Info("Leaving the chat...")
	if err := controller.Leave(context.Background()); err != nil {
		return fmt.Errorf("leaving failed: %w", err)
	}
	return nil
}

func printEvent(evt domain.ChatEvent) {
	stamp := evt.OccurredAt.Local().Format("15:04")
	if evt.Kind == domain.KindSystem {
		color.New(color.FgYellow).Printf("[%s] * %s\n", stamp, evt.Body)
		return
	}
	author := color.New(color.FgCyan).Render(evt.AuthorName)
	fmt.Printf("[%s] %s: %s\n", stamp, author, evt.Body)
}

func printRoster(online []domain.Participant) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Status", "Last seen"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	now := time.Now().UTC()
	for _, p := range online {
		seen := now.Sub(p.LastHeartbeat).Round(time.Second)
		table.Append([]string{p.DisplayName, string(p.Status), fmt.Sprintf("%s ago", seen)})
	}
	table.Render()
}
