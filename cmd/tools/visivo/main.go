// Command visivo is a terminal client for the Visivo backend. The
// conversation is mirrored to a local SQLite file between runs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/visivo/backend/pkg/client"
)

var (
	logger    *slog.Logger
	serverURL string
	dbPath    string
	userID    string
	userHdr   string
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:          "visivo",
		Short:        "Visivo: describe images and chat from the terminal",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&serverURL, "server", "s", client.DefaultBaseURL, "backend base URL")
	root.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath(), "local conversation database")
	root.PersistentFlags().StringVar(&userID, "user", "", "signed-in user id sent with each request")
	root.PersistentFlags().StringVar(&userHdr, "user-header", "X-Visivo-User", "header carrying the user id")

	root.AddCommand(chatCmd())
	root.AddCommand(analyzeCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(clearCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "visivo.db"
	}
	return filepath.Join(home, ".visivo", "conversation.db")
}

func newClient() *client.Client {
	var opts []client.Option
	if userID != "" {
		opts = append(opts, client.WithUser(userHdr, userID))
	}
	return client.New(serverURL, opts...)
}

// openConversation opens the local store and loads the conversation. The
// caller closes the returned store.
func openConversation(ctx context.Context) (*client.Conversation, *client.SQLiteKV, error) {
	kv, err := client.OpenSQLiteKV(dbPath)
	if err != nil {
		return nil, nil, err
	}
	conv, err := client.NewConversation(ctx, kv)
	if err != nil {
		kv.Close()
		return nil, nil, fmt.Errorf("load conversation: %w", err)
	}
	return conv, kv, nil
}
