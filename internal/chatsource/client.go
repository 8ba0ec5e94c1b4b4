package chatsource

import (
	"context"
	"fmt"

	"github.com/gotd/contrib/bbolt"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	bolt "go.etcd.io/bbolt"

	"github.com/ctirelay/relay/internal/cursor"
	"github.com/ctirelay/relay/internal/logger"
)

// Client wraps a connected gotd/td telegram.Client and the Source bound to
// its update dispatcher, bundling the pieces main needs to start the chat
// source and hand its PeerResolver to the chat sender.
type Client struct {
	tg     *telegram.Client
	Source *Source
}

// sessionDB opens (creating if absent) the bbolt-backed session store the
// gotd/td client persists its auth state into across restarts, mirroring
// the pack's bbolt-backed persistence pattern rather than a bare JSON file.
func sessionDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	return db, nil
}

// NewClient builds a gotd/td client authenticated with apiID/apiHash,
// dispatching updates into a Source subscribed to channelIDs. sessionPath
// is the bbolt file backing the client's persisted auth session.
func NewClient(apiID int, apiHash, sessionPath string, chatStore *cursor.ChatStore, channelIDs []string) (*Client, error) {
	db, err := sessionDB(sessionPath)
	if err != nil {
		return nil, err
	}

	sessionStorage, err := bbolt.NewSessionStorage(db, "session")
	if err != nil {
		return nil, fmt.Errorf("building session storage: %w", err)
	}

	dispatcher := tg.NewUpdateDispatcher()
	client := telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: sessionStorage,
		UpdateHandler:  dispatcher,
	})

	source := New(client.API(), chatStore, channelIDs)
	source.RegisterHandlers(&dispatcher)

	return &Client{tg: client, Source: source}, nil
}

// API returns the raw gotd/td client, for building a destination.ChatSender
// or an internal/discover enumeration over the same connected session.
func (c *Client) API() *tg.Client {
	return c.tg.API()
}

// Run blocks for the lifetime of ctx, keeping the underlying gotd/td
// connection alive and running fn (typically Source.Start followed by a
// <-ctx.Done() wait) once the connection is established.
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.tg.Run(ctx, func(ctx context.Context) error {
		logger.InfoC("chatsource", "chat client connected")
		return fn(ctx)
	})
}
