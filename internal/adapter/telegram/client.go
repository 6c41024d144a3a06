// Package telegram implements domain.ChatGateway against gotd/td, using a
// session.FileStorage-backed client connected through a background
// Run loop that signals readiness over a channel once authenticated.
package telegram

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"

	"github.com/Berektassuly/tg-sync/internal/domain"
)

// AuthInput is the interactive authentication input surface, implemented
// by internal/adapter/ui.
type AuthInput interface {
	GetPhoneNumber() (string, error)
	GetCode() (string, error)
	GetPassword() (string, error)
}

// Client implements domain.ChatGateway.
type Client struct {
	client   *telegram.Client
	api      *tg.Client
	sender   *message.Sender
	registry domain.EntityRegistry

	selfID int64
}

// New constructs a Client bound to sessionFile. registry backs ResolvePeer's
// cache; pass the process-wide Entity Registry so resolutions survive
// restarts.
func New(appID int, appHash string, sessionFile string, registry domain.EntityRegistry) (*Client, error) {
	if err := os.MkdirAll(filepath.Dir(sessionFile), 0o700); err != nil {
		return nil, fmt.Errorf("telegram: create session dir: %w", err)
	}

	opts := telegram.Options{
		SessionStorage: &session.FileStorage{Path: sessionFile},
	}

	return &Client{
		client:   telegram.NewClient(appID, appHash, opts),
		registry: registry,
	}, nil
}

// Start connects and authenticates, blocking until the connection is ready
// or ctx is cancelled. The connection is kept alive by a background
// goroutine for the lifetime of ctx.
func (c *Client) Start(ctx context.Context, input AuthInput) error {
	ready := make(chan error, 1)

	go func() {
		log.Println("[telegram] starting client run loop")
		err := c.client.Run(ctx, func(ctx context.Context) error {
			status, err := c.client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("%w: auth status: %v", domain.ErrAuth, err)
			}

			if !status.Authorized {
				log.Println("[telegram] not authorized, starting auth flow")
				flow := auth.NewFlow(termAuth{input: input}, auth.SendCodeOptions{})
				if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
					return fmt.Errorf("%w: auth flow: %v", domain.ErrAuth, err)
				}
				log.Println("[telegram] authorization successful")
			}

			c.api = c.client.API()
			c.sender = message.NewSender(c.api)

			self, err := c.client.Self(ctx)
			if err != nil {
				return fmt.Errorf("%w: resolve self: %v", domain.ErrAuth, err)
			}
			c.selfID = self.ID

			select {
			case ready <- nil:
			default:
			}

			log.Println("[telegram] client ready and connected")
			<-ctx.Done()
			return ctx.Err()
		})
		if err != nil {
			log.Printf("[telegram] client run loop exited with error: %v", err)
			select {
			case ready <- err:
			default:
			}
		}
	}()

	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
