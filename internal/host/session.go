package host

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Connection gates background work on the host connection.
type Connection interface {
	// WaitReady blocks until the first Ready event or ctx is done.
	WaitReady(ctx context.Context) error
	// Alive reports false once the connection has been shut down for good.
	Alive() bool
}

// Session owns the Discord gateway connection.
type Session struct {
	token  string
	logger *zap.Logger

	mu       sync.Mutex
	session  *discordgo.Session
	handlers []interface{}

	readyOnce sync.Once
	ready     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// NewSession prepares a session; call AddHandler before Start.
func NewSession(token string, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		token:  token,
		logger: logger,
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// AddHandler registers a discordgo event handler applied at Start.
func (s *Session) AddHandler(handler interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Start opens the gateway connection.
func (s *Session) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return fmt.Errorf("discord session already started")
	}

	dg, err := discordgo.New(normalizeBotToken(s.token))
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds
	dg.AddHandler(s.handleReady)
	dg.AddHandler(s.handleDisconnect)
	for _, h := range s.handlers {
		dg.AddHandler(h)
	}
	if err := dg.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	s.session = dg
	s.logger.Info("discord session started")
	return nil
}

// Stop closes the gateway connection; Alive reports false afterwards.
func (s *Session) Stop() error {
	s.closeOnce.Do(func() { close(s.closed) })

	s.mu.Lock()
	dg := s.session
	s.session = nil
	s.mu.Unlock()

	if dg == nil {
		return nil
	}
	if err := dg.Close(); err != nil {
		return fmt.Errorf("close discord session: %w", err)
	}
	s.logger.Info("discord session stopped")
	return nil
}

// Discord returns the underlying session, nil before Start.
func (s *Session) Discord() *discordgo.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.closed:
		return fmt.Errorf("discord session closed before ready")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Alive() bool {
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}

func (s *Session) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	s.readyOnce.Do(func() {
		fields := []zap.Field{zap.Int("guilds", len(r.Guilds))}
		if r.User != nil {
			fields = append(fields, zap.String("user_id", r.User.ID))
		}
		s.logger.Info("discord session ready", fields...)
		close(s.ready)
	})
}

func (s *Session) handleDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	s.logger.Warn("discord gateway disconnected; waiting for reconnect")
}

func normalizeBotToken(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(strings.ToLower(token), "bot ") {
		return token
	}
	return "Bot " + token
}
