package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// ErrNotFound reports that a guild or thread no longer exists or is no
// longer reachable by the bot.
var ErrNotFound = errors.New("not found on host")

// Group is a resolved guild.
type Group struct {
	ID   string
	Name string
}

// Conversation is a resolved ticket thread.
type Conversation struct {
	ID       string
	GroupID  string
	ParentID string
	Thread   bool
	// Closed is set when the host has archived or locked the thread.
	Closed bool
}

// Resolver answers whether a ticket's backing conversation still exists.
type Resolver interface {
	ResolveGroup(ctx context.Context, groupID string) (*Group, error)
	ResolveConversation(ctx context.Context, group *Group, conversationID string) (*Conversation, error)
}

// discordAPI is the subset of *discordgo.Session the resolver falls back to
// when the state cache misses.
type discordAPI interface {
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// DiscordResolver resolves guilds and threads from the session state cache,
// then the REST API.
type DiscordResolver struct {
	state *discordgo.State
	api   discordAPI
}

// NewDiscordResolver builds a resolver over an open session.
func NewDiscordResolver(session *discordgo.Session) *DiscordResolver {
	return &DiscordResolver{state: session.State, api: session}
}

func (r *DiscordResolver) ResolveGroup(ctx context.Context, groupID string) (*Group, error) {
	if groupID == "" {
		return nil, ErrNotFound
	}
	if r.state != nil {
		if g, err := r.state.Guild(groupID); err == nil && g != nil && !g.Unavailable {
			return &Group{ID: g.ID, Name: g.Name}, nil
		}
	}
	g, err := r.api.Guild(groupID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err, "guild", groupID)
	}
	return &Group{ID: g.ID, Name: g.Name}, nil
}

func (r *DiscordResolver) ResolveConversation(ctx context.Context, group *Group, conversationID string) (*Conversation, error) {
	if group == nil || conversationID == "" {
		return nil, ErrNotFound
	}
	var ch *discordgo.Channel
	if r.state != nil {
		if cached, err := r.state.Channel(conversationID); err == nil {
			ch = cached
		}
	}
	if ch == nil {
		fetched, err := r.api.Channel(conversationID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, classify(err, "channel", conversationID)
		}
		ch = fetched
	}
	if ch.GuildID != "" && ch.GuildID != group.ID {
		return nil, ErrNotFound
	}
	return conversationFromChannel(ch), nil
}

func conversationFromChannel(ch *discordgo.Channel) *Conversation {
	conv := &Conversation{ID: ch.ID, GroupID: ch.GuildID, ParentID: ch.ParentID, Thread: ch.IsThread()}
	if ch.ThreadMetadata != nil {
		conv.Closed = ch.ThreadMetadata.Archived || ch.ThreadMetadata.Locked
	}
	return conv
}

// classify maps Discord "unknown" and "missing access" responses to
// ErrNotFound. Anything else is a transient failure for the caller to retry.
func classify(err error, kind, id string) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			switch restErr.Message.Code {
			case discordgo.ErrCodeUnknownGuild, discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeMissingAccess:
				return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
			}
		}
		if restErr.Response != nil {
			switch restErr.Response.StatusCode {
			case http.StatusNotFound, http.StatusForbidden:
				return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
			}
		}
	}
	return fmt.Errorf("resolve %s %s: %w", kind, id, err)
}
