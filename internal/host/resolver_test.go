package host

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	guilds     map[string]*discordgo.Guild
	channels   map[string]*discordgo.Channel
	err        error
	guildCalls int
}

func (f *fakeAPI) Guild(id string, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	f.guildCalls++
	if f.err != nil {
		return nil, f.err
	}
	if g, ok := f.guilds[id]; ok {
		return g, nil
	}
	return nil, &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusNotFound},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownGuild},
	}
}

func (f *fakeAPI) Channel(id string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if f.err != nil {
		return nil, f.err
	}
	if ch, ok := f.channels[id]; ok {
		return ch, nil
	}
	return nil, &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusNotFound},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownChannel},
	}
}

func TestResolveGroupPrefersState(t *testing.T) {
	state := discordgo.NewState()
	require.NoError(t, state.GuildAdd(&discordgo.Guild{ID: "g1", Name: "help"}))
	api := &fakeAPI{}
	r := &DiscordResolver{state: state, api: api}

	g, err := r.ResolveGroup(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "help", g.Name)
	assert.Zero(t, api.guildCalls)
}

func TestResolveGroupNotFound(t *testing.T) {
	r := &DiscordResolver{state: discordgo.NewState(), api: &fakeAPI{}}
	_, err := r.ResolveGroup(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.ResolveGroup(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveGroupTransientError(t *testing.T) {
	r := &DiscordResolver{api: &fakeAPI{err: errors.New("connection reset")}}
	_, err := r.ResolveGroup(context.Background(), "g1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestResolveConversationFlags(t *testing.T) {
	api := &fakeAPI{channels: map[string]*discordgo.Channel{
		"open":     {ID: "open", GuildID: "g1", Type: discordgo.ChannelTypeGuildPublicThread, ThreadMetadata: &discordgo.ThreadMetadata{}},
		"archived": {ID: "archived", GuildID: "g1", Type: discordgo.ChannelTypeGuildPublicThread, ThreadMetadata: &discordgo.ThreadMetadata{Archived: true}},
		"locked":   {ID: "locked", GuildID: "g1", Type: discordgo.ChannelTypeGuildPrivateThread, ThreadMetadata: &discordgo.ThreadMetadata{Locked: true}},
		"foreign":  {ID: "foreign", GuildID: "g2", Type: discordgo.ChannelTypeGuildPublicThread},
	}}
	r := &DiscordResolver{api: api}
	group := &Group{ID: "g1"}
	ctx := context.Background()

	conv, err := r.ResolveConversation(ctx, group, "open")
	require.NoError(t, err)
	assert.False(t, conv.Closed)
	assert.True(t, conv.Thread)

	conv, err = r.ResolveConversation(ctx, group, "archived")
	require.NoError(t, err)
	assert.True(t, conv.Closed)

	conv, err = r.ResolveConversation(ctx, group, "locked")
	require.NoError(t, err)
	assert.True(t, conv.Closed)

	_, err = r.ResolveConversation(ctx, group, "foreign")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.ResolveConversation(ctx, group, "deleted")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClassifyMissingAccess(t *testing.T) {
	err := classify(&discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusForbidden},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingAccess},
	}, "guild", "g1")
	assert.ErrorIs(t, err, ErrNotFound)

	err = classify(&discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusBadGateway}}, "guild", "g1")
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestNormalizeBotToken(t *testing.T) {
	assert.Equal(t, "Bot abc", normalizeBotToken(" abc "))
	assert.Equal(t, "Bot abc", normalizeBotToken("Bot abc"))
}

func TestSessionGate(t *testing.T) {
	s := NewSession("token", nil)
	assert.True(t, s.Alive())

	s.handleReady(nil, &discordgo.Ready{})
	s.handleReady(nil, &discordgo.Ready{})
	require.NoError(t, s.WaitReady(context.Background()))

	require.NoError(t, s.Stop())
	assert.False(t, s.Alive())
}

func TestSessionWaitReadyAfterStop(t *testing.T) {
	s := NewSession("token", nil)
	require.NoError(t, s.Stop())
	assert.Error(t, s.WaitReady(context.Background()))
}
