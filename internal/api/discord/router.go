package discord

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/commands"
	"github.com/spec-kit/ticket-tracker/internal/config"
	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/host"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	"github.com/spec-kit/ticket-tracker/internal/service"
)

const (
	handlerTimeout     = 10 * time.Second
	reasonThreadDelete = "thread_deleted"
)

// Router translates gateway events into command invocations and ticket
// lifecycle calls.
type Router struct {
	surface *commands.Surface
	tickets *service.TicketService
	cfg     config.DiscordConfig
	logger  *zap.Logger

	parents      map[string]struct{}
	supportRoles map[string]struct{}
	adminRoles   map[string]struct{}

	resolverFor func(*discordgo.Session) host.Resolver
}

// RouterDependencies bundles collaborators for the router.
type RouterDependencies struct {
	Surface *commands.Surface
	Tickets *service.TicketService
	Config  config.DiscordConfig
	Logger  *zap.Logger
}

// NewRouter constructs a router.
func NewRouter(deps RouterDependencies) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		surface:      deps.Surface,
		tickets:      deps.Tickets,
		cfg:          deps.Config,
		logger:       logger,
		parents:      toSet(deps.Config.TicketParentIDs),
		supportRoles: toSet(deps.Config.SupportRoleIDs),
		adminRoles:   toSet(deps.Config.AdminRoleIDs),
		resolverFor: func(s *discordgo.Session) host.Resolver {
			return host.NewDiscordResolver(s)
		},
	}
}

// Register attaches the router's handlers to the session. Call before Start.
func (r *Router) Register(session *host.Session) {
	session.AddHandler(r.onReady)
	session.AddHandler(r.onInteraction)
	session.AddHandler(r.onThreadCreate)
	session.AddHandler(r.onThreadDelete)
}

func (r *Router) onReady(s *discordgo.Session, ev *discordgo.Ready) {
	appID := r.cfg.AppID
	if appID == "" && ev.User != nil {
		appID = ev.User.ID
	}
	if appID == "" {
		r.logger.Warn("cannot register commands without an application id")
		return
	}
	registered, err := s.ApplicationCommandBulkOverwrite(appID, r.cfg.GuildID, ApplicationCommands())
	if err != nil {
		r.logger.Error("register application commands failed", zap.Error(err))
		return
	}
	r.logger.Info("application commands registered",
		zap.Int("count", len(registered)),
		zap.String("guild_id", r.cfg.GuildID))
}

func (r *Router) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	data := i.ApplicationCommandData()
	inv := r.invocation(ctx, r.resolverFor(s), i.Interaction)
	res := r.surface.Execute(ctx, commands.Name(data.Name), inv)

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: res.Message,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		r.logger.Warn("interaction response failed",
			zap.String("command", data.Name),
			zap.String("channel_id", i.ChannelID),
			zap.Error(err))
	}
}

func (r *Router) onThreadCreate(_ *discordgo.Session, t *discordgo.ThreadCreate) {
	if t.Channel == nil || !r.isTicketParent(t.ParentID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	_, created, err := r.tickets.Open(ctx, t.ID, t.GuildID)
	if err != nil {
		r.logger.Error("record ticket thread failed", zap.String("ticket_id", t.ID), zap.Error(err))
		return
	}
	if created {
		r.logger.Info("ticket opened", zap.String("ticket_id", t.ID), zap.String("group_id", t.GuildID))
	}
}

func (r *Router) onThreadDelete(_ *discordgo.Session, t *discordgo.ThreadDelete) {
	if t.Channel == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	rec, err := r.tickets.Get(ctx, t.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			r.logger.Warn("load deleted thread failed", zap.String("ticket_id", t.ID), zap.Error(err))
		}
		return
	}
	if !rec.Active() {
		return
	}
	if _, err := r.tickets.Close(ctx, rec.TicketID, rec.GroupID, nil, events.SourceHost, reasonThreadDelete); err != nil {
		r.logger.Error("close deleted thread failed", zap.String("ticket_id", t.ID), zap.Error(err))
	}
}

// invocation builds the command context. Resolution failures and threads the
// host reports as closed leave InTicket unset so ticket commands reject
// without touching state.
func (r *Router) invocation(ctx context.Context, resolver host.Resolver, i *discordgo.Interaction) commands.Invocation {
	inv := commands.Invocation{
		GroupID:        i.GuildID,
		ConversationID: i.ChannelID,
	}
	if i.Member != nil && i.Member.User != nil {
		inv.AgentID = i.Member.User.ID
		inv.Level = r.permissionLevel(i.Member)
	} else if i.User != nil {
		inv.AgentID = i.User.ID
	}

	if i.Type == discordgo.InteractionApplicationCommand {
		for _, opt := range i.ApplicationCommandData().Options {
			switch opt.Type {
			case discordgo.ApplicationCommandOptionInteger:
				v := opt.IntValue()
				inv.IntArg = &v
			case discordgo.ApplicationCommandOptionBoolean:
				v := opt.BoolValue()
				inv.BoolArg = &v
			}
		}
	}

	if i.GuildID == "" || i.ChannelID == "" {
		return inv
	}
	conv, err := resolver.ResolveConversation(ctx, &host.Group{ID: i.GuildID}, i.ChannelID)
	if err != nil {
		r.logger.Debug("resolve invocation channel failed",
			zap.String("channel_id", i.ChannelID),
			zap.Error(err))
		return inv
	}
	inv.InTicket = conv.Thread && !conv.Closed && r.isTicketParent(conv.ParentID)
	return inv
}

// permissionLevel maps roles to a level. Guild administrators are admins and
// members who can manage threads count as support.
func (r *Router) permissionLevel(m *discordgo.Member) domain.PermissionLevel {
	if m.Permissions&discordgo.PermissionAdministrator != 0 {
		return domain.PermissionAdmin
	}
	level := domain.PermissionNone
	if m.Permissions&discordgo.PermissionManageThreads != 0 {
		level = domain.PermissionSupport
	}
	for _, role := range m.Roles {
		if _, ok := r.adminRoles[role]; ok {
			return domain.PermissionAdmin
		}
		if _, ok := r.supportRoles[role]; ok {
			level = domain.PermissionSupport
		}
	}
	return level
}

// isTicketParent reports whether threads under parentID are tickets. With no
// configured parents every thread is a ticket.
func (r *Router) isTicketParent(parentID string) bool {
	if len(r.parents) == 0 {
		return true
	}
	_, ok := r.parents[parentID]
	return ok
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}
