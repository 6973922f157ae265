package mxlink

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alexjbarnes/mxlink/matrix"
	"github.com/tidwall/gjson"
)

// Event types and memberships the dispatcher looks at.
const (
	EventTypeMember   = "m.room.member"
	EventTypeReaction = "m.reaction"

	// EventTypeEncrypted events are not decrypted. They are counted and
	// skipped, so handlers never see events from encrypted rooms' timelines.
	EventTypeEncrypted = "m.room.encrypted"

	MembershipInvite = "invite"
	MembershipJoin   = "join"
	MembershipLeave  = "leave"
	MembershipBan    = "ban"
)

// InvitationJoinMaxDelay is the join backoff ceiling for accepted
// invitations.
const InvitationJoinMaxDelay = 3600 * time.Second

// Event is a raw room event as delivered by sync.
type Event struct {
	RoomID string
	Raw    json.RawMessage
}

// Get reads a gjson path from the event.
func (e Event) Get(path string) gjson.Result {
	return gjson.GetBytes(e.Raw, path)
}

func (e Event) Type() string       { return e.Get("type").String() }
func (e Event) ID() string         { return e.Get("event_id").String() }
func (e Event) Sender() string     { return e.Get("sender").String() }
func (e Event) Membership() string { return e.Get("content.membership").String() }

// StateKey returns the state key and whether the event has one.
func (e Event) StateKey() (string, bool) {
	r := e.Get("state_key")
	return r.String(), r.Exists()
}

// PrevMembership returns the membership before this event, if the
// server included it.
func (e Event) PrevMembership() (string, bool) {
	r := e.Get("unsigned.prev_content.membership")
	return r.String(), r.Exists()
}

// Redacted reports whether the event has been redacted.
func (e Event) Redacted() bool {
	return e.Get("unsigned.redacted_because").Exists()
}

// InvitationDecision is what an invitation handler wants done.
type InvitationDecision int

const (
	// InvitationIgnore leaves the invite pending.
	InvitationIgnore InvitationDecision = iota
	// InvitationJoin accepts, retrying with backoff in the background.
	InvitationJoin
	// InvitationReject declines in the background.
	InvitationReject
)

// Invitation is an invite addressed to the logged-in user.
type Invitation struct {
	RoomID  string
	Inviter string
	Event   Event
}

// Reaction is the annotation carried by an m.reaction event.
type Reaction struct {
	// RelatesTo is the event being reacted to.
	RelatesTo string
	// Key is the reaction itself, usually an emoji.
	Key string
}

type (
	InvitationHandler func(ctx context.Context, inv Invitation) (InvitationDecision, error)
	EventHandler      func(ctx context.Context, evt Event) error
	ReactionHandler   func(ctx context.Context, evt Event, r Reaction) error
)

type handlers struct {
	invitation []InvitationHandler
	joined     []EventHandler
	lastMember []EventHandler
	reaction   []ReactionHandler
}

// OnInvitation registers h for invites addressed to us.
func (l *Link) OnInvitation(h InvitationHandler) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.handlers.invitation = append(l.handlers.invitation, h)
}

// OnJoined registers h for our own transitions into a room. Profile
// changes while already joined are not reported.
func (l *Link) OnJoined(h EventHandler) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.handlers.joined = append(l.handlers.joined, h)
}

// OnBeingLastMember registers h for rooms where someone else left or was
// banned and we are the only joined member remaining.
func (l *Link) OnBeingLastMember(h EventHandler) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.handlers.lastMember = append(l.handlers.lastMember, h)
}

// OnActionableReaction registers h for reactions sent by other users.
func (l *Link) OnActionableReaction(h ReactionHandler) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.handlers.reaction = append(l.handlers.reaction, h)
}

func (l *Link) snapshotHandlers() handlers {
	l.handlersMu.RLock()
	defer l.handlersMu.RUnlock()

	return handlers{
		invitation: append([]InvitationHandler(nil), l.handlers.invitation...),
		joined:     append([]EventHandler(nil), l.handlers.joined...),
		lastMember: append([]EventHandler(nil), l.handlers.lastMember...),
		reaction:   append([]ReactionHandler(nil), l.handlers.reaction...),
	}
}

// dispatch calls handlers for one sync round, in registration order.
// Handler errors are logged and never stop the loop.
func (l *Link) dispatch(ctx context.Context, resp *matrix.SyncResponse) {
	h := l.snapshotHandlers()

	if len(h.invitation) > 0 {
		for _, room := range resp.Invited {
			l.dispatchInvite(ctx, h.invitation, room)
		}
	}

	for _, room := range resp.Joined {
		memberCount := -1

		for _, raw := range room.Events {
			evt := Event{RoomID: room.RoomID, Raw: raw}

			if evt.Type() == EventTypeEncrypted {
				l.metrics.Undecrypted.Inc()
				l.logger.Debug("skipping encrypted event",
					slog.String("room_id", room.RoomID),
					slog.String("event_id", evt.ID()),
				)

				continue
			}

			if len(h.joined) > 0 && l.isOwnJoin(evt) {
				for _, fn := range h.joined {
					l.logHandlerErr("joined", evt, fn(ctx, evt))
				}
			}

			if len(h.lastMember) > 0 && l.isOthersDeparture(evt) {
				if memberCount < 0 {
					members, err := l.client.JoinedMembers(ctx, room.RoomID)
					if err != nil {
						l.logger.Warn("failed to count joined members",
							slog.String("room_id", room.RoomID),
							slog.String("error", err.Error()),
						)

						continue
					}

					memberCount = len(members)
				}

				if memberCount == 1 {
					for _, fn := range h.lastMember {
						l.logHandlerErr("last member", evt, fn(ctx, evt))
					}
				}
			}

			if len(h.reaction) > 0 {
				if r, ok := l.actionableReaction(evt); ok {
					for _, fn := range h.reaction {
						l.logHandlerErr("reaction", evt, fn(ctx, evt, r))
					}
				}
			}
		}
	}
}

func (l *Link) dispatchInvite(ctx context.Context, hs []InvitationHandler, room matrix.RoomEvents) {
	var inv *Invitation

	for _, raw := range room.Events {
		evt := Event{RoomID: room.RoomID, Raw: raw}
		if l.isOwnInvite(evt) {
			inv = &Invitation{RoomID: room.RoomID, Inviter: evt.Sender(), Event: evt}
		}
	}

	if inv == nil {
		return
	}

	for _, fn := range hs {
		decision, err := fn(ctx, *inv)
		if err != nil {
			l.logger.Warn("invitation handler failed",
				slog.String("room_id", inv.RoomID),
				slog.String("error", err.Error()),
			)

			continue
		}

		switch decision {
		case InvitationJoin:
			l.goBackground(func() {
				if err := l.JoinWithRetries(ctx, inv.RoomID, InvitationJoinMaxDelay); err != nil {
					l.logger.Error("giving up on invitation",
						slog.String("room_id", inv.RoomID),
						slog.String("error", err.Error()),
					)
				}
			})

		case InvitationReject:
			l.goBackground(func() {
				if err := l.client.LeaveRoom(ctx, inv.RoomID); err != nil {
					l.logger.Warn("failed to reject invitation",
						slog.String("room_id", inv.RoomID),
						slog.String("error", err.Error()),
					)
				}
			})

		case InvitationIgnore:
		}
	}
}

func (l *Link) goBackground(fn func()) {
	l.background.Add(1)

	go func() {
		defer l.background.Done()
		fn()
	}()
}

func (l *Link) isOwnInvite(evt Event) bool {
	sk, ok := evt.StateKey()

	return ok && sk == l.userID &&
		evt.Type() == EventTypeMember &&
		evt.Membership() == MembershipInvite
}

// isOwnJoin matches our own member event moving into join from another
// membership. Events without prior content are skipped because a
// profile change cannot be told apart from a join without it.
func (l *Link) isOwnJoin(evt Event) bool {
	if evt.Type() != EventTypeMember || evt.Membership() != MembershipJoin || evt.Redacted() {
		return false
	}

	if sk, ok := evt.StateKey(); !ok || sk != l.userID {
		return false
	}

	prev, ok := evt.PrevMembership()

	return ok && prev != MembershipJoin
}

func (l *Link) isOthersDeparture(evt Event) bool {
	if evt.Type() != EventTypeMember || evt.Redacted() {
		return false
	}

	if m := evt.Membership(); m != MembershipLeave && m != MembershipBan {
		return false
	}

	sk, ok := evt.StateKey()

	return ok && sk != l.userID && evt.Sender() != l.userID
}

func (l *Link) actionableReaction(evt Event) (Reaction, bool) {
	if evt.Type() != EventTypeReaction || evt.Redacted() || evt.Sender() == l.userID {
		return Reaction{}, false
	}

	rel := evt.Get(`content.m\.relates_to`)
	target := rel.Get("event_id").String()
	key := rel.Get("key").String()

	if target == "" || key == "" {
		return Reaction{}, false
	}

	return Reaction{RelatesTo: target, Key: key}, true
}

func (l *Link) logHandlerErr(kind string, evt Event, err error) {
	if err == nil {
		return
	}

	l.logger.Warn("event handler failed",
		slog.String("handler", kind),
		slog.String("room_id", evt.RoomID),
		slog.String("event_id", evt.ID()),
		slog.String("error", err.Error()),
	)
}
