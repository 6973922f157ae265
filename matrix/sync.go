package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"maunium.net/go/mautrix"
)

// defaultSyncTimeout is the server-side long-poll hold time.
const defaultSyncTimeout = 30 * time.Second

// LazyLoadFilter asks the server to send member events only for senders
// that appear in the returned timeline.
const LazyLoadFilter = `{"room":{"state":{"lazy_load_members":true},"timeline":{"lazy_load_members":true}}}`

// SyncRequest is one long-poll round.
type SyncRequest struct {
	// Since is the checkpoint to resume from. Empty requests an initial sync.
	Since string

	// Timeout is how long the server may hold the request open. Zero uses
	// 30 seconds.
	Timeout time.Duration

	// Filter is an inline filter definition or a filter ID. Empty uses
	// LazyLoadFilter.
	Filter string
}

// RoomEvents groups raw events by room.
type RoomEvents struct {
	RoomID string
	Events []json.RawMessage
}

// SyncResponse is the decoded part of a sync round the runtime acts on.
// Room lists are sorted by room ID.
type SyncResponse struct {
	NextBatch string

	// Joined holds timeline events of rooms we are joined to.
	Joined []RoomEvents

	// Invited holds the stripped invite state of rooms we are invited to.
	Invited []RoomEvents

	// Left holds timeline events of rooms we left or were removed from.
	Left []RoomEvents
}

// Sync performs one long-poll round.
func (c *Client) Sync(ctx context.Context, req SyncRequest) (*SyncResponse, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultSyncTimeout
	}

	filter := req.Filter
	if filter == "" {
		filter = LazyLoadFilter
	}

	query := map[string]string{
		"timeout": strconv.FormatInt(timeout.Milliseconds(), 10),
		"filter":  filter,
	}
	if req.Since != "" {
		query["since"] = req.Since
	}

	url := c.cli.BuildURLWithQuery(mautrix.ClientURLPath{"v3", "sync"}, query)

	var body json.RawMessage
	if _, err := c.cli.MakeRequest(ctx, http.MethodGet, url, nil, &body); err != nil {
		return nil, classify("sync", err)
	}

	resp, err := parseSync(body)
	if err != nil {
		return nil, err
	}

	for _, r := range resp.Joined {
		c.recordMembership(r.RoomID, "join")
	}

	for _, r := range resp.Invited {
		c.recordMembership(r.RoomID, "invite")
	}

	for _, r := range resp.Left {
		c.recordMembership(r.RoomID, "leave")
	}

	return resp, nil
}

func parseSync(body []byte) (*SyncResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("sync: response is not valid JSON")
	}

	root := gjson.ParseBytes(body)

	next := root.Get("next_batch")
	if !next.Exists() || next.String() == "" {
		return nil, fmt.Errorf("sync: response has no next_batch")
	}

	rooms := root.Get("rooms")

	return &SyncResponse{
		NextBatch: next.String(),
		Joined:    roomEvents(rooms.Get("join"), "timeline.events"),
		Invited:   roomEvents(rooms.Get("invite"), "invite_state.events"),
		Left:      roomEvents(rooms.Get("leave"), "timeline.events"),
	}, nil
}

func roomEvents(section gjson.Result, path string) []RoomEvents {
	var out []RoomEvents

	section.ForEach(func(key, room gjson.Result) bool {
		re := RoomEvents{RoomID: key.String()}

		room.Get(path).ForEach(func(_, evt gjson.Result) bool {
			re.Events = append(re.Events, json.RawMessage(evt.Raw))
			return true
		})

		out = append(out, re)

		return true
	})

	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })

	return out
}
