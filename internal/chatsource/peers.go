package chatsource

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gotd/td/tg"
)

// peerCache resolves a configured channel_id (an "@handle" or a numeric,
// optionally "-100"-prefixed supergroup id) into a gotd input peer, caching
// the access hash learned from live updates or from ContactsResolveUsername
// so repeated sends and polls never need to re-resolve.
//
// This is the local analogue of the cache.GetInputPeerRaw pattern used by
// the reference userbot: resolution first consults the cache, and only
// falls through to a network call on a cold entry.
type peerCache struct {
	api *tg.Client

	mu    sync.Mutex
	byKey map[string]tg.InputPeerClass
}

func newPeerCache(api *tg.Client) *peerCache {
	return &peerCache{api: api, byKey: make(map[string]tg.InputPeerClass)}
}

// observe folds the Chats/Users carried on an update's tg.Entities into the
// cache, so peers seen via live updates never need a resolve round trip.
func (c *peerCache) observe(entities tg.Entities) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, ch := range entities.Channels {
		c.byKey[channelKey(id)] = &tg.InputPeerChannel{ChannelID: id, AccessHash: ch.AccessHash}
	}
	for id, u := range entities.Users {
		c.byKey[userKey(id)] = &tg.InputPeerUser{UserID: id, AccessHash: u.AccessHash}
	}
	for id := range entities.Chats {
		c.byKey[chatKey(id)] = &tg.InputPeerChat{ChatID: id}
	}
}

// resolve turns a configured channel_id into an input peer, resolving
// @handles over the network on a cache miss and caching the result.
func (c *peerCache) resolve(ctx context.Context, channelID string) (tg.InputPeerClass, error) {
	if strings.HasPrefix(channelID, "@") {
		return c.resolveHandle(ctx, strings.TrimPrefix(channelID, "@"))
	}

	id, ok := parseChatID(channelID)
	if !ok {
		return nil, fmt.Errorf("channel id %q is neither a handle nor numeric", channelID)
	}

	c.mu.Lock()
	peer, ok := c.byKey[channelKey(id)]
	c.mu.Unlock()
	if ok {
		return peer, nil
	}

	return nil, fmt.Errorf("no cached peer for channel %q: not yet observed in any update", channelID)
}

func (c *peerCache) resolveHandle(ctx context.Context, handle string) (tg.InputPeerClass, error) {
	c.mu.Lock()
	peer, ok := c.byKey["@"+handle]
	c.mu.Unlock()
	if ok {
		return peer, nil
	}

	result, err := c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: handle})
	if err != nil {
		return nil, fmt.Errorf("resolving @%s: %w", handle, err)
	}

	entities := tg.EntitiesFromResult(result)
	c.observe(entities)

	for _, ch := range result.Chats {
		if channel, ok := ch.(*tg.Channel); ok && strings.EqualFold(channel.Username, handle) {
			peer := &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}
			c.mu.Lock()
			c.byKey["@"+handle] = peer
			c.mu.Unlock()
			return peer, nil
		}
	}
	for _, u := range result.Users {
		if user, ok := u.(*tg.User); ok && strings.EqualFold(user.Username, handle) {
			peer := &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
			c.mu.Lock()
			c.byKey["@"+handle] = peer
			c.mu.Unlock()
			return peer, nil
		}
	}
	return nil, fmt.Errorf("resolving @%s: no matching chat or user in result", handle)
}

// parseChatID strips an optional "-100" supergroup prefix and returns the
// bare channel id, like router.parseChatID; unlike it, this also strips a
// lone leading "-", so a basic-group id such as "-4567" parses as 4567.
func parseChatID(id string) (int64, bool) {
	trimmed := strings.TrimPrefix(id, "-100")
	trimmed = strings.TrimPrefix(trimmed, "-")
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func channelKey(id int64) string { return "c:" + strconv.FormatInt(id, 10) }
func userKey(id int64) string    { return "u:" + strconv.FormatInt(id, 10) }
func chatKey(id int64) string    { return "g:" + strconv.FormatInt(id, 10) }
