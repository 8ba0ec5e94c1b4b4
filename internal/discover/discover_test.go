package discover

import (
	"encoding/json"
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/require"

	"github.com/ctirelay/relay/internal/config"
)

func TestCompare_FindsUnconfiguredAndUnreachable(t *testing.T) {
	entities := []Entity{
		{ChannelID: "-1001111", Title: "SOC News"},
		{ChannelID: "-1002222", Title: "Threat Feed"},
	}
	cfg := &config.Config{
		Destinations: []config.Destination{
			{
				Name: "soc-webhook",
				Channels: []config.ChannelRule{
					{ChannelID: "-1001111"},
					{ChannelID: "-1009999"},
				},
			},
		},
	}

	d := Compare(entities, cfg)

	require.Len(t, d.Unconfigured, 1)
	require.Equal(t, "-1002222", d.Unconfigured[0].ChannelID)
	require.Len(t, d.Unreachable, 1)
	require.Equal(t, "-1009999", d.Unreachable[0])
}

func TestCompare_NoDiffWhenFullyAligned(t *testing.T) {
	entities := []Entity{{ChannelID: "-1001111", Title: "SOC News"}}
	cfg := &config.Config{
		Destinations: []config.Destination{
			{Name: "x", Channels: []config.ChannelRule{{ChannelID: "-1001111"}}},
		},
	}

	d := Compare(entities, cfg)
	require.Empty(t, d.Unconfigured)
	require.Empty(t, d.Unreachable)
}

func TestGenerateSkeleton_OneDestinationPerCall(t *testing.T) {
	entities := []Entity{
		{ChannelID: "-1001111", Title: "SOC News"},
		{ChannelID: "-1002222", Title: "Threat Feed", Username: "threatfeed"},
	}

	skel := GenerateSkeleton(entities)
	require.Len(t, skel.Destinations, 1)
	dest := skel.Destinations[0]
	require.Equal(t, "webhook", dest.Type)
	require.Len(t, dest.Channels, 2)
}

func TestSkeleton_ToJSON_RoundTripsThroughConfigShape(t *testing.T) {
	skel := GenerateSkeleton([]Entity{{ChannelID: "-1001111", Title: "SOC News"}})

	data, err := skel.ToJSON()
	require.NoError(t, err)

	// config.Load unmarshals into its own document type; this only checks
	// the generated JSON is valid and carries the fields that type expects.
	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	destinations, ok := generic["destinations"].([]any)
	require.True(t, ok)
	require.Len(t, destinations, 1)
}

func TestDialogsPage_UnknownResultTypeReturnsEmpty(t *testing.T) {
	dialogs, messages, entities := dialogsPage(&tg.MessagesDialogsNotModified{})
	require.Nil(t, dialogs)
	require.Nil(t, messages)
	require.Empty(t, entities.Channels)
}

func TestLastDialogPeer_NonChannelPeerRejected(t *testing.T) {
	dialog := &tg.Dialog{Peer: &tg.PeerChat{ChatID: 42}}
	_, ok := lastDialogPeer(dialog, tg.Entities{})
	require.False(t, ok)
}

func TestLastDialogPeer_ChannelPeerResolvesFromEntities(t *testing.T) {
	dialog := &tg.Dialog{Peer: &tg.PeerChannel{ChannelID: 99}}
	entities := tg.Entities{Channels: map[int64]*tg.Channel{99: {ID: 99, AccessHash: 123}}}

	peer, ok := lastDialogPeer(dialog, entities)
	require.True(t, ok)
	ch, ok := peer.(*tg.InputPeerChannel)
	require.True(t, ok)
	require.Equal(t, int64(99), ch.ChannelID)
	require.Equal(t, int64(123), ch.AccessHash)
}
