package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSources_All(t *testing.T) {
	chat, feed, err := parseSources("all")
	require.NoError(t, err)
	require.True(t, chat)
	require.True(t, feed)
}

func TestParseSources_ChatOnly(t *testing.T) {
	chat, feed, err := parseSources("chat")
	require.NoError(t, err)
	require.True(t, chat)
	require.False(t, feed)
}

func TestParseSources_FeedOnly(t *testing.T) {
	chat, feed, err := parseSources("FEED")
	require.NoError(t, err)
	require.False(t, chat)
	require.True(t, feed)
}

func TestParseSources_Invalid(t *testing.T) {
	_, _, err := parseSources("bogus")
	require.Error(t, err)
}
