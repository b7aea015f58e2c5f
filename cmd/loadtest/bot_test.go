package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aeolun/lobbyd/pkg/protocol"
)

func TestGroupOf(t *testing.T) {
	tests := []struct {
		i, size int
		group   int
		host    bool
	}{
		{0, 4, 0, true},
		{3, 4, 0, false},
		{4, 4, 1, true},
		{9, 4, 2, false},
		{5, 1, 5, true},
	}
	for _, tt := range tests {
		group, host := groupOf(tt.i, tt.size)
		assert.Equal(t, tt.group, group, "bot %d", tt.i)
		assert.Equal(t, tt.host, host, "bot %d", tt.i)
	}
}

func TestStatsSnapshot(t *testing.T) {
	s := &Stats{}
	assert.Zero(t, s.snapshot().AvgRTTMs)

	s.recordUpdate()
	s.recordUpdate()
	s.recordChat(2 * time.Millisecond)
	s.recordChat(4 * time.Millisecond)
	s.recordTimeout()
	s.recordDropped()

	snap := s.snapshot()
	assert.Equal(t, int64(2), snap.Updates)
	assert.Equal(t, int64(2), snap.Chats)
	assert.InDelta(t, 3.0, snap.AvgRTTMs, 0.001)
	assert.Equal(t, int64(1), snap.Timeouts)
	assert.Equal(t, int64(1), snap.Dropped)
}

func TestAllReady(t *testing.T) {
	info := &protocol.LobbyInfoMessage{Players: []protocol.PlayerInfo{
		{ID: "a", Ready: true},
		{ID: "b", Ready: false},
	}}
	assert.False(t, allReady(info, 2))

	info.Players[1].Ready = true
	assert.True(t, allReady(info, 2))
	assert.False(t, allReady(info, 3), "roster not full yet")
}

func TestIsType(t *testing.T) {
	assert.True(t, isType[*protocol.ChatMessage](&protocol.ChatMessage{}))
	assert.False(t, isType[*protocol.ChatMessage](&protocol.StartGameMessage{}))
}
