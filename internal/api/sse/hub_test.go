package sse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/gamewallet/internal/testutil"
)

func TestFormatSSEMessage(t *testing.T) {
	tests := []struct {
		name      string
		eventName string
		data      string
		expected  string
	}{
		{
			name:      "single line data",
			eventName: "balance",
			data:      `{"balance":40}`,
			expected:  "event: balance\ndata: {\"balance\":40}\n\n",
		},
		{
			name:      "multi-line data",
			eventName: "balance",
			data:      "{\n  \"balance\": 40\n}",
			expected:  "event: balance\ndata: {\ndata:   \"balance\": 40\ndata: }\n\n",
		},
		{
			name:      "empty data",
			eventName: "ping",
			data:      "",
			expected:  "event: ping\ndata: \n\n",
		},
		{
			name:      "data with carriage returns",
			eventName: "test",
			data:      "line1\r\nline2",
			expected:  "event: test\ndata: line1\ndata: line2\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(formatSSEMessage(tt.eventName, tt.data)))
		})
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"single line", "hello", []string{"hello"}},
		{"two lines", "line1\nline2", []string{"line1", "line2"}},
		{"trailing newline", "line1\n", []string{"line1"}},
		{"empty string", "", []string{""}},
		{"crlf line endings", "line1\r\nline2\r\n", []string{"line1", "line2"}},
		{"blank line kept", "a\n\nb", []string{"a", "", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitLines(tt.input))
		})
	}
}

func newRunningHub(t *testing.T) *Hub {
	hub := NewHub("acct-1", testutil.NopLogger())
	go hub.Run()
	t.Cleanup(hub.Close)
	return hub
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	hub := newRunningHub(t)

	client := NewClient(hub, "acct-1")
	require.True(t, hub.Register(client))
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastEvent("balance", "data")

	select {
	case msg := <-client.send:
		assert.Equal(t, "event: balance\ndata: data\n\n", string(msg))
	case <-time.After(time.Second):
		t.Fatal("client did not receive message")
	}
}

func TestHub_BroadcastToMultipleClients(t *testing.T) {
	hub := newRunningHub(t)

	clients := []*Client{NewClient(hub, "acct-1"), NewClient(hub, "acct-1"), NewClient(hub, "acct-1")}
	for _, c := range clients {
		require.True(t, hub.Register(c))
	}
	assert.Eventually(t, func() bool { return hub.ClientCount() == 3 }, time.Second, 5*time.Millisecond)

	hub.BroadcastEvent("update", "data")

	for i, client := range clients {
		select {
		case msg := <-client.send:
			assert.Equal(t, "event: update\ndata: data\n\n", string(msg))
		case <-time.After(time.Second):
			t.Fatalf("client %d did not receive message", i+1)
		}
	}
}

func TestHub_Unregister(t *testing.T) {
	hub := newRunningHub(t)

	client := NewClient(hub, "acct-1")
	require.True(t, hub.Register(client))
	hub.Unregister(client)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-client.send
	assert.False(t, open, "send channel is closed on unregister")
}

func TestHub_RegisterAfterCloseFails(t *testing.T) {
	hub := newRunningHub(t)
	hub.Close()
	hub.Close()

	assert.False(t, hub.Register(NewClient(hub, "acct-1")))
	assert.NotPanics(t, func() { hub.Unregister(NewClient(hub, "acct-1")) })
}

func TestHubManager_GetOrCreateHub(t *testing.T) {
	manager := NewHubManager(nil, testutil.NopLogger())
	defer manager.Close()

	hub1 := manager.GetOrCreateHub("acct-1")
	require.NotNil(t, hub1)
	assert.Same(t, hub1, manager.GetOrCreateHub("acct-1"))
	assert.NotSame(t, hub1, manager.GetOrCreateHub("acct-2"))
	assert.Equal(t, 2, manager.HubCount())
}

func TestHubManager_GetHub(t *testing.T) {
	manager := NewHubManager(nil, testutil.NopLogger())
	defer manager.Close()

	assert.Nil(t, manager.GetHub("missing"))

	created := manager.GetOrCreateHub("acct-1")
	assert.Same(t, created, manager.GetHub("acct-1"))
}

func TestHubManager_RemoveHub(t *testing.T) {
	manager := NewHubManager(nil, testutil.NopLogger())

	manager.GetOrCreateHub("acct-1")
	manager.RemoveHub("acct-1")
	assert.Nil(t, manager.GetHub("acct-1"))

	assert.NotPanics(t, func() { manager.RemoveHub("missing") })
}

func TestHubManager_CleanupEmptyHubs(t *testing.T) {
	manager := NewHubManager(nil, testutil.NopLogger())
	defer manager.Close()

	manager.GetOrCreateHub("empty")
	active := manager.GetOrCreateHub("active")
	require.True(t, active.Register(NewClient(active, "active")))
	assert.Eventually(t, func() bool { return active.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	manager.CleanupEmptyHubs()

	assert.Nil(t, manager.GetHub("empty"))
	assert.NotNil(t, manager.GetHub("active"))
}

func TestHubManager_RunJanitor(t *testing.T) {
	manager := NewHubManager(nil, testutil.NopLogger())
	defer manager.Close()
	manager.GetOrCreateHub("empty")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.RunJanitor(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return manager.HubCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubManager_CloseRefusesNewHubs(t *testing.T) {
	manager := NewHubManager(nil, testutil.NopLogger())
	require.NotNil(t, manager.GetOrCreateHub("acct-1"))

	manager.Close()

	assert.Nil(t, manager.GetOrCreateHub("acct-1"))
	assert.Nil(t, manager.GetOrCreateHub("acct-2"))
	assert.Equal(t, 0, manager.HubCount())
}
