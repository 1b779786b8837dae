package testutil

import (
	"testing"

	"github.com/AnzeMiles69/pet-chat/internal/domain"
	"github.com/stretchr/testify/assert"
)

// AssertNoCalls verifies the fake API received no request to method+path.
func AssertNoCalls(t *testing.T, f *FakeAPI, method, path string) {
	t.Helper()
	assert.Zero(t, f.CallCount(method, path), "unexpected %s %s", method, path)
}

// AssertNoTraffic verifies the fake API received no request at all since
// the given call count.
func AssertNoTraffic(t *testing.T, f *FakeAPI, since int) {
	t.Helper()
	assert.Len(t, f.Calls(), since, "unexpected network calls")
}

// AssertMessageContents compares message bodies in order.
func AssertMessageContents(t *testing.T, messages []domain.Message, expected ...string) {
	t.Helper()
	got := make([]string, 0, len(messages))
	for _, m := range messages {
		got = append(got, m.Content)
	}
	if len(expected) == 0 {
		expected = []string{}
	}
	assert.Equal(t, expected, got, "unexpected messages")
}

// AssertChatNames compares chat names in order.
func AssertChatNames(t *testing.T, chats []domain.Chat, expected ...string) {
	t.Helper()
	got := make([]string, 0, len(chats))
	for _, c := range chats {
		got = append(got, c.Name)
	}
	if len(expected) == 0 {
		expected = []string{}
	}
	assert.Equal(t, expected, got, "unexpected chats")
}
