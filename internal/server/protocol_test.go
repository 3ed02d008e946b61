package server

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineClassification(t *testing.T) {
	assert.True(t, isCommand("/users"))
	assert.True(t, isCommand("/anything at all"))
	assert.False(t, isCommand("hello /users"))
	assert.False(t, isCommand(""))
}

func TestUsersFormatting(t *testing.T) {
	assert.Equal(t, "Connected users: alice, bob", formatUsers([]string{"alice", "bob"}))
	assert.Equal(t, "Connected users: ", formatUsers(nil))
}

func TestIsExpectedCloseError(t *testing.T) {
	assert.True(t, isExpectedCloseError(nil))
	assert.True(t, isExpectedCloseError(net.ErrClosed))
	assert.False(t, isExpectedCloseError(errors.New("connection reset by peer")))
}
