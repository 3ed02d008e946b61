// Package server defines the line-oriented wire protocol shared by the TCP
// relay and the WebSocket bridge.
package server

import (
	"fmt"
	"strings"
)

const (
	namePrompt = "Enter your Username:"
	farewell   = "Goodbye!"
)

func formatChat(name, text string) string {
	return name + ": " + text
}

func formatJoin(name string) string {
	return fmt.Sprintf("*** %s has joined the chat ***", name)
}

func formatLeave(name string) string {
	return fmt.Sprintf("*** %s has left the chat ***", name)
}

func formatUsers(names []string) string {
	return "Connected users: " + strings.Join(names, ", ")
}

func formatUnknownCommand(command string) string {
	return "Unknown command: " + command
}

// isCommand reports whether a chat line should be interpreted as a command.
func isCommand(line string) bool {
	return strings.HasPrefix(line, "/")
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
