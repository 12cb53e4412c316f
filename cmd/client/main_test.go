package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line     string
		expected command
	}{
		{"", command{name: commandNone}},
		{"   ", command{name: commandNone, raw: "   "}},
		{"hello there", command{name: commandText, arg: "hello there", raw: "hello there"}},
		{"/search", command{name: commandSearch, raw: "/search"}},
		{"/SEARCH", command{name: commandSearch, raw: "/SEARCH"}},
		{" /cancel ", command{name: commandCancel, raw: " /cancel "}},
		{"/end", command{name: commandEnd, raw: "/end"}},
		{"/file ./cat.png", command{name: commandFile, arg: "./cat.png", raw: "/file ./cat.png"}},
		{"/file", command{name: commandUnknown, raw: "/file"}},
		{"/dance now", command{name: commandUnknown, raw: "/dance"}},
		{"//search is a command", command{name: commandText, arg: "/search is a command", raw: "//search is a command"}},
		{"/quit", command{name: commandQuit, raw: "/quit"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			require.Equal(t, tt.expected, parseCommand(tt.line))
		})
	}
}
