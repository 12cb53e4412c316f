package main

import (
	pb "anon-chat/infrastructure/grpc/chatpb"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	render(&buf, "localhost:8080", time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC), &pb.StatsResponse{
		KnownUsers: 5, Searching: 1, Paired: 4, Conversations: 2, Sessions: 5,
	})

	out := buf.String()
	req.Contains(out, "SEARCHING")
	req.Contains(out, "localhost:8080")
	req.Contains(out, "15:04:05")
	req.Regexp(`5\s+\|?\s*5\s+\|?\s*1\s+\|?\s*4\s+\|?\s*2`, out)
}
