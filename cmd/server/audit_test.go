package main

import (
	"context"
	"testing"
	"time"

	audit "credo/pkg/platform/audit"

	"github.com/stretchr/testify/assert"
)

func TestChannelAuditorEmitSucceedsWithRoom(t *testing.T) {
	a := &channelAuditor{inbox: make(chan audit.Draft, 1), budget: time.Second}

	err := a.Emit(context.Background(), audit.Draft{Action: audit.ActionAccessDecision})

	assert.NoError(t, err)
	assert.Len(t, a.inbox, 1)
}

func TestChannelAuditorEmitFailsWhenBufferFull(t *testing.T) {
	a := &channelAuditor{inbox: make(chan audit.Draft, 1), budget: time.Second}
	a.inbox <- audit.Draft{}

	err := a.Emit(context.Background(), audit.Draft{Action: audit.ActionAccessDecision})

	assert.ErrorIs(t, err, errAuditBufferFull)
}

func TestChannelAuditorEmitRespectsCancelledContext(t *testing.T) {
	a := &channelAuditor{inbox: make(chan audit.Draft, 1), budget: time.Second}
	a.inbox <- audit.Draft{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Emit(ctx, audit.Draft{Action: audit.ActionAccessDecision})

	assert.Error(t, err)
}
