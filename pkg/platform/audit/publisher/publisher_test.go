package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	id "credo/pkg/domain"
	audit "credo/pkg/platform/audit"
	"credo/pkg/platform/audit/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	subjectID := id.NewSubjectID()
	err := pub.Emit(context.Background(), audit.Draft{
		SubjectID: subjectID,
		Action:    audit.ActionAccessDecision,
		Decision:  audit.DecisionAllow,
	})
	require.NoError(t, err)

	records, err := pub.List(context.Background(), subjectID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.ActionAccessDecision, records[0].Action)
	assert.Equal(t, audit.GenesisHash, records[0].PrevHash)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	subjectID := id.NewSubjectID()
	err := pub.Emit(context.Background(), audit.Draft{SubjectID: subjectID, Action: audit.ActionEntitlementGranted, Decision: audit.DecisionGranted})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	records, err := pub.List(context.Background(), subjectID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.ActionEntitlementGranted, records[0].Action)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	subjectID := id.NewSubjectID()
	for range 10 {
		err := pub.Emit(context.Background(), audit.Draft{SubjectID: subjectID, Action: audit.ActionAccessDecision, Decision: audit.DecisionAllow})
		require.NoError(t, err)
	}

	pub.Close()

	records, err := store.ListBySubject(context.Background(), subjectID)
	require.NoError(t, err)
	assert.Len(t, records, 10, "all drafts should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	subjectID := id.NewSubjectID()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Emit(context.Background(), audit.Draft{SubjectID: subjectID, Action: audit.ActionAccessDecision, Decision: audit.DecisionAllow})
		}()
	}
	wg.Wait()

	// Some drafts should have been dropped (buffer size 1). Just verify no
	// panic and the publisher is still usable.
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	subjectID := id.NewSubjectID()
	before := time.Now()
	err := pub.Emit(context.Background(), audit.Draft{SubjectID: subjectID, Action: audit.ActionAccessDecision, Decision: audit.DecisionAllow})
	require.NoError(t, err)
	after := time.Now()

	records, err := pub.List(context.Background(), subjectID)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.True(t, !records[0].EvaluatedAt.Before(before))
	assert.True(t, !records[0].EvaluatedAt.After(after))
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	subjectID := id.NewSubjectID()
	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	err := pub.Emit(context.Background(), audit.Draft{
		SubjectID:   subjectID,
		Action:      audit.ActionAccessDecision,
		Decision:    audit.DecisionAllow,
		EvaluatedAt: customTime,
	})
	require.NoError(t, err)

	records, err := pub.List(context.Background(), subjectID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, customTime, records[0].EvaluatedAt)
}

func TestPublisher_ContextCancellation(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	_ = pub.Emit(context.Background(), audit.Draft{SubjectID: id.NewSubjectID(), Action: audit.ActionAccessDecision, Decision: audit.DecisionAllow})
	time.Sleep(50 * time.Millisecond)

	_ = pub.Emit(context.Background(), audit.Draft{SubjectID: id.NewSubjectID(), Action: audit.ActionAccessDecision, Decision: audit.DecisionAllow})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Emit(ctx, audit.Draft{SubjectID: id.NewSubjectID(), Action: audit.ActionAccessDecision, Decision: audit.DecisionAllow})

	if err != nil {
		assert.True(t, err == context.Canceled || err.Error() == "audit buffer full",
			"expected context.Canceled or buffer full error, got: %v", err)
	}
}

func TestPublisher_MultipleEvents(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	subjectID := id.NewSubjectID()
	drafts := []audit.Draft{
		{SubjectID: subjectID, Action: audit.ActionAccessDecision, Decision: audit.DecisionAllow},
		{SubjectID: subjectID, Action: audit.ActionSessionRevoked, Decision: audit.DecisionRevoked},
		{SubjectID: subjectID, Action: audit.ActionEntitlementGranted, Decision: audit.DecisionGranted},
	}

	for _, d := range drafts {
		require.NoError(t, pub.Emit(context.Background(), d))
	}

	records, err := pub.List(context.Background(), subjectID)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, audit.ActionAccessDecision, records[0].Action)
	assert.Equal(t, audit.ActionSessionRevoked, records[1].Action)
	assert.Equal(t, audit.ActionEntitlementGranted, records[2].Action)
	assert.Equal(t, records[0].ContentHash, records[1].PrevHash, "each record chains onto the previous")
	assert.Equal(t, records[1].ContentHash, records[2].PrevHash)
}

func TestPublisher_DifferentSubjects(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	subjectID1 := id.NewSubjectID()
	subjectID2 := id.NewSubjectID()

	require.NoError(t, pub.Emit(context.Background(), audit.Draft{SubjectID: subjectID1, Action: audit.ActionAccessDecision, Decision: audit.DecisionAllow}))
	require.NoError(t, pub.Emit(context.Background(), audit.Draft{SubjectID: subjectID2, Action: audit.ActionEntitlementGranted, Decision: audit.DecisionGranted}))

	records1, err := pub.List(context.Background(), subjectID1)
	require.NoError(t, err)
	require.Len(t, records1, 1)
	assert.Equal(t, audit.ActionAccessDecision, records1[0].Action)

	records2, err := pub.List(context.Background(), subjectID2)
	require.NoError(t, err)
	require.Len(t, records2, 1)
	assert.Equal(t, audit.ActionEntitlementGranted, records2[0].Action)
}
