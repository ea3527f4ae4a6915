package memory

import (
	"context"
	"testing"

	id "credo/pkg/domain"
	audit "credo/pkg/platform/audit"

	"github.com/stretchr/testify/require"
)

func TestAppendChainsOntoPriorRecord(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	subjectID := id.NewSubjectID()

	first, err := store.Append(ctx, audit.Draft{SubjectID: subjectID, Action: audit.ActionAccessDecision, Decision: audit.DecisionAllow})
	require.NoError(t, err)
	require.Equal(t, audit.GenesisHash, first.PrevHash)

	second, err := store.Append(ctx, audit.Draft{SubjectID: subjectID, Action: audit.ActionSessionRevoked, Decision: audit.DecisionRevoked})
	require.NoError(t, err)
	require.Equal(t, first.ContentHash, second.PrevHash)
	require.NotEqual(t, first.ContentHash, second.ContentHash)
}

func TestListAllAcrossSubjectsIsChainOrdered(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	a := id.NewSubjectID()
	b := id.NewSubjectID()
	_, err := store.Append(ctx, audit.Draft{SubjectID: a, Action: audit.ActionAccessDecision, Decision: audit.DecisionAllow})
	require.NoError(t, err)
	_, err = store.Append(ctx, audit.Draft{SubjectID: b, Action: audit.ActionAccessDecision, Decision: audit.DecisionDeny})
	require.NoError(t, err)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	ok, brokenAt := audit.Verify(all)
	require.True(t, ok, "chain should verify, broke at index %d", brokenAt)
}

func TestListBySubjectIsolatesOtherSubjects(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	a := id.NewSubjectID()
	b := id.NewSubjectID()
	_, err := store.Append(ctx, audit.Draft{SubjectID: a, Action: audit.ActionAccessDecision, Decision: audit.DecisionAllow})
	require.NoError(t, err)
	_, err = store.Append(ctx, audit.Draft{SubjectID: b, Action: audit.ActionAccessDecision, Decision: audit.DecisionDeny})
	require.NoError(t, err)

	onlyA, err := store.ListBySubject(ctx, a)
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	require.Equal(t, a, onlyA[0].SubjectID)
}

func TestVerifyDetectsTamperedRecord(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	subjectID := id.NewSubjectID()

	_, err := store.Append(ctx, audit.Draft{SubjectID: subjectID, Action: audit.ActionAccessDecision, Decision: audit.DecisionAllow})
	require.NoError(t, err)
	rec2, err := store.Append(ctx, audit.Draft{SubjectID: subjectID, Action: audit.ActionSessionRevoked, Decision: audit.DecisionRevoked})
	require.NoError(t, err)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	ok, _ := audit.Verify(all)
	require.True(t, ok)

	rec2.Action = "TAMPERED"
	ok, brokenAt := audit.Verify(all)
	require.False(t, ok)
	require.Equal(t, 1, brokenAt)
}
