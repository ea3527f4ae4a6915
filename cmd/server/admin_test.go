package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"credo/internal/session"
	id "credo/pkg/domain"
	audit "credo/pkg/platform/audit"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type fakeAdminAuditor struct {
	drafts []audit.Draft
}

func (f *fakeAdminAuditor) Emit(_ context.Context, d audit.Draft) error {
	f.drafts = append(f.drafts, d)
	return nil
}

func newAdminRouter(h *adminHandlers) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/admin", func(r chi.Router) {
		r.Post("/sessions/{sessionID}/revoke", h.revokeSession)
	})
	return r
}

func TestRevokeSessionRevokesAndAudits(t *testing.T) {
	sessions := session.NewMemoryStore(time.Hour)
	auditor := &fakeAdminAuditor{}
	sess, err := sessions.Create(context.Background(), id.NewSubjectID(), id.NewTenantID(), id.NewDeviceID(), true)
	require.NoError(t, err)

	h := &adminHandlers{sessions: sessions, auditor: auditor}
	r := newAdminRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/admin/sessions/"+sess.ID.String()+"/revoke", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	result, err := sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, session.Absent, result.State)

	require.Len(t, auditor.drafts, 1)
	require.Equal(t, audit.ActionSessionRevoked, auditor.drafts[0].Action)
	require.Equal(t, audit.DecisionRevoked, auditor.drafts[0].Decision)
	require.Equal(t, sess.SubjectID, auditor.drafts[0].SubjectID)
}

func TestRevokeSessionUnknownReturnsNotFound(t *testing.T) {
	sessions := session.NewMemoryStore(time.Hour)
	h := &adminHandlers{sessions: sessions, auditor: &fakeAdminAuditor{}}
	r := newAdminRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/admin/sessions/"+id.NewSessionID().String()+"/revoke", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}
