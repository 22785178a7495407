package lifecycle

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paflow/internal/paf/models"
	"paflow/internal/paf/store"
	"paflow/pkg/domain"
	dErrors "paflow/pkg/domain-errors"
	"paflow/pkg/requestcontext"
)

const platformCode = "PFLW"

var (
	creator    = domain.ActorContext{ActorID: 1, Role: domain.RoleUser, ScopeID: 100}
	agent      = domain.ActorContext{ActorID: 7, Role: domain.RoleAgent, ScopeID: 100}
	scopeAdmin = domain.ActorContext{ActorID: 50, Role: domain.RoleAdmin, ScopeID: 100}
	outsider   = domain.ActorContext{ActorID: 99, Role: domain.RoleUser, ScopeID: 200}
	otherAdmin = domain.ActorContext{ActorID: 60, Role: domain.RoleAdmin, ScopeID: 200}
)

type capturedNotification struct {
	pafID int64
	edge  Edge
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []capturedNotification
	done  chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{done: make(chan struct{}, 16)}
}

func (n *fakeNotifier) TransitionCompleted(_ context.Context, p *models.PAF, edge Edge) {
	n.mu.Lock()
	n.calls = append(n.calls, capturedNotification{pafID: p.ID, edge: edge})
	n.mu.Unlock()
	n.done <- struct{}{}
}

func (n *fakeNotifier) wait(t *testing.T) capturedNotification {
	t.Helper()
	select {
	case <-n.done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[len(n.calls)-1]
}

func actorCtx(actor domain.ActorContext) context.Context {
	return requestcontext.WithActor(context.Background(), actor)
}

func newService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemory()
	return New(mem, platformCode), mem
}

func createPAF(t *testing.T, svc *Service, in CreateInput) *models.PAF {
	t.Helper()
	p, err := svc.Create(actorCtx(creator), in)
	require.NoError(t, err)
	return p
}

func domesticInput() CreateInput {
	return CreateInput{
		Jurisdiction:   models.JurisdictionDomestic,
		FrequencyCode:  "12",
		ListOwnerNAICS: "541860",
	}
}

func signature() models.SignaturePayload {
	return models.SignaturePayload{
		SignerName:      "Dana Reyes",
		SignerTitle:     "List Owner",
		Method:          models.SignatureTyped,
		Data:            "Dana Reyes",
		RTDAcknowledged: true,
	}
}

func validation() models.ValidationPayload {
	return models.ValidationPayload{
		SignerName:  "Pat Quinn",
		SignerTitle: "Licensee Officer",
	}
}

func TestCreate(t *testing.T) {
	svc, mem := newService(t)

	t.Run("creates in INITIAL with a first history entry", func(t *testing.T) {
		p := createPAF(t, svc, domesticInput())

		assert.Equal(t, models.StatusInitial, p.Status)
		assert.Equal(t, models.TypeInitial, p.Type)
		assert.Equal(t, creator.ActorID, p.CreatorID)
		assert.Equal(t, creator.ScopeID, p.LicenseeScopeID)
		assert.Empty(t, p.DisplayIdentifier)

		history, err := mem.History(context.Background(), p.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.StatusInitial, history[0].Status)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		tests := []struct {
			name string
			in   CreateInput
		}{
			{"bad jurisdiction", CreateInput{Jurisdiction: "LUNAR", FrequencyCode: "12", ListOwnerNAICS: "541860"}},
			{"bad frequency", CreateInput{Jurisdiction: models.JurisdictionDomestic, FrequencyCode: "77", ListOwnerNAICS: "541860"}},
			{"missing NAICS", CreateInput{Jurisdiction: models.JurisdictionDomestic, FrequencyCode: "12"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.Create(actorCtx(creator), tt.in)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			})
		}
	})

	t.Run("requires an actor", func(t *testing.T) {
		_, err := svc.Create(context.Background(), domesticInput())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func TestDomesticPathWithoutAgent(t *testing.T) {
	svc, mem := newService(t)
	p := createPAF(t, svc, domesticInput())

	p, err := svc.Transition(actorCtx(creator), p.ID, EdgeSubmit, models.SubmitPayload{Notes: "ready"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingListOwnerApproval, p.Status, "no agent skips agent approval")

	p, err = svc.Transition(actorCtx(creator), p.ID, EdgeListOwnerApprove, signature())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingLicenseeValidation, p.Status, "domestic skips USPS approval")
	assert.True(t, p.ListOwnerSignature.Signed())

	p, err = svc.Transition(actorCtx(scopeAdmin), p.ID, EdgeLicenseeValidate, validation())
	require.NoError(t, err)
	assert.Equal(t, models.StatusValidatedActive, p.Status)
	assert.True(t, p.LicenseeSignature.Signed())
	require.NotNil(t, p.EffectiveDate)
	require.NotNil(t, p.ExpirationDate)
	assert.Equal(t, p.EffectiveDate.AddDate(1, 0, 0), *p.ExpirationDate)

	assert.Len(t, p.DisplayIdentifier, 18)
	assert.True(t, strings.HasPrefix(p.DisplayIdentifier, platformCode+"541860"+"12"))

	history, err := mem.History(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 4, "one entry per transition plus creation")
}

func TestForeignPathWithAgent(t *testing.T) {
	svc, _ := newService(t)

	in := domesticInput()
	in.Jurisdiction = models.JurisdictionForeign
	in.AgentID = agent.ActorID
	p := createPAF(t, svc, in)

	p, err := svc.Transition(actorCtx(creator), p.ID, EdgeSubmit, models.SubmitPayload{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingAgentApproval, p.Status)

	p, err = svc.Transition(actorCtx(agent), p.ID, EdgeAgentApprove, signature())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingListOwnerApproval, p.Status)
	assert.True(t, p.AgentSignature.Signed())

	p, err = svc.Transition(actorCtx(creator), p.ID, EdgeListOwnerApprove, signature())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingUSPSApprovalForeign, p.Status, "foreign routes through USPS approval")

	p, err = svc.Transition(actorCtx(scopeAdmin), p.ID, EdgeUSPSApprove, models.ApprovalPayload{Reference: "USPS-2026-0117"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingLicenseeValidation, p.Status)

	p, err = svc.Transition(actorCtx(scopeAdmin), p.ID, EdgeLicenseeValidate, validation())
	require.NoError(t, err)
	assert.Equal(t, models.StatusValidatedActive, p.Status)
}

func TestAuthorization(t *testing.T) {
	svc, mem := newService(t)

	tests := []struct {
		name    string
		actor   domain.ActorContext
		edge    Edge
		payload models.Payload
		prepare func(t *testing.T, svc *Service) *models.PAF
	}{
		{
			name:    "outsider cannot submit",
			actor:   outsider,
			edge:    EdgeSubmit,
			payload: models.SubmitPayload{},
			prepare: func(t *testing.T, svc *Service) *models.PAF {
				return createPAF(t, svc, domesticInput())
			},
		},
		{
			name:    "creator cannot agent-approve",
			actor:   creator,
			edge:    EdgeAgentApprove,
			payload: signature(),
			prepare: func(t *testing.T, svc *Service) *models.PAF {
				in := domesticInput()
				in.AgentID = agent.ActorID
				p := createPAF(t, svc, in)
				p, err := svc.Transition(actorCtx(creator), p.ID, EdgeSubmit, models.SubmitPayload{})
				require.NoError(t, err)
				return p
			},
		},
		{
			name:    "admin of another scope cannot validate",
			actor:   otherAdmin,
			edge:    EdgeLicenseeValidate,
			payload: validation(),
			prepare: func(t *testing.T, svc *Service) *models.PAF {
				p := createPAF(t, svc, domesticInput())
				p, err := svc.Transition(actorCtx(creator), p.ID, EdgeSubmit, models.SubmitPayload{})
				require.NoError(t, err)
				p, err = svc.Transition(actorCtx(creator), p.ID, EdgeListOwnerApprove, signature())
				require.NoError(t, err)
				return p
			},
		},
		{
			name:    "non-admin cannot reject",
			actor:   creator,
			edge:    EdgeReject,
			payload: models.RejectPayload{Reason: "incomplete"},
			prepare: func(t *testing.T, svc *Service) *models.PAF {
				p := createPAF(t, svc, domesticInput())
				p, err := svc.Transition(actorCtx(creator), p.ID, EdgeSubmit, models.SubmitPayload{})
				require.NoError(t, err)
				return p
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.prepare(t, svc)
			before, err := mem.FindByID(context.Background(), p.ID)
			require.NoError(t, err)

			_, err = svc.Transition(actorCtx(tt.actor), p.ID, tt.edge, tt.payload)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden), "got %v", err)

			after, err := mem.FindByID(context.Background(), p.ID)
			require.NoError(t, err)
			assert.Equal(t, before.Status, after.Status, "forbidden attempt must not mutate")

			history, err := mem.History(context.Background(), p.ID)
			require.NoError(t, err)
			for _, e := range history {
				assert.NotEqual(t, tt.actor.ActorID, e.ActorID, "forbidden attempt must not write history")
			}
		})
	}
}

func TestStatePreconditions(t *testing.T) {
	svc, _ := newService(t)

	t.Run("wrong status yields conflict", func(t *testing.T) {
		p := createPAF(t, svc, domesticInput())

		_, err := svc.Transition(actorCtx(scopeAdmin), p.ID, EdgeLicenseeValidate, validation())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("reject only from pending states", func(t *testing.T) {
		p := createPAF(t, svc, domesticInput())

		_, err := svc.Transition(actorCtx(scopeAdmin), p.ID, EdgeReject, models.RejectPayload{Reason: "incomplete"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict), "INITIAL is not rejectable")
	})

	t.Run("unknown edge", func(t *testing.T) {
		p := createPAF(t, svc, domesticInput())

		_, err := svc.Transition(actorCtx(creator), p.ID, Edge("escalate"), models.SubmitPayload{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("unknown PAF", func(t *testing.T) {
		_, err := svc.Transition(actorCtx(creator), 4242, EdgeSubmit, models.SubmitPayload{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestReject(t *testing.T) {
	svc, mem := newService(t)
	p := createPAF(t, svc, domesticInput())

	p, err := svc.Transition(actorCtx(creator), p.ID, EdgeSubmit, models.SubmitPayload{})
	require.NoError(t, err)

	p, err = svc.Transition(actorCtx(scopeAdmin), p.ID, EdgeReject, models.RejectPayload{Reason: "missing list owner address"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, p.Status)

	history, err := mem.History(context.Background(), p.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, "missing list owner address", last.Notes)
	assert.Equal(t, scopeAdmin.ActorID, last.ActorID)

	_, err = svc.Transition(actorCtx(creator), p.ID, EdgeSubmit, models.SubmitPayload{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict), "REJECTED is terminal")
}

func validated(t *testing.T, svc *Service) *models.PAF {
	t.Helper()
	p := createPAF(t, svc, domesticInput())
	p, err := svc.Transition(actorCtx(creator), p.ID, EdgeSubmit, models.SubmitPayload{})
	require.NoError(t, err)
	p, err = svc.Transition(actorCtx(creator), p.ID, EdgeListOwnerApprove, signature())
	require.NoError(t, err)
	p, err = svc.Transition(actorCtx(scopeAdmin), p.ID, EdgeLicenseeValidate, validation())
	require.NoError(t, err)
	return p
}

func TestRenew(t *testing.T) {
	t.Run("inside the window", func(t *testing.T) {
		svc, _ := newService(t)
		p := validated(t, svc)

		later := p.ExpirationDate.Add(-10 * 24 * time.Hour)
		ctx := requestcontext.WithTime(actorCtx(creator), later)

		renewed, err := svc.Transition(ctx, p.ID, EdgeRenew, models.RenewPayload{})
		require.NoError(t, err)
		assert.Equal(t, models.StatusPendingLicenseeValidation, renewed.Status)
		assert.Equal(t, models.TypeRenewal, renewed.Type)
		assert.Equal(t, p.DisplayIdentifier, renewed.DisplayIdentifier, "renewal keeps the identifier")
	})

	t.Run("after expiration still eligible", func(t *testing.T) {
		svc, _ := newService(t)
		p := validated(t, svc)

		later := p.ExpirationDate.Add(5 * 24 * time.Hour)
		ctx := requestcontext.WithTime(actorCtx(scopeAdmin), later)

		renewed, err := svc.Transition(ctx, p.ID, EdgeRenew, models.RenewPayload{})
		require.NoError(t, err)
		assert.Equal(t, models.TypeRenewal, renewed.Type)
	})

	t.Run("too early", func(t *testing.T) {
		svc, _ := newService(t)
		p := validated(t, svc)

		early := p.ExpirationDate.Add(-40 * 24 * time.Hour)
		ctx := requestcontext.WithTime(actorCtx(creator), early)

		_, err := svc.Transition(ctx, p.ID, EdgeRenew, models.RenewPayload{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("revalidation extends expiration and keeps identifier", func(t *testing.T) {
		svc, _ := newService(t)
		p := validated(t, svc)
		identifier := p.DisplayIdentifier

		later := p.ExpirationDate.Add(-10 * 24 * time.Hour)
		ctx := requestcontext.WithTime(actorCtx(creator), later)
		renewed, err := svc.Transition(ctx, p.ID, EdgeRenew, models.RenewPayload{})
		require.NoError(t, err)

		revalidateAt := later.Add(24 * time.Hour)
		ctx = requestcontext.WithTime(actorCtx(scopeAdmin), revalidateAt)
		renewed, err = svc.Transition(ctx, renewed.ID, EdgeLicenseeValidate, validation())
		require.NoError(t, err)

		assert.Equal(t, identifier, renewed.DisplayIdentifier)
		require.NotNil(t, renewed.ExpirationDate)
		assert.Equal(t, revalidateAt.AddDate(1, 0, 0), *renewed.ExpirationDate)
	})
}

func TestPayloadValidation(t *testing.T) {
	svc, _ := newService(t)

	in := domesticInput()
	in.AgentID = agent.ActorID
	p := createPAF(t, svc, in)
	p, err := svc.Transition(actorCtx(creator), p.ID, EdgeSubmit, models.SubmitPayload{})
	require.NoError(t, err)

	t.Run("signature without RTD acknowledgement", func(t *testing.T) {
		sig := signature()
		sig.RTDAcknowledged = false
		_, err := svc.Transition(actorCtx(agent), p.ID, EdgeAgentApprove, sig)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("wrong payload type", func(t *testing.T) {
		_, err := svc.Transition(actorCtx(agent), p.ID, EdgeAgentApprove, models.SubmitPayload{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("nil payload", func(t *testing.T) {
		_, err := svc.Transition(actorCtx(agent), p.ID, EdgeAgentApprove, nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func TestNotification(t *testing.T) {
	notifier := newFakeNotifier()
	mem := store.NewMemory()
	svc := New(mem, platformCode, WithNotifier(notifier))

	p, err := svc.Create(actorCtx(creator), domesticInput())
	require.NoError(t, err)

	_, err = svc.Transition(actorCtx(creator), p.ID, EdgeSubmit, models.SubmitPayload{})
	require.NoError(t, err)

	call := notifier.wait(t)
	assert.Equal(t, p.ID, call.pafID)
	assert.Equal(t, EdgeSubmit, call.edge)
}

func TestVisibility(t *testing.T) {
	svc, _ := newService(t)

	in := domesticInput()
	in.AgentID = agent.ActorID
	p := createPAF(t, svc, in)

	t.Run("parties and scope admin can view", func(t *testing.T) {
		for _, actor := range []domain.ActorContext{creator, agent, scopeAdmin} {
			_, err := svc.Get(actorCtx(actor), p.ID)
			assert.NoError(t, err)
		}
	})

	t.Run("outsider cannot view", func(t *testing.T) {
		_, err := svc.Get(actorCtx(outsider), p.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("list scopes per role", func(t *testing.T) {
		adminList, err := svc.List(actorCtx(scopeAdmin), "")
		require.NoError(t, err)
		assert.Len(t, adminList, 1)

		agentList, err := svc.List(actorCtx(agent), "")
		require.NoError(t, err)
		assert.Len(t, agentList, 1)

		outsiderList, err := svc.List(actorCtx(outsider), "")
		require.NoError(t, err)
		assert.Empty(t, outsiderList)
	})
}
