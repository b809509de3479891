package validator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukfreecomps/pipeline/internal/bus"
	"github.com/ukfreecomps/pipeline/internal/model"
	"github.com/ukfreecomps/pipeline/internal/resilience"
	"github.com/ukfreecomps/pipeline/pkg/gemini"
)

type capturePublisher struct {
	mu       sync.Mutex
	payloads []model.Competition
	fail     error
}

func (p *capturePublisher) Publish(_ context.Context, payload any) error {
	if p.fail != nil {
		return p.fail
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload.(model.Competition))
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type stubLLM struct {
	json string
	err  error
}

func (s *stubLLM) GenerateText(context.Context, string, gemini.TextRequest) (string, error) {
	return s.json, s.err
}

func (s *stubLLM) GenerateJSON(context.Context, string, string) (string, error) {
	return s.json, s.err
}

func (s *stubLLM) Enabled() bool { return true }

func TestProcessApprovesAndStampsVerifiedAt(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{}
	v := New(pub, &stubLLM{json: `{
		"live": true, "free_entry": true, "has_skill_question": true,
		"entry_time_estimate": "2-3 minutes", "hype_score_adjustment": 2,
		"exemption_type": "free_draw", "free_route_verified": true,
		"skill_test_required": false, "subscription_risk": false,
		"premium_rate_detected": false
	}`}, "gemini-2.5-flash")
	fixed := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return fixed }

	got, err := v.Process(context.Background(), validCompetition(), "<p>excerpt</p>")
	require.NoError(t, err)

	assert.Equal(t, 10, got.HypeScore) // 9 + 2 clamped to 10
	assert.True(t, got.HasSkillQuestion)
	assert.Equal(t, "2-3 minutes", got.EntryTimeEstimate)
	assert.Equal(t, model.ExemptionFreeDraw, got.ExemptionType)
	assert.True(t, got.FreeRouteVerified)
	require.NotNil(t, got.VerifiedAt)
	assert.Equal(t, "2026-08-31T12:00:00Z", *got.VerifiedAt)
	assert.True(t, got.Verified())

	require.Len(t, pub.payloads, 1)
	assert.Equal(t, *got, pub.payloads[0])
}

func TestProcessNotLiveIsPermanent(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{}
	v := New(pub, &stubLLM{json: `{"live": false}`}, "gemini-2.5-flash")

	_, err := v.Process(context.Background(), validCompetition(), "")
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
	assert.Empty(t, pub.payloads)
}

func TestProcessSchemaRejectionIdempotent(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{}
	v := New(pub, nil, "")

	comp := validCompetition()
	comp.ID = ""
	comp.SourceURL = "::bad::"

	for i := 0; i < 3; i++ {
		_, err := v.Process(context.Background(), comp, "")
		require.Error(t, err)
		assert.True(t, resilience.IsPermanent(err))
	}
	assert.Empty(t, pub.payloads)
}

func TestProcessLLMFailureUsesFallback(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{}
	v := New(pub, &stubLLM{err: assert.AnError}, "gemini-2.5-flash")

	got, err := v.Process(context.Background(), validCompetition(), "")
	require.NoError(t, err)

	// Conservative fallback: optimistic on liveness and free entry, neutral
	// elsewhere, score unchanged.
	assert.True(t, got.IsFree)
	assert.Equal(t, 9, got.HypeScore)
	assert.Equal(t, "1–2 minutes", got.EntryTimeEstimate)
	assert.Equal(t, model.ExemptionUnknown, got.ExemptionType)
	assert.False(t, got.FreeRouteVerified)
	require.Len(t, pub.payloads, 1)
}

func TestProcessPublishFailureIsTransient(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{fail: resilience.NewTransientError(assert.AnError, 0)}
	v := New(pub, nil, "")

	_, err := v.Process(context.Background(), validCompetition(), "")
	require.Error(t, err)
	assert.False(t, resilience.IsPermanent(err))
	assert.True(t, resilience.IsTransient(err))
}

func TestHandleVerdicts(t *testing.T) {
	t.Parallel()

	t.Run("unparseable dropped", func(t *testing.T) {
		t.Parallel()
		v := New(&capturePublisher{}, nil, "")
		assert.Equal(t, bus.Drop, v.Handle(context.Background(), []byte("{")))
	})

	t.Run("schema violation dropped", func(t *testing.T) {
		t.Parallel()
		v := New(&capturePublisher{}, nil, "")
		body, _ := json.Marshal(model.Competition{ID: "x"})
		assert.Equal(t, bus.Drop, v.Handle(context.Background(), body))
	})

	t.Run("not live dropped", func(t *testing.T) {
		t.Parallel()
		v := New(&capturePublisher{}, &stubLLM{json: `{"live": false}`}, "m")
		body, _ := json.Marshal(validCompetition())
		assert.Equal(t, bus.Drop, v.Handle(context.Background(), body))
	})

	t.Run("transient publish failure retried", func(t *testing.T) {
		t.Parallel()
		pub := &capturePublisher{fail: resilience.NewTransientError(assert.AnError, 0)}
		v := New(pub, nil, "")
		body, _ := json.Marshal(validCompetition())
		assert.Equal(t, bus.Retry, v.Handle(context.Background(), body))
	})

	t.Run("approved acked", func(t *testing.T) {
		t.Parallel()
		pub := &capturePublisher{}
		v := New(pub, nil, "")
		body, _ := json.Marshal(validCompetition())
		require.Equal(t, bus.Ack, v.Handle(context.Background(), body))
		require.Len(t, pub.payloads, 1)
		assert.True(t, pub.payloads[0].Verified())
	})
}
