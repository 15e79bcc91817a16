package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlane/duet/core"
	"github.com/voxlane/duet/logging"
	"github.com/voxlane/duet/model"
	"github.com/voxlane/duet/tool"
)

type failingModel struct{}

func (failingModel) Complete(context.Context, model.Request) (model.Response, error) {
	return model.Response{}, errors.New("provider down")
}
func (failingModel) Info() model.Info { return model.Info{Name: "failing", Provider: "mock"} }

func TestReasoner_RefineQuery(t *testing.T) {
	m := model.NewMockModel("refiner")
	m.SetFallback(func(string) string { return "course fees for data science program" })

	r := NewReasoner(m, logging.NoOpLogger{})
	got := r.RefineQuery(context.Background(), "how much is it", map[string]any{"course_interest": "data science"})
	assert.Equal(t, "course fees for data science program", got)
}

func TestReasoner_RefineQueryFallsBackOnError(t *testing.T) {
	r := NewReasoner(failingModel{}, logging.NoOpLogger{})
	got := r.RefineQuery(context.Background(), "how much is it", nil)
	assert.Equal(t, "how much is it", got, "model failure never fails the task")
}

func TestReasoner_SynthesizeResult(t *testing.T) {
	m := model.NewMockModel("synth")
	m.SetFallback(func(string) string { return "The program costs $500." })

	r := NewReasoner(m, nil)
	got := r.SynthesizeResult(context.Background(), "how much is it", map[string]any{"fee": 500})
	assert.Equal(t, "The program costs $500.", got)
}

func TestReasoner_SynthesizeFallsBackOnError(t *testing.T) {
	r := NewReasoner(failingModel{}, nil)
	raw := map[string]any{"fee": 500}
	assert.Equal(t, raw, r.SynthesizeResult(context.Background(), "q", raw))
}

func TestProcessingAgent_WithReasoner(t *testing.T) {
	m := model.NewMockModel("e2e")
	m.SetFallback(func(prompt string) string { return "It is 42." })

	registry := tool.NewRegistry()
	registry.RegisterFunc(core.TaskKBSearch, "Search the KB", func(_ context.Context, _ string, _ map[string]any) (any, error) {
		return map[string]any{"answer": "42"}, nil
	})

	p, q, _ := newTestAgent(t, registry, func(o *Options) {
		o.Reasoner = NewReasoner(m, logging.NoOpLogger{})
	})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop() //nolint:errcheck

	id := q.Push(core.TaskKBSearch, "what is the answer")
	task := waitForStatus(t, q, id, core.StatusCompleted)
	assert.Equal(t, "It is 42.", task.Result, "synthesized answer replaces the raw result")
}
