package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/voxlane/duet/logging"
	"github.com/voxlane/duet/model"
)

// Reasoner is an optional language-model layer around tool dispatch: it
// refines the raw user query before the tool runs and synthesizes the raw
// tool result into a natural-language answer afterwards. Both steps degrade
// gracefully — any model failure falls back to the unmodified input so a
// flaky model never fails a task.
type Reasoner struct {
	model  model.Model
	logger logging.Logger
}

// NewReasoner constructs a Reasoner around a model. A nil logger disables
// logging.
func NewReasoner(m model.Model, logger logging.Logger) *Reasoner {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Reasoner{model: m, logger: logger}
}

// RefineQuery rewrites the query using collected conversation context so the
// downstream tool receives a self-contained lookup. On any model error the
// original query is returned.
func (r *Reasoner) RefineQuery(ctx context.Context, query string, taskContext map[string]any) string {
	prompt := query
	if len(taskContext) > 0 {
		var sb strings.Builder
		sb.WriteString("Known context:\n")
		for k, v := range taskContext {
			fmt.Fprintf(&sb, "- %s: %v\n", k, v)
		}
		sb.WriteString("Query: ")
		sb.WriteString(query)
		prompt = sb.String()
	}

	resp, err := r.model.Complete(ctx, model.Request{
		System: "Rewrite the query as a single self-contained search query. Reply with the query only.",
		Prompt: prompt,
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		if err != nil {
			r.logger.Warn("reasoner.refine.fallback", "error", err.Error())
		}
		return query
	}
	return strings.TrimSpace(resp.Text)
}

// SynthesizeResult turns a raw tool result into a speakable answer to the
// original query. On any model error the raw result is returned unchanged.
func (r *Reasoner) SynthesizeResult(ctx context.Context, query string, result any) any {
	resp, err := r.model.Complete(ctx, model.Request{
		System: "Answer the user's question in one or two conversational sentences using only the provided data.",
		Prompt: fmt.Sprintf("Question: %s\nData: %v", query, result),
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		if err != nil {
			r.logger.Warn("reasoner.synthesize.fallback", "error", err.Error())
		}
		return result
	}
	return strings.TrimSpace(resp.Text)
}
