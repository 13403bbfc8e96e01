package eval

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// content-comparing fakes: Upsert reports a write only when the stored value
// differs, mirroring the SQL upserts.

type fakePrompts struct{ store map[string]domain.Prompt }

func (f *fakePrompts) GetByType(_ domain.Context, appID, promptType, userID string) (domain.Prompt, error) {
	p, ok := f.store[appID+"/"+promptType+"/"+userID]
	if !ok {
		return domain.Prompt{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakePrompts) Upsert(_ domain.Context, p domain.Prompt) (bool, error) {
	key := p.AppID + "/" + p.PromptType + "/" + p.UserID
	if existing, ok := f.store[key]; ok && existing.Content == p.Content && existing.Name == p.Name {
		return false, nil
	}
	f.store[key] = p
	return true, nil
}

type fakeSchemas struct{ store map[string]domain.SchemaDef }

func (f *fakeSchemas) GetByType(_ domain.Context, appID, schemaType, userID string) (domain.SchemaDef, error) {
	s, ok := f.store[appID+"/"+schemaType+"/"+userID]
	if !ok {
		return domain.SchemaDef{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeSchemas) Upsert(_ domain.Context, s domain.SchemaDef) (bool, error) {
	key := s.AppID + "/" + s.SchemaType + "/" + s.UserID
	if existing, ok := f.store[key]; ok && reflect.DeepEqual(existing.Content, s.Content) && existing.Name == s.Name {
		return false, nil
	}
	f.store[key] = s
	return true, nil
}

type fakeEvaluators struct{ store map[string]domain.Evaluator }

func (f *fakeEvaluators) Get(_ domain.Context, id string) (domain.Evaluator, error) {
	e, ok := f.store[id]
	if !ok {
		return domain.Evaluator{}, domain.ErrNotFound
	}
	return e, nil
}

func (f *fakeEvaluators) List(_ domain.Context, _ string) ([]domain.Evaluator, error) {
	return nil, nil
}

func (f *fakeEvaluators) ExistingIDs(_ domain.Context, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := f.store[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeEvaluators) Upsert(_ domain.Context, e domain.Evaluator) (bool, error) {
	key := e.AppID + "/" + e.Name + "/" + e.UserID
	if existing, ok := f.store[key]; ok && reflect.DeepEqual(existing, e) {
		return false, nil
	}
	f.store[key] = e
	return true, nil
}

func TestSeeder_IdempotentRerun(t *testing.T) {
	s := &Seeder{
		Prompts:    &fakePrompts{store: map[string]domain.Prompt{}},
		Schemas:    &fakeSchemas{store: map[string]domain.SchemaDef{}},
		Evaluators: &fakeEvaluators{store: map[string]domain.Evaluator{}},
	}
	ctx := context.Background()

	first, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(defaultPrompts), first.PromptsWritten)
	assert.Equal(t, len(defaultSchemas), first.SchemasWritten)
	assert.Equal(t, len(defaultEvaluators()), first.EvaluatorsWritten)

	second, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.PromptsWritten, "re-run must not rewrite equal prompts")
	assert.Zero(t, second.SchemasWritten, "re-run must not rewrite equal schemas")
	assert.Zero(t, second.EvaluatorsWritten, "re-run must not rewrite equal evaluators")
}

func TestSeeder_RewritesDriftedContent(t *testing.T) {
	prompts := &fakePrompts{store: map[string]domain.Prompt{}}
	s := &Seeder{
		Prompts:    prompts,
		Schemas:    &fakeSchemas{store: map[string]domain.SchemaDef{}},
		Evaluators: &fakeEvaluators{store: map[string]domain.Evaluator{}},
	}
	ctx := context.Background()
	_, err := s.Run(ctx)
	require.NoError(t, err)

	// simulate a manual edit of one seeded prompt
	key := DefaultAppID + "/" + PromptIntentJudge + "/" + DefaultUserID
	edited := prompts.store[key]
	edited.Content = "edited"
	prompts.store[key] = edited

	report, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PromptsWritten, "only the drifted prompt is rewritten")
}
