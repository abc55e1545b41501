package configsource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igwedaniel/blockwatcher/internal/types"
)

func TestTriggerSetResolvesByIDAndSlug(t *testing.T) {
	set := NewTriggerSet()
	trigger := &types.TriggerConfig{
		ID:   "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11",
		Slug: "ops-email",
		Name: "Ops Email",
		Type: types.TriggerEmail,
	}
	set.Add(trigger)

	byID, ok := set.Resolve(types.TriggerRef{ID: trigger.ID})
	require.True(t, ok)
	assert.Same(t, trigger, byID)

	bySlug, ok := set.Resolve(types.TriggerRef{Slug: "ops-email"})
	require.True(t, ok)
	assert.Same(t, trigger, bySlug)

	_, ok = set.Resolve(types.TriggerRef{Slug: "missing"})
	assert.False(t, ok)
}

func TestTriggerSetIndicesDoNotCollide(t *testing.T) {
	set := NewTriggerSet()
	// A slug that happens to equal another trigger's id must not shadow it
	first := &types.TriggerConfig{ID: "shared-key", Slug: "first", Type: types.TriggerWebhook}
	second := &types.TriggerConfig{ID: "b1ffdc88", Slug: "shared-key", Type: types.TriggerEmail}
	set.Add(first)
	set.Add(second)

	byID, ok := set.Resolve(types.TriggerRef{ID: "shared-key"})
	require.True(t, ok)
	assert.Same(t, first, byID)

	bySlug, ok := set.Resolve(types.TriggerRef{Slug: "shared-key"})
	require.True(t, ok)
	assert.Same(t, second, bySlug)

	assert.Equal(t, 2, set.Len())
}

func TestTriggerSetContains(t *testing.T) {
	set := NewTriggerSet()
	set.Add(&types.TriggerConfig{ID: "id-1", Slug: "slug-1", Type: types.TriggerEmail})

	assert.True(t, set.Contains("id-1"))
	assert.True(t, set.Contains("slug-1"))
	assert.False(t, set.Contains("other"))
}

func TestNotFoundErrorMessage(t *testing.T) {
	assert.Equal(t, "no network configurations found", (&NotFoundError{}).Error())
	assert.Contains(t, (&NotFoundError{Requested: []string{"x"}}).Error(), "x")
}
