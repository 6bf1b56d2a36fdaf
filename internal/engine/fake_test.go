package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_CreateConflict(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	_, err := f.Create(ctx, Spec{Name: "deva-work-myapp", Image: "img"})
	require.NoError(t, err)

	_, err = f.Create(ctx, Spec{Name: "deva-work-myapp", Image: "img"})
	require.Error(t, err)
	assert.True(t, IsNameConflict(err), "duplicate create should be a name conflict, got: %v", err)
}

func TestFake_FindContainer(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	f.Add("deva-work-myapp", "running", map[string]string{LabelWorkspace: "/home/dev/work/myapp"})

	info, err := f.FindContainer(ctx, "deva-work-myapp")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.True(t, info.Running())
	assert.Equal(t, "/home/dev/work/myapp", info.Labels[LabelWorkspace])

	missing, err := f.FindContainer(ctx, "deva-nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFake_ListSelectors(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	f.Add("deva-a", "running", map[string]string{LabelManaged: "true", LabelAgent: "claude"})
	f.Add("deva-b", "exited", map[string]string{LabelManaged: "true", LabelAgent: "codex"})
	f.Add("other", "running", nil)

	managed, err := f.List(ctx, LabelManaged+"=true")
	require.NoError(t, err)
	assert.Len(t, managed, 2)

	claude, err := f.List(ctx, LabelManaged+"=true", LabelAgent+"=claude")
	require.NoError(t, err)
	require.Len(t, claude, 1)
	assert.Equal(t, "deva-a", claude[0].Name)
}

func TestFake_StateTransitions(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	id := f.Add("deva-a", "exited", nil)

	require.NoError(t, f.Start(ctx, id))
	state, err := f.State(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "running", state)

	require.NoError(t, f.Stop(ctx, id))
	state, err = f.State(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "exited", state)

	require.NoError(t, f.Remove(ctx, id))
	info, err := f.FindContainer(ctx, "deva-a")
	require.NoError(t, err)
	assert.Nil(t, info)
	assert.Contains(t, f.Removed, id)
}
