package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhub/taskhub/internal/types"
)

func task(id string, deps ...string) types.TaskConfig {
	return types.TaskConfig{ID: id, ExecType: types.ExecLocal, Deps: deps}
}

func TestBuildDiamond(t *testing.T) {
	specs := []types.TaskConfig{
		task("a"),
		task("b", "a"),
		task("c", "a"),
		task("d", "b", "c"),
	}
	g, err := Build("run1", specs)
	require.NoError(t, err)

	roots := g.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, "a", roots[0].ID.Value)

	d, ok := g.Get("d")
	require.True(t, ok)
	assert.Equal(t, int64(2), d.Indegree())
}

func TestBuildDetectsCycle(t *testing.T) {
	specs := []types.TaskConfig{
		task("a", "b"),
		task("b", "a"),
	}
	_, err := Build("run1", specs)
	require.Error(t, err)
	var cycleErr *ErrCycleDetected
	assert.ErrorAs(t, err, &cycleErr)
}

func TestBuildDetectsMissingDep(t *testing.T) {
	specs := []types.TaskConfig{task("a", "ghost")}
	_, err := Build("run1", specs)
	require.Error(t, err)
	var missingErr *ErrMissingDep
	assert.ErrorAs(t, err, &missingErr)
}

func TestBuildRejectsDuplicateID(t *testing.T) {
	specs := []types.TaskConfig{task("a"), task("a")}
	_, err := Build("run1", specs)
	assert.Error(t, err)
}

func TestBuildRejectsMissingID(t *testing.T) {
	specs := []types.TaskConfig{{ExecType: types.ExecLocal}}
	_, err := Build("run1", specs)
	assert.Error(t, err)
}
