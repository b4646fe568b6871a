package debate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/pkg/config"
	"inquest/pkg/proto"
)

func TestRosterFullComposition(t *testing.T) {
	cfg := config.DefaultConfig().Debate
	roster := NewRoster(cfg)

	assert.Len(t, roster.All(), 7)
	assert.Len(t, roster.Analysis(), 3)
	assert.True(t, roster.Has("critic"))
	assert.True(t, roster.Has("rebuttal"))

	judge := roster.Judge()
	assert.Equal(t, proto.RoleJudge, judge.Role)
	assert.Equal(t, 2, judge.Attempts)
	assert.Equal(t, cfg.JudgeModel, judge.Model)

	commander := roster.Commander()
	assert.Equal(t, 2, commander.Attempts)
}

func TestRosterFlagGating(t *testing.T) {
	cfg := config.DefaultConfig().Debate
	cfg.EnableCritique = false
	cfg.EnableRebuttal = false
	roster := NewRoster(cfg)

	assert.Len(t, roster.All(), 5)
	assert.False(t, roster.Has("critic"))
	assert.False(t, roster.Has("rebuttal"))
	assert.True(t, roster.Has("judge"))
}

func TestRosterGetUnknownWorker(t *testing.T) {
	roster := NewRoster(config.DefaultConfig().Debate)
	_, err := roster.Get("historian")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "historian")
}

func TestCategoryFor(t *testing.T) {
	assert.Equal(t, "infrastructure", CategoryFor("log_analyst"))
	assert.Equal(t, "design", CategoryFor("domain_mapper"))
	assert.Equal(t, "code", CategoryFor("code_analyst"))
	assert.Equal(t, "judgment", CategoryFor("judge"))
	assert.Equal(t, "unknown", CategoryFor("someone_else"))
}
