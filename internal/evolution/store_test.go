package evolution

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordDecisionPersistsFullRow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "default.sqlite")
	require.NoError(t, WithStore(dbPath, func(s *Store) error {
		id, err := s.RecordDecision(DecisionRecord{
			SessionKey:         "sess-1",
			ChatRoot:           "test",
			TaskDescription:    "delete the old logs",
			ToolCallCount:      2,
			Success:            true,
			Replanned:          true,
			ElapsedMS:          1234,
			ToolsDetail:        `[{"name":"run_command","success":true}]`,
			UserFeedback:       FeedbackPositive,
			ImplicitCorrection: true,
		}, nil)
		require.NoError(t, err)
		require.Greater(t, id, int64(0))
		return nil
	}))
}

func TestRecordDecisionDefaultsFeedbackAndToolsDetail(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "default.sqlite")
	require.NoError(t, WithStore(dbPath, func(s *Store) error {
		_, err := s.RecordDecision(DecisionRecord{
			ChatRoot:        "test",
			TaskDescription: "first turn",
		}, nil)
		require.NoError(t, err)
		return nil
	}))
}

func TestLastTaskDescriptionReturnsMostRecentForSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "default.sqlite")
	require.NoError(t, WithStore(dbPath, func(s *Store) error {
		_, err := s.RecordDecision(DecisionRecord{SessionKey: "sess-1", ChatRoot: "test", TaskDescription: "first"}, nil)
		require.NoError(t, err)
		_, err = s.RecordDecision(DecisionRecord{SessionKey: "sess-1", ChatRoot: "test", TaskDescription: "second"}, nil)
		require.NoError(t, err)
		_, err = s.RecordDecision(DecisionRecord{SessionKey: "sess-2", ChatRoot: "test", TaskDescription: "other session"}, nil)
		require.NoError(t, err)

		desc, ok, err := s.LastTaskDescription("sess-1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "second", desc)
		return nil
	}))
}

func TestLastTaskDescriptionNoPriorTurn(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "default.sqlite")
	require.NoError(t, WithStore(dbPath, func(s *Store) error {
		_, ok, err := s.LastTaskDescription("never-seen")
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
}
