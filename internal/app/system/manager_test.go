package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name     string
	startErr error
	log      *[]string
}

func (s recordingService) Name() string { return s.name }

func (s recordingService) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	*s.log = append(*s.log, "start "+s.name)
	return nil
}

func (s recordingService) Stop(context.Context) error {
	*s.log = append(*s.log, "stop "+s.name)
	return nil
}

func TestManagerOrder(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(recordingService{name: "a", log: &log}))
	require.NoError(t, m.Register(recordingService{name: "b", log: &log}))
	assert.Error(t, m.Register(recordingService{name: "a", log: &log}))

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
	assert.Equal(t, []string{"a", "b"}, m.Names())
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(recordingService{name: "a", log: &log}))
	require.NoError(t, m.Register(recordingService{name: "b", log: &log, startErr: errors.New("boom")}))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b")
	assert.Equal(t, []string{"start a", "stop a"}, log)
}
