package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateManager(t *testing.T) {
	m := NewStateManager()
	assert.Equal(t, StateIdle, m.Get(1).State)

	m.Set(1, Session{State: StateAwaitingSlotMessage, SlotNo: 4, Value: "+15550100"})
	s := m.Get(1)
	assert.Equal(t, StateAwaitingSlotMessage, s.State)
	assert.Equal(t, int64(4), s.SlotNo)

	s.Value = "changed"
	assert.Equal(t, "+15550100", m.Get(1).Value)

	m.Reset(1)
	assert.Equal(t, Session{State: StateIdle}, m.Get(1))
}
