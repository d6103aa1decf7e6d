package conversations

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" Escalated ")
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, st)

	_, err = ParseStatus("open")
	var invalid *InvalidStateError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "open", invalid.Value)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCanTransition_Table(t *testing.T) {
	legal := map[Status][]Status{
		StatusTodo:      {StatusAssigned, StatusEscalated},
		StatusAssigned:  {StatusClosed},
		StatusEscalated: {StatusAssigned},
		StatusClosed:    {StatusTodo, StatusAssigned},
	}
	for _, from := range Statuses {
		for _, to := range Statuses {
			want := false
			for _, target := range legal[from] {
				want = want || target == to
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanTransition("archived", StatusTodo))
}

func TestInboundTarget(t *testing.T) {
	cases := map[Status]Status{
		StatusClosed:    StatusTodo,
		StatusAssigned:  StatusTodo,
		StatusEscalated: StatusEscalated,
		StatusTodo:      StatusTodo,
	}
	for from, want := range cases {
		got, ok := InboundTarget(from)
		assert.True(t, ok)
		assert.Equal(t, want, got, from)
	}
	_, ok := InboundTarget("archived")
	assert.False(t, ok)
}

func TestLegalTargets_IsCopy(t *testing.T) {
	targets := LegalTargets(StatusTodo)
	targets[0] = StatusClosed
	assert.False(t, CanTransition(StatusTodo, StatusClosed))
}
