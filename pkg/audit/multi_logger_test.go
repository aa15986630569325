package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiLogger_Write(t *testing.T) {
	a := NewMemoryStore()
	b := NewMemoryStore()
	multi := NewMultiLogger(a, b)

	require.NoError(t, multi.Write(context.Background(), testEntry("01A", testNow, ActionRoleCreate, "u")))
	assert.Len(t, a.Entries(), 1)
	assert.Len(t, b.Entries(), 1)
	assert.NoError(t, multi.Close())
}

func TestMultiLogger_ContinuesPastFailure(t *testing.T) {
	failing := NewMemoryStore()
	failing.FailWith(errors.New("unavailable"))
	ok := NewMemoryStore()
	multi := NewMultiLogger(failing, ok)

	err := multi.Write(context.Background(), testEntry("01A", testNow, ActionRoleCreate, "u"))
	require.Error(t, err)

	var sinkErr *SinkError
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, "memory", sinkErr.Sink)
	assert.ErrorContains(t, err, "unavailable")
	assert.Len(t, ok.Entries(), 1)
}

func TestMultiLogger_Empty(t *testing.T) {
	assert.NoError(t, NewMultiLogger().Write(context.Background(), &Entry{}))
}
