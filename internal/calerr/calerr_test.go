package calerr

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	require.Equal(t, KindValidation, KindOf(Validation("serial %q taken", "S1")))
	require.Equal(t, KindTraceability, KindOf(fmt.Errorf("record: %w", Traceability("not a reference"))))
	require.Equal(t, KindConflict, KindOf(errors.Wrap(Conflict("dup"), "create")))
	require.Equal(t, KindInfrastructure, KindOf(errors.New("connection reset")))
	require.Equal(t, Kind(""), KindOf(nil))
}

func TestInfra(t *testing.T) {
	require.NoError(t, Infra(nil, "select"))

	base := errors.New("boom")
	err := Infra(base, "select job")
	require.True(t, Is(err, KindInfrastructure))
	require.ErrorIs(t, err, base)
	require.Contains(t, err.Error(), "select job: boom")
}

func TestIs(t *testing.T) {
	require.True(t, Is(NotFound("job %d", 1), KindNotFound))
	require.False(t, Is(NotFound("job %d", 1), KindConflict))
	require.False(t, Is(nil, KindNotFound))
}
