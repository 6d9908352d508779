package plan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopeBindAndLookup(t *testing.T) {
	s := NewScope()
	require.NoError(t, s.Bind("n", KindNode))
	kind, ok := s.Lookup("n")
	require.True(t, ok)
	require.Equal(t, KindNode, kind)

	_, ok = s.Lookup("missing")
	require.False(t, ok)
}

func TestScopeBindEmptyNameIsNoop(t *testing.T) {
	s := NewScope()
	require.NoError(t, s.Bind("", KindNode))
	_, ok := s.Lookup("")
	require.False(t, ok)
}

func TestScopeBindSameKindTwiceOK(t *testing.T) {
	s := NewScope()
	require.NoError(t, s.Bind("n", KindNode))
	require.NoError(t, s.Bind("n", KindNode))
}

func TestScopeBindConflictingKindErrors(t *testing.T) {
	s := NewScope()
	require.NoError(t, s.Bind("n", KindNode))
	err := s.Bind("n", KindRelationship)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, VariableTypeConflict, verr.Kind)
}

func TestScopeBindUnknownKindNeverConflicts(t *testing.T) {
	s := NewScope()
	require.NoError(t, s.Bind("n", KindNode))
	require.NoError(t, s.Bind("n", KindUnknown))
}

func TestScopeMustLookupUndefinedErrors(t *testing.T) {
	s := NewScope()
	_, err := s.MustLookup("ghost")
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, UndefinedVariable, verr.Kind)
}

func TestScopeCloneIsIndependent(t *testing.T) {
	s := NewScope()
	require.NoError(t, s.Bind("n", KindNode))
	clone := s.Clone()
	require.NoError(t, clone.Bind("m", KindNode))

	_, ok := s.Lookup("m")
	require.False(t, ok, "binding on the clone must not leak back to the original")

	kind, ok := clone.Lookup("n")
	require.True(t, ok)
	require.Equal(t, KindNode, kind)
}

func TestValidationErrorMessage(t *testing.T) {
	err := errf(UndefinedVariable, "variable %q is not defined", "x")
	require.Contains(t, err.Error(), "UndefinedVariable")
	require.Contains(t, err.Error(), `variable "x" is not defined`)
}
