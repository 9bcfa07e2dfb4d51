package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "pilotdesk/pkg/domain-errors"
)

func TestStrictPolicyEnforcesForwardPath(t *testing.T) {
	require.NoError(t, PolicyStrict.Validate(StatusNew, StatusScoping))
	require.NoError(t, PolicyStrict.Validate(StatusSigned, StatusConverted))

	err := PolicyStrict.Validate(StatusNew, StatusSigned)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	err = PolicyStrict.Validate(StatusSigned, StatusNew)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestPermissivePolicyAllowsAnyDeclaredStatus(t *testing.T) {
	require.NoError(t, PolicyPermissive.Validate(StatusNew, StatusConverted))
	require.NoError(t, PolicyPermissive.Validate(StatusSigned, StatusNew))

	// Even permissive mode rejects values outside the enumeration.
	err := PolicyPermissive.Validate(StatusNew, Status("ARCHIVED"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestIsForward(t *testing.T) {
	assert.True(t, IsForward(StatusNew, StatusScoping))
	assert.True(t, IsForward(StatusAgreementOut, StatusSigned))
	assert.False(t, IsForward(StatusNew, StatusAgreementOut))
	assert.False(t, IsForward(StatusConverted, StatusNew))
}
