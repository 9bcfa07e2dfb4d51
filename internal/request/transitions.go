package request

import (
	"fmt"

	dErrors "pilotdesk/pkg/domain-errors"
)

// TransitionPolicy controls how advanceStatus treats edges outside the
// intended forward path.
type TransitionPolicy int

const (
	// PolicyPermissive allows any status to move to any other status. Jumps
	// off the forward path are logged but not rejected. This matches how the
	// admin console is actually used.
	PolicyPermissive TransitionPolicy = iota
	// PolicyStrict rejects any edge not on the declared forward path.
	PolicyStrict
)

// forwardEdges is the intended linear lifecycle. Strict mode enforces it;
// permissive mode only uses it to decide what to warn about.
var forwardEdges = map[Status]Status{
	StatusNew:          StatusScoping,
	StatusScoping:      StatusAgreementOut,
	StatusAgreementOut: StatusSigned,
	StatusSigned:       StatusConverted,
}

// IsForward reports whether from→to is the next step on the intended path.
func IsForward(from, to Status) bool {
	return forwardEdges[from] == to
}

// Validate checks a proposed transition under the policy. Permissive mode
// never fails; strict mode rejects off-path edges with a validation error.
func (p TransitionPolicy) Validate(from, to Status) error {
	if _, err := ParseStatus(string(to)); err != nil {
		return err
	}
	if p == PolicyStrict && !IsForward(from, to) {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("transition %s -> %s is not on the declared lifecycle path", from, to))
	}
	return nil
}
