package srp

import "fmt"

// State is the position of a session in its handshake.
type State int

// Session states. Clients move Start → AwaitingChallenge → ProofSent →
// Authenticated; servers move Start → AwaitingProof → Authenticated. Failed
// is terminal for both.
const (
	StateStart State = iota
	StateAwaitingChallenge
	StateProofSent
	StateAwaitingProof
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateAwaitingChallenge:
		return "awaiting-challenge"
	case StateProofSent:
		return "proof-sent"
	case StateAwaitingProof:
		return "awaiting-proof"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func stateError(op string, s State) error {
	return fmt.Errorf("%w: cannot %s in state %s", ErrInvalidState, op, s)
}
