package protocol

import "unicode/utf8"

// MaxIdentityLength bounds the identity accepted in a ClientHello.
const MaxIdentityLength = 256

// ClientHello opens a handshake: the identity and the client's PAD(A).
type ClientHello struct {
	Identity string `json:"identity"`
	A        []byte `json:"A"` // Base64-encoded in JSON
}

// ServerChallenge answers a ClientHello with the stored salt and PAD(B).
type ServerChallenge struct {
	HandshakeID string `json:"handshake_id"`
	Salt        []byte `json:"salt"`
	B           []byte `json:"B"`
}

// ClientProof carries M1 for a pending handshake.
type ClientProof struct {
	HandshakeID string `json:"handshake_id"`
	M1          []byte `json:"M1"`
}

// ServerProof carries M2 once the client proof has been verified.
type ServerProof struct {
	M2 []byte `json:"M2"`
}

// Validate checks the structural constraints of the hello message.
// Range checks on A are left to the SRP engine.
func (m *ClientHello) Validate() error {
	switch {
	case m.Identity == "":
		return NewInvalidRequestError("identity is required")
	case len(m.Identity) > MaxIdentityLength:
		return NewInvalidRequestError("identity is too long")
	case !utf8.ValidString(m.Identity):
		return NewInvalidRequestError("identity is not valid UTF-8")
	case len(m.A) == 0:
		return NewInvalidRequestError("A is required")
	}
	return nil
}

// Validate checks the structural constraints of the proof message.
func (m *ClientProof) Validate() error {
	switch {
	case m.HandshakeID == "":
		return NewInvalidRequestError("handshake_id is required")
	case len(m.M1) == 0:
		return NewInvalidRequestError("M1 is required")
	}
	return nil
}
