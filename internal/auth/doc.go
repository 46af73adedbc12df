// Package auth runs the server side of SRP-6a handshakes: it looks up
// verifier records, keeps pending handshakes between messages, throttles
// identities after failed proofs and answers unknown identities with stable
// fake records.
//
//go:generate go tool mockgen -destination=mock_store.go -package=auth github.com/fzdarsky/srp6a/internal/auth VerifierStore
package auth
