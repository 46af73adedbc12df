// Package srp implements the SRP-6a password-authenticated key exchange
// following the RFC 5054 conventions for padding and hashing.
//
// The server stores only a salt and a verifier v = g^x mod N. A handshake is
// four messages carried by the caller's transport:
//
//	Client                              Server
//	------                              ------
//	A = g^a                 I, A  -->   (salt, v) = lookup(I)
//	                                    B = k*v + g^b
//	x = KDF(I, P, salt)     <--  salt, B
//	u = H(PAD(A) | PAD(B))              u = H(PAD(A) | PAD(B))
//	S = (B - k*g^x)^(a+u*x)             S = (A * v^u)^b
//	K = H(PAD(S))                       K = H(PAD(S))
//	M1 = H(PAD(A) | PAD(B) | K)  M1 --> verify M1
//	verify M2               <--  M2     M2 = H(PAD(A) | M1 | K)
//
// where k = H(PAD(N) | PAD(g)) and PAD is the big-endian encoding widened to
// the byte length of N.
//
// StartClient and StartServer each return a single-use session. Sessions are
// not safe for concurrent use; Group values are immutable and may be shared.
// A session that reports an error is terminal and must be discarded.
//
// Modular arithmetic on secret values is done with saferith so that
// exponentiation time depends only on operand sizes, not their values.
package srp
