package ports

// TokenCodec mints and verifies the signed, expiring tokens that carry a user
// identity claim. Access and refresh tokens are signed with distinct keys so
// that an access-token compromise cannot forge a refresh token.
// Implementations are pure and safe for concurrent use.
type TokenCodec interface {
	IssueAccessToken(userID string) (string, error)
	IssueRefreshToken(userID string) (string, error)

	// VerifyAccessToken / VerifyRefreshToken check signature and expiry for
	// the respective key class and return the embedded user id. Failures are
	// domain.ErrTokenExpired or domain.ErrTokenInvalid.
	VerifyAccessToken(token string) (string, error)
	VerifyRefreshToken(token string) (string, error)
}
