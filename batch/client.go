package batch

import "context"

// TokenPair is the result of a refresh-token exchange
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Identity is the display metadata of a subject. It is cosmetic only.
type Identity struct {
	ID          string
	DisplayName string
}

// TokenExchanger swaps a refresh token for a new token pair
type TokenExchanger interface {
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (TokenPair, error)
}

// GroupEnroller adds subjects to a group and resolves their display identity
type GroupEnroller interface {
	EnrollSubject(ctx context.Context, groupID, subjectID, accessToken string) (bool, error)
	LookupIdentity(ctx context.Context, accessToken string) (Identity, error)
}

// APIClient is the full capability set of the remote provider used by the engines
type APIClient interface {
	TokenExchanger
	GroupEnroller
}
