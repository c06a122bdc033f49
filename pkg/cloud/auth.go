package cloud

// AuthStrategy acquires an authorization header value (e.g. "Bearer ...").
type AuthStrategy interface {
	AuthorizationValue() (string, error)
}

// BearerToken implements AuthStrategy with a static access token.
type BearerToken string

func (t BearerToken) AuthorizationValue() (string, error) {
	if t == "" {
		return "", ErrUnauthorized
	}
	return "Bearer " + string(t), nil
}

// TokenFunc adapts a lazily obtained token, e.g. one read from a prompt.
type TokenFunc func() (string, error)

func (f TokenFunc) AuthorizationValue() (string, error) {
	tok, err := f()
	if err != nil {
		return "", err
	}
	return BearerToken(tok).AuthorizationValue()
}
