package dto

//go:generate mockgen -source=interfaces.go -destination=../internal/mocks/mock_interfaces.go -package=mocks

import (
	"context"
)

// NetworkClient performs exactly one HTTP exchange for a fully prepared
// request. Retries, auth and header merging happen above it.
type NetworkClient interface {
	Ref() string
	Type() NetClientType
	ProcessRequest(ctx context.Context, req *APIRequest) (Response, error)
}

// TokenStorage holds the current access token of one Authentication.
// Get returns (nil, nil) when nothing is stored.
type TokenStorage interface {
	Store(ctx context.Context, token *AccessToken) error
	Get(ctx context.Context) (*AccessToken, error)
	Clear(ctx context.Context) error
}
