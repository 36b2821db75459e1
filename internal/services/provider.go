package services

import (
	"context"
)

// Provider is a backing service the engine depends on
type Provider interface {
	// Type returns the service type name
	Type() string

	// HealthCheck checks if the service is available
	HealthCheck(ctx context.Context) error

	// Close releases the connection to the service
	Close() error
}

// BaseProvider provides common functionality for providers
type BaseProvider struct {
	serviceType string
}

// Type returns the service type
func (p *BaseProvider) Type() string {
	return p.serviceType
}

// FuncProvider adapts an existing client's ping and close functions to Provider
type FuncProvider struct {
	BaseProvider
	ping  func(ctx context.Context) error
	close func() error
}

// NewFuncProvider creates a provider of the given type. close may be nil.
func NewFuncProvider(serviceType string, ping func(ctx context.Context) error, close func() error) *FuncProvider {
	return &FuncProvider{
		BaseProvider: BaseProvider{serviceType: serviceType},
		ping:         ping,
		close:        close,
	}
}

// HealthCheck implements Provider
func (p *FuncProvider) HealthCheck(ctx context.Context) error {
	return p.ping(ctx)
}

// Close implements Provider
func (p *FuncProvider) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}
