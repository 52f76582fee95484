package directory

import "context"

// Lookup abstracts repository operations for consumers of the directory.
type Lookup interface {
	MerchantForBusiness(ctx context.Context, businessID string) (Merchant, error)
	ListActiveStaff(ctx context.Context, merchantID string, role Role) ([]Staff, error)
	IsActive(ctx context.Context, staffID string) (bool, error)
	GetStaff(ctx context.Context, staffID string) (Staff, error)
}

// Service exposes read-only directory operations.
type Service struct {
	repo Lookup
}

// NewService builds a Service using the provided repository.
func NewService(repo Lookup) *Service {
	return &Service{repo: repo}
}

// MerchantForBusiness resolves the owning merchant of a business.
func (s *Service) MerchantForBusiness(ctx context.Context, businessID string) (Merchant, error) {
	return s.repo.MerchantForBusiness(ctx, businessID)
}

// ListActiveStaff returns ACTIVE staff for the role in stable order.
func (s *Service) ListActiveStaff(ctx context.Context, merchantID string, role Role) ([]Staff, error) {
	return s.repo.ListActiveStaff(ctx, merchantID, role)
}

// IsActive reports whether the staff member is currently ACTIVE.
func (s *Service) IsActive(ctx context.Context, staffID string) (bool, error) {
	return s.repo.IsActive(ctx, staffID)
}

// GetStaff fetches a staff member by id.
func (s *Service) GetStaff(ctx context.Context, staffID string) (Staff, error) {
	return s.repo.GetStaff(ctx, staffID)
}
