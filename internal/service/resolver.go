package service

import (
	"context"

	"marketgw/internal/market"
	"marketgw/internal/models"
	"marketgw/internal/repository"
)

// ContractResolver maps a contract spec to its durable row, creating
// on first sight. Callers always get one valid contract back or a
// typed error, never a duplicate-key failure.
type ContractResolver struct {
	Repo repository.Repository
}

func (r *ContractResolver) Resolve(ctx context.Context, spec market.ContractSpec) (*models.Contract, error) {
	const op = "service.ContractResolver.Resolve"
	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	item := &models.Contract{
		Symbol:   spec.Symbol,
		SecType:  spec.SecType,
		Exchange: spec.Exchange,
		Currency: spec.Currency,
		Expiry:   spec.Expiry,
		Strike:   spec.Strike,
		Right:    spec.Right,
	}
	if spec.Multiplier != "" {
		item.Multiplier = &spec.Multiplier
	}
	if spec.LocalSymbol != "" {
		item.LocalSymbol = &spec.LocalSymbol
	}
	contract, err := r.Repo.ResolveContract(ctx, item)
	if err != nil {
		return nil, market.E(market.KindStoreUnavailable, op, err)
	}
	if contract == nil {
		return nil, market.Ef(market.KindContractResolutionFailed, op, "no contract resolved for %s", spec.Symbol)
	}
	return contract, nil
}
