package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GTBitsOfGood/hope-for-haiti-sub001/internal/domain"
)

// AllocationRepository reads allocation state for an offer and applies the
// per-pair commit operations used when a suggestion preview is kept.
type AllocationRepository struct {
	db dbtx
}

func NewAllocationRepository(pool *pgxpool.Pool) *AllocationRepository {
	return &AllocationRepository{db: pool}
}

func NewAllocationRepositoryWithTx(tx pgx.Tx) *AllocationRepository {
	return &AllocationRepository{db: tx}
}

// OfferAllocationItems loads every general item on the offer with its partner
// requests, the input to suggestion computation. Items without requests are
// included with an empty request list.
func (r *AllocationRepository) OfferAllocationItems(ctx context.Context, donorOfferID int64) ([]domain.AllocationItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT gi.id, gi.title, gi.unit_type, gi.quantity, ir.partner_id, ir.quantity
		 FROM general_items gi
		 LEFT JOIN item_requests ir ON ir.general_item_id = gi.id
		 WHERE gi.donor_offer_id = $1
		 ORDER BY gi.id, ir.partner_id`,
		donorOfferID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.AllocationItem
	index := make(map[int64]int)
	for rows.Next() {
		var (
			itemID, totalQuantity int64
			title, unitType       string
			partnerID, requested  *int64
		)
		if err := rows.Scan(&itemID, &title, &unitType, &totalQuantity, &partnerID, &requested); err != nil {
			return nil, err
		}

		i, ok := index[itemID]
		if !ok {
			items = append(items, domain.AllocationItem{
				GeneralItemID: itemID,
				Title:         title,
				UnitType:      unitType,
				TotalQuantity: totalQuantity,
			})
			i = len(items) - 1
			index[itemID] = i
		}

		if partnerID != nil {
			var qty int64
			if requested != nil {
				qty = *requested
			}
			items[i].Requests = append(items[i].Requests, domain.AllocationRequest{
				PartnerID: *partnerID,
				Quantity:  qty,
			})
		}
	}

	return items, rows.Err()
}

// OfferLineItemStates returns each line item on the offer with its current
// partner assignment, if any. This is the state a preview snapshots.
func (r *AllocationRepository) OfferLineItemStates(ctx context.Context, donorOfferID int64) ([]domain.LineItemState, error) {
	rows, err := r.db.Query(ctx,
		`SELECT li.id, li.general_item_id, a.partner_id
		 FROM line_items li
		 LEFT JOIN allocations a ON a.line_item_id = li.id
		 WHERE li.donor_offer_id = $1
		 ORDER BY li.general_item_id, li.id`,
		donorOfferID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []domain.LineItemState
	for rows.Next() {
		var s domain.LineItemState
		if err := rows.Scan(&s.LineItemID, &s.GeneralItemID, &s.PartnerID); err != nil {
			return nil, err
		}
		states = append(states, s)
	}

	return states, rows.Err()
}

// ReleaseAllocation removes the allocation carried by a line item. When the
// deletion leaves the allocation's distribution empty, the distribution is
// reclaimed as well. Releasing an unallocated line item is a no-op.
func (r *AllocationRepository) ReleaseAllocation(ctx context.Context, lineItemID int64) error {
	var distributionID int64
	err := r.db.QueryRow(ctx,
		`DELETE FROM allocations WHERE line_item_id = $1 RETURNING distribution_id`,
		lineItemID,
	).Scan(&distributionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}

	_, err = r.db.Exec(ctx,
		`DELETE FROM distributions d
		 WHERE d.id = $1
		   AND NOT EXISTS (SELECT 1 FROM allocations a WHERE a.distribution_id = d.id)`,
		distributionID,
	)
	return err
}

// EnsurePendingDistribution returns the partner's pending distribution,
// creating one when none exists.
func (r *AllocationRepository) EnsurePendingDistribution(ctx context.Context, partnerID int64) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`SELECT id FROM distributions WHERE partner_id = $1 AND status = 'PENDING' ORDER BY id LIMIT 1`,
		partnerID,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO distributions (partner_id, status) VALUES ($1, 'PENDING') RETURNING id`,
		partnerID,
	).Scan(&id)
	return id, err
}

// CreateAllocation assigns a line item to a partner under a distribution.
func (r *AllocationRepository) CreateAllocation(ctx context.Context, lineItemID, partnerID, distributionID int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO allocations (line_item_id, partner_id, distribution_id) VALUES ($1, $2, $3)`,
		lineItemID, partnerID, distributionID,
	)
	return err
}
