package domain

// OwnerKind identifies which kind of record an embedding belongs to.
type OwnerKind string

const (
	OwnerGeneralItem OwnerKind = "general_item"
	OwnerWishlist    OwnerKind = "wishlist"
)

// Owner identifies the record an embedding is keyed by. Exactly one owner
// kind is set; a donor offer reference is only carried on the general item
// arm, so illegal combinations cannot be constructed.
type Owner struct {
	kind         OwnerKind
	id           int64
	donorOfferID *int64
}

// GeneralItemOwner returns an owner for a general item, optionally tied to a
// donor offer.
func GeneralItemOwner(generalItemID int64, donorOfferID *int64) Owner {
	return Owner{kind: OwnerGeneralItem, id: generalItemID, donorOfferID: donorOfferID}
}

// WishlistOwner returns an owner for a wishlist entry.
func WishlistOwner(wishlistID int64) Owner {
	return Owner{kind: OwnerWishlist, id: wishlistID}
}

// NewOwner validates raw optional identifiers and builds an Owner. It fails
// when neither or both of the owner ids are present, or when a donor offer id
// is supplied without a general item id.
func NewOwner(generalItemID, wishlistID, donorOfferID *int64) (Owner, error) {
	switch {
	case generalItemID == nil && wishlistID == nil:
		return Owner{}, ErrMissingOwner
	case generalItemID != nil && wishlistID != nil:
		return Owner{}, ErrAmbiguousOwner
	case wishlistID != nil && donorOfferID != nil:
		return Owner{}, ErrDonorOfferWithoutGeneralItem
	case generalItemID != nil:
		return GeneralItemOwner(*generalItemID, donorOfferID), nil
	default:
		return WishlistOwner(*wishlistID), nil
	}
}

// Kind returns the owner kind.
func (o Owner) Kind() OwnerKind {
	return o.kind
}

// ID returns the owning record's id.
func (o Owner) ID() int64 {
	return o.id
}

// DonorOfferID returns the donor offer reference, nil unless the owner is a
// general item tied to an offer.
func (o Owner) DonorOfferID() *int64 {
	if o.kind != OwnerGeneralItem {
		return nil
	}
	return o.donorOfferID
}

// IsZero reports whether the owner has not been set.
func (o Owner) IsZero() bool {
	return o.kind == ""
}
