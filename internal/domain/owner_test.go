package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func TestNewOwner_GeneralItem(t *testing.T) {
	owner, err := NewOwner(int64Ptr(42), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, OwnerGeneralItem, owner.Kind())
	assert.Equal(t, int64(42), owner.ID())
	assert.Nil(t, owner.DonorOfferID())
}

func TestNewOwner_GeneralItemWithDonorOffer(t *testing.T) {
	owner, err := NewOwner(int64Ptr(42), nil, int64Ptr(7))

	require.NoError(t, err)
	assert.Equal(t, OwnerGeneralItem, owner.Kind())
	require.NotNil(t, owner.DonorOfferID())
	assert.Equal(t, int64(7), *owner.DonorOfferID())
}

func TestNewOwner_Wishlist(t *testing.T) {
	owner, err := NewOwner(nil, int64Ptr(9), nil)

	require.NoError(t, err)
	assert.Equal(t, OwnerWishlist, owner.Kind())
	assert.Equal(t, int64(9), owner.ID())
	assert.Nil(t, owner.DonorOfferID())
}

func TestNewOwner_NeitherID(t *testing.T) {
	_, err := NewOwner(nil, nil, nil)

	assert.Equal(t, ErrMissingOwner, err)
}

func TestNewOwner_BothIDs(t *testing.T) {
	_, err := NewOwner(int64Ptr(1), int64Ptr(2), nil)

	assert.Equal(t, ErrAmbiguousOwner, err)
}

func TestNewOwner_DonorOfferWithoutGeneralItem(t *testing.T) {
	_, err := NewOwner(nil, int64Ptr(2), int64Ptr(3))

	assert.Equal(t, ErrDonorOfferWithoutGeneralItem, err)
}

func TestOwner_IsZero(t *testing.T) {
	var owner Owner
	assert.True(t, owner.IsZero())

	owner = WishlistOwner(1)
	assert.False(t, owner.IsZero())
}
