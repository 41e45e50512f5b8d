package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestUser_RecordLogin_SuspendsAfterThreeFailures(t *testing.T) {
	u := &User{Status: UserStatusActive}
	now := time.Now().UTC()

	u.RecordLogin(false, now)
	u.RecordLogin(false, now)
	require.Equal(t, UserStatusActive, u.Status)

	u.RecordLogin(false, now)
	require.Equal(t, 3, u.LoginAttempts)
	require.Equal(t, UserStatusSuspended, u.Status)
}

func TestUser_RecordLogin_ActivatesInactive(t *testing.T) {
	u := &User{Status: UserStatusInactive, LoginAttempts: 2}
	now := time.Now().UTC()

	u.RecordLogin(true, now)
	require.Equal(t, UserStatusActive, u.Status)
	require.Equal(t, 0, u.LoginAttempts)
	require.NotNil(t, u.LastLogin)
	require.True(t, u.LastLogin.Equal(now))
}

func TestUser_IsAdmin(t *testing.T) {
	var nilUser *User
	require.False(t, nilUser.IsAdmin())
	require.True(t, (&User{Role: RoleAdmin}).IsAdmin())
	require.False(t, (&User{Role: RoleModerator}).IsAdmin())
}

func TestShippingRate_FeeFor(t *testing.T) {
	lt1 := decimal.RequireFromString("90")
	r := ShippingRate{
		NormalGoodsRate:    decimal.RequireFromString("250"),
		SpecialGoodsRate:   decimal.RequireFromString("300"),
		NormalGoodsRateLT1: &lt1,
	}

	fee, ok := r.FeeFor(GoodsTypeNormal, decimal.RequireFromString("2.5"))
	require.True(t, ok)
	require.Equal(t, "625", fee.String())

	fee, ok = r.FeeFor(GoodsTypeNormal, decimal.RequireFromString("0.4"))
	require.True(t, ok)
	require.Equal(t, "90", fee.String())

	// no lt1 rate for special goods -> per-CBM price
	fee, ok = r.FeeFor(GoodsTypeSpecial, decimal.RequireFromString("0.5"))
	require.True(t, ok)
	require.Equal(t, "150", fee.String())

	_, ok = r.FeeFor("bulk", decimal.RequireFromString("1"))
	require.False(t, ok)
	_, ok = r.FeeFor(GoodsTypeNormal, decimal.Zero)
	require.False(t, ok)
}

func TestTrackingPatch_Apply(t *testing.T) {
	status := TrackingStatusVessel
	mark := "M856-FIM123"
	tr := &Tracking{Status: TrackingStatusPending, ShippingMark: ""}

	TrackingPatch{Status: &status, ShippingMark: &mark}.Apply(tr)
	require.Equal(t, TrackingStatusVessel, tr.Status)
	require.Equal(t, mark, tr.ShippingMark)
	require.Nil(t, tr.OwnerID)
}

func TestTrackingStatusLabel(t *testing.T) {
	require.Equal(t, "Arrived(Ghana)", TrackingStatusLabel(TrackingStatusArrivedGhana))
	require.Equal(t, "weird", TrackingStatusLabel("weird"))
}
