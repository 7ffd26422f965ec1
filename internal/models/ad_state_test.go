package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validAd() AdState {
	return AdState{
		ID:          "ad-1",
		CreatedAt:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Impressions: 1000,
		Clicks:      20,
		Spend:       50,
		Revenue:     120,
	}
}

func TestAdState_CTR(t *testing.T) {
	ad := validAd()
	assert.InDelta(t, 0.02, ad.CTR(), 1e-9)

	ad.Impressions = 0
	ad.Clicks = 0
	assert.Equal(t, 0.0, ad.CTR(), "no impressions yields 0, not NaN")
}

func TestAdState_RealizedROAS(t *testing.T) {
	ad := validAd()
	assert.InDelta(t, 2.4, ad.RealizedROAS(), 1e-9)

	ad.Spend = 0
	assert.Equal(t, 0.0, ad.RealizedROAS(), "no spend yields 0, not Inf")
}

func TestAdState_Age(t *testing.T) {
	ad := validAd()
	now := ad.CreatedAt.Add(72 * time.Hour)
	assert.Equal(t, 72*time.Hour, ad.Age(now))
}

func TestAdState_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AdState)
		ok     bool
	}{
		{"valid", func(a *AdState) {}, true},
		{"empty id", func(a *AdState) { a.ID = "" }, false},
		{"zero created_at", func(a *AdState) { a.CreatedAt = time.Time{} }, false},
		{"negative impressions", func(a *AdState) { a.Impressions = -1 }, false},
		{"negative spend", func(a *AdState) { a.Spend = -0.01 }, false},
		{"negative revenue", func(a *AdState) { a.Revenue = -1 }, false},
		{"clicks exceed impressions", func(a *AdState) { a.Clicks = a.Impressions + 1 }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ad := validAd()
			tc.mutate(&ad)
			err := ad.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
