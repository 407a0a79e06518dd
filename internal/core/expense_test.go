package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCandidate_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		cand    Candidate
		wantErr error
	}{
		{
			name: "valid candidate",
			cand: Candidate{
				Amount:      decimal.NewFromFloat(12.34),
				Category:    CategoryGroceries,
				Description: "weekly shop",
				Date:        "2024-03-01",
			},
		},
		{
			name: "timestamp date is truncated",
			cand: Candidate{
				Amount:      decimal.NewFromInt(5),
				Category:    CategoryOther,
				Description: "bus ticket",
				Date:        "2024-03-01T15:04:05Z",
			},
		},
		{
			name: "zero amount",
			cand: Candidate{
				Amount:      decimal.Zero,
				Category:    CategoryGroceries,
				Description: "x",
				Date:        "2024-03-01",
			},
			wantErr: ErrInvalidAmount,
		},
		{
			name: "negative amount",
			cand: Candidate{
				Amount:      decimal.NewFromInt(-3),
				Category:    CategoryGroceries,
				Description: "x",
				Date:        "2024-03-01",
			},
			wantErr: ErrInvalidAmount,
		},
		{
			name: "unknown category",
			cand: Candidate{
				Amount:      decimal.NewFromInt(3),
				Category:    "entertainment",
				Description: "x",
				Date:        "2024-03-01",
			},
			wantErr: ErrInvalidCategory,
		},
		{
			name: "blank description",
			cand: Candidate{
				Amount:      decimal.NewFromInt(3),
				Category:    CategoryUtilities,
				Description: "   ",
				Date:        "2024-03-01",
			},
			wantErr: ErrEmptyDescription,
		},
		{
			name: "unparseable date",
			cand: Candidate{
				Amount:      decimal.NewFromInt(3),
				Category:    CategoryUtilities,
				Description: "power bill",
				Date:        "01/03/2024",
			},
			wantErr: ErrInvalidDate,
		},
		{
			name: "empty date",
			cand: Candidate{
				Amount:      decimal.NewFromInt(3),
				Category:    CategoryUtilities,
				Description: "power bill",
			},
			wantErr: ErrInvalidDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cand.Normalize()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Normalize() error = %v, want %v", err, tt.wantErr)
				}
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("Normalize() error %v should wrap ErrInvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() unexpected error: %v", err)
			}
			if tt.cand.Date != "2024-03-01" {
				t.Errorf("Normalize() date = %q, want plain ISO date", tt.cand.Date)
			}
			if tt.cand.UserID != DefaultUserID {
				t.Errorf("Normalize() user_id = %q, want default %q", tt.cand.UserID, DefaultUserID)
			}
		})
	}
}

func TestCandidate_NormalizeKeepsUserID(t *testing.T) {
	cand := Candidate{
		UserID:      "user-42",
		Amount:      decimal.NewFromInt(1),
		Category:    CategoryHousehold,
		Description: "soap",
		Date:        "2024-01-15",
	}
	if err := cand.Normalize(); err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if cand.UserID != "user-42" {
		t.Errorf("Normalize() overwrote user_id: got %q", cand.UserID)
	}
}

func TestCategory_Valid(t *testing.T) {
	for _, c := range Categories {
		if !c.Valid() {
			t.Errorf("category %q should be valid", c)
		}
	}
	for _, c := range []Category{"", "food", "GROCERIES", "misc"} {
		if c.Valid() {
			t.Errorf("category %q should be invalid", c)
		}
	}
}
