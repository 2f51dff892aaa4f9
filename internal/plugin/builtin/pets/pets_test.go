package pets

import (
	"testing"
	"time"

	"vaxbot/internal/store"
)

func date(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestApplyPetEdits(t *testing.T) {
	t.Parallel()
	now := date("2026-08-30")
	born := date("2020-05-01")

	tests := []struct {
		name    string
		pet     store.Pet
		flags   map[string]string
		changed bool
		wantErr bool
		check   func(t *testing.T, pet store.Pet)
	}{
		{
			name:    "rename",
			pet:     store.Pet{Name: "Rex"},
			flags:   map[string]string{"name": " Max "},
			changed: true,
			check: func(t *testing.T, pet store.Pet) {
				if pet.Name != "Max" {
					t.Fatalf("Name = %q", pet.Name)
				}
			},
		},
		{
			name:    "empty name rejected",
			pet:     store.Pet{Name: "Rex"},
			flags:   map[string]string{"name": "  "},
			wantErr: true,
		},
		{
			name:    "breed corrected",
			pet:     store.Pet{Name: "Rex", Breed: "labrador"},
			flags:   map[string]string{"breed": "golden retriever"},
			changed: true,
			check: func(t *testing.T, pet store.Pet) {
				if pet.Breed != "golden retriever" {
					t.Fatalf("Breed = %q", pet.Breed)
				}
			},
		},
		{
			name:    "birth date set",
			pet:     store.Pet{Name: "Rex"},
			flags:   map[string]string{"born": "2020-05-01"},
			changed: true,
			check: func(t *testing.T, pet store.Pet) {
				if pet.BirthDate == nil || !pet.BirthDate.Equal(born) {
					t.Fatalf("BirthDate = %v", pet.BirthDate)
				}
			},
		},
		{
			name:    "birth date cleared",
			pet:     store.Pet{Name: "Rex", BirthDate: &born},
			flags:   map[string]string{"born": "none"},
			changed: true,
			check: func(t *testing.T, pet store.Pet) {
				if pet.BirthDate != nil {
					t.Fatalf("BirthDate = %v", pet.BirthDate)
				}
			},
		},
		{
			name:    "future birth date rejected",
			pet:     store.Pet{Name: "Rex"},
			flags:   map[string]string{"born": "2030-01-01"},
			wantErr: true,
		},
		{
			name:    "bad date rejected",
			pet:     store.Pet{Name: "Rex"},
			flags:   map[string]string{"born": "May 2020"},
			wantErr: true,
		},
		{
			name:  "no flags is a no-op",
			pet:   store.Pet{Name: "Rex", Breed: "labrador"},
			flags: map[string]string{},
		},
		{
			name:  "same values are a no-op",
			pet:   store.Pet{Name: "Rex", BirthDate: &born},
			flags: map[string]string{"name": "Rex", "born": "2020-05-01"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			pet := tt.pet
			changed, err := applyPetEdits(&pet, tt.flags, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("applyPetEdits error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if changed != tt.changed {
				t.Fatalf("changed = %v, want %v", changed, tt.changed)
			}
			if tt.check != nil {
				tt.check(t, pet)
			}
		})
	}
}
