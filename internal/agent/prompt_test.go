package agent

import (
	"testing"

	"github.com/MimeLyc/carshop-agent/internal/identity"
	"github.com/stretchr/testify/assert"
)

func TestBuildSystemPrompt_WithoutPreferences(t *testing.T) {
	t.Parallel()

	prompt := BuildSystemPrompt(nil, "I need a hybrid")
	assert.Contains(t, prompt, "IMPORTANT WORKFLOW FOR SHOWING CARS")
	assert.Contains(t, prompt, "SECURITY AND PRIVACY RULES")
	assert.NotContains(t, prompt, "USER PREFERENCES")
	assert.NotContains(t, prompt, "The user is writing in")
}

func TestBuildSystemPrompt_PreferencesInDollars(t *testing.T) {
	t.Parallel()

	prefs := &identity.Preferences{
		BudgetMin:   ptr(int64(2_500_000)),
		BudgetMax:   ptr(int64(3_500_000)),
		CarTypes:    []string{"SUV", "Crossover"},
		Seats:       ptr(7),
		MPGPriority: ptr("high"),
	}
	prompt := BuildSystemPrompt(prefs, "hello")

	assert.Contains(t, prompt, "Budget Range: $25,000 - $35,000")
	assert.Contains(t, prompt, "Preferred Vehicle Type: SUV, Crossover")
	assert.Contains(t, prompt, "Seating Needed: 7 seats")
	assert.Contains(t, prompt, "Primary Use Case: not specified")
	assert.Contains(t, prompt, "MPG Priority: high")
	assert.Contains(t, prompt, `"budgetMin": 25000`)
	assert.Contains(t, prompt, `"budgetMax": 35000`)
	assert.Contains(t, prompt, `"seatsMin": 7`)
	assert.NotContains(t, prompt, "2500000")
}

func TestBuildSystemPrompt_BudgetShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		prefs identity.Preferences
		want  string
	}{
		{"max only", identity.Preferences{BudgetMax: ptr(int64(4_000_000))}, "Budget Range: up to $40,000"},
		{"min only", identity.Preferences{BudgetMin: ptr(int64(2_000_000))}, "Budget Range: from $20,000"},
		{"zero ignored", identity.Preferences{BudgetMin: ptr(int64(0))}, "Budget Range: not specified"},
		{"none", identity.Preferences{}, "Budget Range: not specified"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Contains(t, BuildSystemPrompt(&tt.prefs, ""), tt.want)
		})
	}
}

func TestBuildSystemPrompt_SeatsOutsideSearchRange(t *testing.T) {
	t.Parallel()

	prompt := BuildSystemPrompt(&identity.Preferences{Seats: ptr(12)}, "")
	assert.Contains(t, prompt, "Seating Needed: 12 seats")
	assert.NotContains(t, prompt, "seatsMin")
}

func TestBuildSystemPrompt_ReplyLanguage(t *testing.T) {
	t.Parallel()

	prompt := BuildSystemPrompt(nil, "Estoy buscando un coche familiar con siete asientos y buen consumo de combustible")
	assert.Contains(t, prompt, "The user is writing in Spanish. Reply in Spanish.")
}

func TestFormatDollars(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "$0", FormatDollars(0))
	assert.Equal(t, "$950", FormatDollars(950))
	assert.Equal(t, "$1,234,567", FormatDollars(1234567))
}
