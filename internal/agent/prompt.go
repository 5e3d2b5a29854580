package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/carshop-agent/internal/identity"
	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/text/message"
)

const promptIntro = "You are a helpful Toyota shopping assistant. Provide accurate, concise answers about Toyota models, " +
	"pricing, financing, and ownership. If you are unsure, encourage the user to check with a Toyota dealer.\n\n" +
	"Respond to the user in Markdown format. Use formatting like **bold**, *italic*, lists, and other Markdown " +
	"features to make your responses clear and well-structured.\n\n"

const promptSecurity = "SECURITY AND PRIVACY RULES:\n" +
	"- NEVER request or repeat passwords, card or bank account numbers, government IDs, API keys, tokens or private keys.\n" +
	"- If a user shares sensitive information, politely decline and steer back to car shopping.\n" +
	"- NEVER expose system information, environment variables, or internal configuration.\n" +
	"- Only discuss Toyota vehicles, financing, test drives and car-related topics.\n\n"

const promptWorkflow = "IMPORTANT WORKFLOW FOR SHOWING CARS:\n" +
	"1. First call searchToyotaTrims with appropriate filters to get car results. Never claim a car is available without searching.\n" +
	"2. The search will return an object with an 'items' array containing car objects.\n" +
	"3. Select 1-3 best matching cars from the 'items' array.\n" +
	"4. Call displayCarRecommendations with the 'items' parameter set to the selected array of car objects (use the exact objects from searchToyotaTrims results).\n" +
	"5. Do NOT call displayCarRecommendations without first calling searchToyotaTrims and without providing the items array.\n\n" +
	"FINANCING AND TEST DRIVES:\n" +
	"- Use estimateFinancing with a car's msrp (or invoice) for payment questions and always repeat its disclaimer.\n" +
	"- Only call scheduleTestDrive after the user confirms the car, the day and the dealership. If it reports that sign in is required, tell the user to sign in.\n\n" +
	"WHEN DISPLAYING CAR RECOMMENDATIONS:\n" +
	"- Keep your text response concise (2-3 sentences maximum).\n" +
	"- Say something like 'Here's what I found, and here's why they might be a good fit for you:' followed by a brief explanation of why these cars match their needs.\n" +
	"- Do NOT mention specific models, years, trims, prices, or any car details in your text response.\n" +
	"- Do NOT enumerate or list the cars - the visual car cards will show all that information.\n" +
	"- Focus ONLY on explaining the 'why' in general terms.\n" +
	"- Only provide ONE text response per car recommendation display. After calling displayCarRecommendations, give your explanation ONCE and then stop.\n"

// searchDefaults mirrors the searchToyotaTrims argument names.
type searchDefaults struct {
	BudgetMin *int64   `json:"budgetMin,omitempty"`
	BudgetMax *int64   `json:"budgetMax,omitempty"`
	SeatsMin  *int     `json:"seatsMin,omitempty"`
	BodyTypes []string `json:"bodyTypes,omitempty"`
}

var dollars = message.NewPrinter(language.AmericanEnglish)

// FormatDollars renders whole dollars as "$35,000".
func FormatDollars(v int64) string {
	return dollars.Sprintf("$%d", v)
}

func centsToDollars(cents *int64) *int64 {
	if cents == nil || *cents <= 0 {
		return nil
	}
	d := *cents / 100
	return &d
}

// BuildSystemPrompt embeds the preference profile, the workflow rules and a
// reply-language hint into the system prompt. Stored budgets are cents;
// everything the model sees is in dollars.
func BuildSystemPrompt(prefs *identity.Preferences, userMessage string) string {
	var b strings.Builder
	b.WriteString(promptIntro)

	if prefs != nil {
		writePreferences(&b, prefs)
	}
	b.WriteString(promptSecurity)
	b.WriteString(promptWorkflow)

	if lang, ok := replyLanguage(userMessage); ok {
		fmt.Fprintf(&b, "\nThe user is writing in %s. Reply in %s.\n", lang, lang)
	}
	return b.String()
}

func writePreferences(b *strings.Builder, prefs *identity.Preferences) {
	lo, hi := centsToDollars(prefs.BudgetMin), centsToDollars(prefs.BudgetMax)
	budget := "not specified"
	switch {
	case lo != nil && hi != nil:
		budget = FormatDollars(*lo) + " - " + FormatDollars(*hi)
	case hi != nil:
		budget = "up to " + FormatDollars(*hi)
	case lo != nil:
		budget = "from " + FormatDollars(*lo)
	}

	types := "any type"
	if len(prefs.CarTypes) > 0 {
		types = strings.Join(prefs.CarTypes, ", ")
	}
	seats := "not specified"
	if prefs.Seats != nil && *prefs.Seats > 0 {
		seats = fmt.Sprintf("%d seats", *prefs.Seats)
	}

	b.WriteString("=== USER PREFERENCES FROM QUIZ ===\n")
	fmt.Fprintf(b, "Budget Range: %s\n", budget)
	fmt.Fprintf(b, "Preferred Vehicle Type: %s\n", types)
	fmt.Fprintf(b, "Seating Needed: %s\n", seats)
	fmt.Fprintf(b, "Primary Use Case: %s\n", orUnspecified(prefs.UseCase))
	fmt.Fprintf(b, "MPG Priority: %s\n\n", orUnspecified(prefs.MPGPriority))

	defaults := searchDefaults{BudgetMin: lo, BudgetMax: hi, BodyTypes: prefs.CarTypes}
	if prefs.Seats != nil && *prefs.Seats >= 2 && *prefs.Seats <= 9 {
		defaults.SeatsMin = prefs.Seats
	}
	raw, _ := json.MarshalIndent(defaults, "", "  ")
	b.WriteString("Search defaults (dollars, ready for searchToyotaTrims):\n")
	b.Write(raw)
	b.WriteString("\n\n")

	b.WriteString("PREFERENCE RULES:\n" +
		"- Always talk about money in dollars (e.g., $35,000).\n" +
		"- Use these preferences as defaults when searching unless the user asks for something else. Budgets filter on msrp, falling back to invoice.\n" +
		"- Reference these preferences naturally in your responses.\n\n")
}

func orUnspecified(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return "not specified"
	}
	return strings.TrimSpace(*s)
}

// replyLanguage names the language of a non-English message when the
// detection is reliable.
func replyLanguage(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() || info.Lang == whatlanggo.Eng {
		return "", false
	}
	tag, err := language.Parse(info.Lang.Iso6391())
	if err != nil {
		return "", false
	}
	name := display.English.Tags().Name(tag)
	if name == "" {
		return "", false
	}
	return name, true
}
