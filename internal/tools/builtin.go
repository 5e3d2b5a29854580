package tools

import "github.com/MimeLyc/carshop-agent/internal/notify"

// ChatTools is the tool set offered to the shopping assistant, in the order
// the model sees them.
func ChatTools(searcher Searcher, scheduler Scheduler) []Tool {
	return []Tool{
		NewSearchTrims(searcher),
		NewDisplayRecommendations(),
		NewEstimateFinancing(),
		NewScheduleTestDrive(scheduler),
	}
}

// VoiceTools is the set reachable from the voice-agent webhooks.
func VoiceTools(searcher Searcher, sender notify.Sender) []Tool {
	return []Tool{
		NewSearchTrims(searcher),
		NewDisplayRecommendations(),
		NewEstimateFinancing(),
		NewSendEmailHTML(sender),
	}
}
