package orchestrator

import (
	"fmt"
	"strings"

	"github.com/wolfman30/wa-autoresponder/internal/extract"
	"github.com/wolfman30/wa-autoresponder/internal/llm"
	"github.com/wolfman30/wa-autoresponder/internal/negotiation"
)

const baseRules = `You are a booking assistant replying on WhatsApp for an independent service provider.
Your goal is to agree on three things with the client: the place, the date and time, and the payment method.
Places: the provider's venue, a short-stay venue, or the client's residence.
Payment methods: pix, card or cash.

Reply rules:
- Answer in 2 to 6 short sentences, friendly, direct and polite.
- Never offer or accept discounts and do not negotiate prices.
- If asked for photos or videos, point to the website when one is configured; never send media.
- If the client sends audio, images or other media, explain politely that you only handle text and ask them to write instead.
- Refuse anything illegal or involving minors and end the conversation firmly.
- Always steer the conversation toward the missing booking details.
- Once place, date/time and payment are all confirmed the booking is closed: confirm briefly and stop selling.`

// Profile holds optional provider details rendered into the system prompt.
type Profile struct {
	Name       string
	Website    string
	Schedule   string
	ExtraAreas string
	Rates      string
}

// PromptBuilder renders the system prompt, few-shot examples and the steering
// line for each turn.
type PromptBuilder struct {
	profile  Profile
	persona  string
	fewShots []llm.Message
}

// NewPromptBuilder builds prompts for profile. persona is free text appended to
// the rules (DEFAULT_PERSONA).
func NewPromptBuilder(profile Profile, persona string) *PromptBuilder {
	return &PromptBuilder{
		profile:  profile,
		persona:  strings.TrimSpace(persona),
		fewShots: defaultFewShots(),
	}
}

func defaultFewShots() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleUser, Content: "Can I get a discount?"},
		{Role: llm.RoleAssistant, Content: "I don't do discounts, sorry. I can find you a good slot though. Do you prefer this afternoon or tonight?"},
		{Role: llm.RoleUser, Content: "Sending you a voice note"},
		{Role: llm.RoleAssistant, Content: "I only handle text messages, ok? Just write me the place and the time that works for you."},
		{Role: llm.RoleUser, Content: "Tomorrow 8pm at my place, I'll pay by card."},
		{Role: llm.RoleAssistant, Content: "Perfect! Tomorrow at 8pm at your place, paying by card. See you then."},
	}
}

// SystemPrompt renders the rules plus profile context and persona.
func (b *PromptBuilder) SystemPrompt() string {
	lines := []string{baseRules}
	var extra []string
	if b.profile.Name != "" {
		extra = append(extra, fmt.Sprintf("- You reply on behalf of %s.", b.profile.Name))
	}
	if b.profile.Website != "" {
		extra = append(extra, fmt.Sprintf("- Website for photos and videos: %s.", b.profile.Website))
	}
	if b.profile.Schedule != "" {
		extra = append(extra, fmt.Sprintf("- Working hours: %s.", b.profile.Schedule))
	}
	if b.profile.ExtraAreas != "" {
		extra = append(extra, fmt.Sprintf("- Also available in: %s.", b.profile.ExtraAreas))
	}
	if b.profile.Rates != "" {
		extra = append(extra, fmt.Sprintf("- Fixed rates: %s.", b.profile.Rates))
	}
	if len(extra) > 0 {
		lines = append(lines, "\nAdditional context:")
		lines = append(lines, extra...)
	}
	if b.persona != "" {
		lines = append(lines, "\nPersona:\n"+b.persona)
	}
	return strings.Join(lines, "\n")
}

// Steering tells the model what is agreed and what to ask for next.
func (b *PromptBuilder) Steering(st negotiation.State, missing []negotiation.Slot) string {
	var agreed []string
	for _, slot := range negotiation.AllSlots {
		if v := st.Slot(slot); v.Filled() {
			agreed = append(agreed, fmt.Sprintf("%s = %s", slot, v.Value))
		}
	}

	var sb strings.Builder
	if len(agreed) > 0 {
		sb.WriteString("Already agreed: ")
		sb.WriteString(strings.Join(agreed, ", "))
		sb.WriteString(". Do not ask about these again.\n")
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, slot := range missing {
			names = append(names, slotLabel(slot))
		}
		sb.WriteString("Still missing: ")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString(". Ask for them in one short, natural question.")
	} else {
		sb.WriteString("You asked recently about the remaining details; do not repeat the question. Answer the client briefly and keep the tone warm.")
	}
	return sb.String()
}

// Build assembles the prompt for one NEEDS_SLOT turn.
func (b *PromptBuilder) Build(st negotiation.State, missing []negotiation.Slot) llm.Prompt {
	messages := make([]llm.Message, 0, len(b.fewShots)+len(st.History))
	messages = append(messages, b.fewShots...)
	for _, turn := range st.History {
		role := llm.RoleUser
		if turn.Role == negotiation.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	return llm.Prompt{
		System:   []string{b.SystemPrompt(), b.Steering(st, missing)},
		Messages: messages,
	}
}

// Closing renders the confirmation sent when the booking closes.
func (b *PromptBuilder) Closing(facts negotiation.BookingFacts) string {
	return fmt.Sprintf("Perfect, it's booked: %s, %s, paying by %s. See you then!",
		placeLabel(facts.Place), facts.Time, facts.Payment)
}

func slotLabel(slot negotiation.Slot) string {
	switch slot {
	case negotiation.SlotPlace:
		return "the place"
	case negotiation.SlotTime:
		return "the date and time"
	case negotiation.SlotPayment:
		return "the payment method"
	default:
		return string(slot)
	}
}

func placeLabel(place string) string {
	switch place {
	case extract.PlaceProviderVenue:
		return "at my place"
	case extract.PlaceShortStayVenue:
		return "at a short-stay venue"
	case extract.PlaceClientResidence:
		return "at your place"
	default:
		return place
	}
}
