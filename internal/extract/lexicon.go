package extract

// Canonical place values.
const (
	PlaceProviderVenue   = "provider venue"
	PlaceShortStayVenue  = "short-stay venue"
	PlaceClientResidence = "client residence"
)

// Canonical payment values.
const (
	PaymentPix  = "pix"
	PaymentCash = "cash"
	PaymentCard = "card"
)

// Canonical relative-day values. Explicit dates are returned as "dd/mm".
const (
	DayToday         = "today"
	DayTomorrow      = "tomorrow"
	DayAfterTomorrow = "day after tomorrow"
)

// Canonical day-part values.
const (
	DayPartMorning   = "morning"
	DayPartAfternoon = "afternoon"
	DayPartNight     = "night"
	DayPartNow       = "now"
	DayPartLater     = "later"
)

// Term maps surface phrases to one canonical value.
type Term struct {
	Canonical string
	Phrases   []string
}

// Lexicon is the static phrase table driving extraction. Swap it to localize.
type Lexicon struct {
	Places   []Term
	Payments []Term
	// Days are relative day markers and weekday names.
	Days []Term
	// DayParts are coarse markers used when no clock time is present.
	DayParts []Term
	// ClockWords map named times ("noon") to HH:MM.
	ClockWords []Term
	// HourPrefixes introduce a bare hour ("at 6", "às 20"). Unaccented "as"
	// is left out: it reads "same as 2 weeks ago" as 02:00.
	HourPrefixes []string
}

// DefaultLexicon covers English and Brazilian Portuguese phrasing. Places are
// phrased from the client's side of the chat: "your place" is the provider's venue.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Places: []Term{
			{Canonical: PlaceProviderVenue, Phrases: []string{
				"your place", "your venue", "your spot", "your studio", "at yours", "your flat",
				"seu local", "no seu local", "seu espaço", "seu espaco", "sua casa", "no seu ap", "seu apê",
				"villa rosa", "no villa rosa",
			}},
			{Canonical: PlaceShortStayVenue, Phrases: []string{
				"motel", "hotel", "short stay", "short-stay", "pousada", "flat por hora",
			}},
			{Canonical: PlaceClientResidence, Phrases: []string{
				"my place", "my house", "my home", "my apartment", "my flat", "at mine",
				"minha casa", "meu ap", "meu apê", "meu ape", "meu apto", "meu apartamento", "na minha casa",
			}},
		},
		Payments: []Term{
			{Canonical: PaymentPix, Phrases: []string{"pix", "chave pix"}},
			{Canonical: PaymentCash, Phrases: []string{
				"cash", "in cash", "dinheiro", "em espécie", "em especie", "espécie", "especie", "em mãos", "em maos",
			}},
			{Canonical: PaymentCard, Phrases: []string{
				"card", "credit", "debit", "credit card", "debit card",
				"cartão", "cartao", "débito", "debito", "crédito", "credito", "maquininha",
			}},
		},
		Days: []Term{
			{Canonical: DayAfterTomorrow, Phrases: []string{"day after tomorrow", "depois de amanhã", "depois de amanha"}},
			{Canonical: DayToday, Phrases: []string{"today", "hoje"}},
			{Canonical: DayTomorrow, Phrases: []string{"tomorrow", "amanhã", "amanha"}},
			{Canonical: "monday", Phrases: []string{"monday", "segunda-feira"}},
			{Canonical: "tuesday", Phrases: []string{"tuesday", "terça-feira", "terca-feira", "terça", "terca"}},
			{Canonical: "wednesday", Phrases: []string{"wednesday", "quarta-feira"}},
			{Canonical: "thursday", Phrases: []string{"thursday", "quinta-feira"}},
			{Canonical: "friday", Phrases: []string{"friday", "sexta-feira", "sexta"}},
			{Canonical: "saturday", Phrases: []string{"saturday", "sábado", "sabado"}},
			{Canonical: "sunday", Phrases: []string{"sunday", "domingo"}},
		},
		DayParts: []Term{
			{Canonical: DayPartLater, Phrases: []string{"later", "later on", "mais tarde", "depois"}},
			{Canonical: DayPartMorning, Phrases: []string{"morning", "manhã", "manha", "de manhã", "de manha"}},
			{Canonical: DayPartAfternoon, Phrases: []string{"afternoon", "tarde", "à tarde", "a tarde"}},
			{Canonical: DayPartNight, Phrases: []string{"night", "tonight", "evening", "noite", "à noite", "a noite"}},
			{Canonical: DayPartNow, Phrases: []string{"now", "right now", "agora", "agorinha"}},
		},
		ClockWords: []Term{
			{Canonical: "12:00", Phrases: []string{"noon", "midday", "meio-dia", "meio dia"}},
			{Canonical: "00:00", Phrases: []string{"midnight", "meia-noite", "meia noite"}},
		},
		HourPrefixes: []string{"at", "around", "about", "@", "às", "por volta das", "por volta de", "lá pelas", "la pelas"},
	}
}
