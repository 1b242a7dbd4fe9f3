package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPlace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{"I'd like your place", PlaceProviderVenue},
		{"pode ser no seu local?", PlaceProviderVenue},
		{"MOTEL perto do centro", PlaceShortStayVenue},
		{"a hotel near the airport", PlaceShortStayVenue},
		{"come to my place", PlaceClientResidence},
		{"vem no meu apê", PlaceClientResidence},
		{"pode ser no villa rosa", PlaceProviderVenue},
		{"somewhere nice", ""},
		{"the motelier said hi", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			got := Extract(tt.text).Place
			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, tt.want != "", got.Found())
		})
	}
}

func TestExtractPlaceFirstMentionWins(t *testing.T) {
	got := Extract("motel or my place, whatever").Place
	assert.Equal(t, PlaceShortStayVenue, got.Value)
}

func TestExtractPayment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{"pix", PaymentPix},
		{"mando na chave pix", PaymentPix},
		{"Cash is fine", PaymentCash},
		{"pago em espécie", PaymentCash},
		{"débito ou crédito?", PaymentCard},
		{"credit card ok?", PaymentCard},
		{"do you take bitcoin", ""},
		{"discard that", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Extract(tt.text).Payment.Value)
		})
	}
}

func TestExtractTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text     string
		wantTime string
		wantKind Kind
		wantDay  string
	}{
		{"motel, 8pm, pix", "20:00", KindClock, ""},
		{"8:30 p.m. works", "20:30", KindClock, ""},
		{"12am?", "00:00", KindClock, ""},
		{"às 20 então", "20:00", KindClock, ""},
		{"as 21:30", "21:30", KindClock, ""},
		{"umas 22h", "22:00", KindClock, ""},
		{"20h30 fica bom", "20:30", KindClock, ""},
		{"tomorrow at 6, cash", "06:00", KindClock, DayTomorrow},
		{"amanhã por volta das 19", "19:00", KindClock, DayTomorrow},
		{"at noon", "12:00", KindClock, ""},
		{"tomorrow then", DayTomorrow, KindDay, DayTomorrow},
		{"hoje", DayToday, KindDay, DayToday},
		{"depois de amanhã", DayAfterTomorrow, KindDay, DayAfterTomorrow},
		{"dia 21/08", "21/08", KindDay, "21/08"},
		{"sexta à noite", "friday", KindDay, "friday"},
		{"this afternoon", DayPartAfternoon, KindDayPart, ""},
		{"de manhã", DayPartMorning, KindDayPart, ""},
		{"right now", DayPartNow, KindDayPart, ""},
		{"mais tarde", DayPartLater, KindDayPart, ""},
		{"tonight", DayPartNight, KindDayPart, ""},
		{"at 25", "", KindNone, ""},
		{"it takes 2 hours", "", KindNone, ""},
		{"32/13", "", KindNone, ""},
		{"31/02", "", KindNone, ""},
		{"dia 28/02", "28/02", KindDay, "28/02"},
		{"29/02", "29/02", KindDay, "29/02"},
		{"29/02/2027", "", KindNone, ""},
		{"same as 2 weeks ago", "", KindNone, ""},
		{"for 2 hrs", "", KindNone, ""},
		{"2hs is enough", "", KindNone, ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			got := Extract(tt.text)
			assert.Equal(t, tt.wantTime, got.Time.Value)
			assert.Equal(t, tt.wantKind, got.Time.Kind)
			assert.Equal(t, tt.wantDay, got.Day.Value)
		})
	}
}

func TestExtractAllCategoriesInOneMessage(t *testing.T) {
	got := Extract("Motel, 8pm, PIX")
	assert.Equal(t, PlaceShortStayVenue, got.Place.Value)
	assert.Equal(t, "20:00", got.Time.Value)
	assert.Equal(t, PaymentPix, got.Payment.Value)
	assert.False(t, got.Empty())
}

func TestExtractEmptyAndNoise(t *testing.T) {
	for _, text := range []string{"", "   ", "hello there", "😀😀", "???"} {
		got := Extract(text)
		if !got.Empty() {
			t.Fatalf("expected no matches for %q, got %+v", text, got)
		}
	}
}

func TestCustomLexicon(t *testing.T) {
	ex := New(Lexicon{
		Places:   []Term{{Canonical: "office", Phrases: []string{"the office"}}},
		Payments: []Term{{Canonical: "voucher", Phrases: []string{"voucher"}}},
	})
	got := ex.Extract("The Office, voucher, 9pm")
	assert.Equal(t, "office", got.Place.Value)
	assert.Equal(t, "voucher", got.Payment.Value)
	assert.Equal(t, "21:00", got.Time.Value)

	// Without hour prefixes or day terms only marked clock times are recognized.
	assert.False(t, ex.Extract("at 6 tomorrow").Time.Found())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "clock", KindClock.String())
	assert.Equal(t, "none", NotFound.Kind.String())
}
