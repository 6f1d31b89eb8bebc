package keyword

import (
	"errors"
	"testing"
)

// mockTermDictionary is a mock implementation of TermDictionary for testing.
type mockTermDictionary struct {
	terms        map[string]int // term -> frequency
	getAllError  error
	getFreqError error
}

func newMockTermDictionary(terms map[string]int) *mockTermDictionary {
	return &mockTermDictionary{terms: terms}
}

func (m *mockTermDictionary) GetAllTerms() ([]string, error) {
	if m.getAllError != nil {
		return nil, m.getAllError
	}
	result := make([]string, 0, len(m.terms))
	for term := range m.terms {
		result = append(result, term)
	}
	return result, nil
}

func (m *mockTermDictionary) GetTermFrequency(term string) (int, error) {
	if m.getFreqError != nil {
		return 0, m.getFreqError
	}
	return m.terms[term], nil
}

func (m *mockTermDictionary) ContainsTerm(term string) (bool, error) {
	_, ok := m.terms[term]
	return ok, nil
}

var errMock = errors.New("mock error")

func TestSpellChecker_Defaults(t *testing.T) {
	sc := NewSpellChecker(newMockTermDictionary(nil))
	if sc.maxDistance != 2 || sc.minFreq != 1 || sc.maxSuggestions != 5 {
		t.Errorf("defaults: maxDistance=%d minFreq=%d maxSuggestions=%d", sc.maxDistance, sc.minFreq, sc.maxSuggestions)
	}
	sc = NewSpellChecker(newMockTermDictionary(nil),
		WithMaxDistance(3), WithMinFrequency(5), WithMaxSuggestions(10), WithMinTermLength(4))
	if sc.maxDistance != 3 || sc.minFreq != 5 || sc.maxSuggestions != 10 || sc.minTermLength != 4 {
		t.Errorf("options not applied: %+v", sc)
	}
}

func TestSpellChecker_Suggest(t *testing.T) {
	dict := newMockTermDictionary(map[string]int{
		"расхождения": 12,
		"регистрами":  4,
		"остатки":     9,
		"смена":       20,
	})
	sc := NewSpellChecker(dict, WithMaxDistance(2))
	if err := sc.RefreshCache(); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	tests := []struct {
		term      string
		wantFirst string
	}{
		{"расхожденя", "расхождения"},
		{"астатки", "остатки"},
		{"смены", "смена"},
		{"принтер", ""},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			got := sc.Suggest(tt.term)
			if tt.wantFirst == "" {
				if len(got) != 0 {
					t.Errorf("Suggest(%q) = %+v, want none", tt.term, got)
				}
				return
			}
			if len(got) == 0 || got[0].Term != tt.wantFirst {
				t.Errorf("Suggest(%q) = %+v, want %q first", tt.term, got, tt.wantFirst)
			}
		})
	}
}

func TestSpellChecker_Suggest_RanksByFrequency(t *testing.T) {
	dict := newMockTermDictionary(map[string]int{
		"кассы": 100,
		"массы": 10,
		"расы":  50,
	})
	sc := NewSpellChecker(dict, WithMaxDistance(1))
	got := sc.Suggest("басы")
	if len(got) == 0 || got[0].Term != "расы" {
		t.Errorf("Suggest(басы) = %+v, want расы first", got)
	}
	got = sc.Suggest("касы")
	if len(got) < 2 || got[0].Term != "кассы" {
		t.Errorf("higher frequency should rank first, got %+v", got)
	}
}

func TestSpellChecker_Suggest_RuneAwareLengthFilter(t *testing.T) {
	// Byte lengths differ by 2 per Cyrillic letter; the filter must count runes.
	dict := newMockTermDictionary(map[string]int{"чек": 3})
	sc := NewSpellChecker(dict, WithMaxDistance(1))
	if got := sc.Suggest("чеки"); len(got) != 1 {
		t.Errorf("Suggest(чеки) = %+v, want [чек]", got)
	}
}

func TestSpellChecker_Suggest_RespectsMinFrequency(t *testing.T) {
	dict := newMockTermDictionary(map[string]int{"тест": 5, "текст": 1})
	sc := NewSpellChecker(dict, WithMinFrequency(3))
	for _, s := range sc.Suggest("тост") {
		if s.Frequency < 3 {
			t.Errorf("suggestion %q has frequency %d, below minFreq 3", s.Term, s.Frequency)
		}
	}
}

func TestSpellChecker_Suggest_LimitsResults(t *testing.T) {
	terms := make(map[string]int)
	for _, r := range "абвгдежзиклмнопрст" {
		terms["смен"+string(r)] = 10
	}
	sc := NewSpellChecker(newMockTermDictionary(terms), WithMaxSuggestions(3))
	if got := sc.Suggest("смена1"); len(got) > 3 {
		t.Errorf("got %d suggestions, want at most 3", len(got))
	}
}

func TestSpellChecker_Check(t *testing.T) {
	dict := newMockTermDictionary(map[string]int{
		"открыть": 10,
		"смену":   8,
		"в":       30,
		"кассе":   6,
	})
	sc := NewSpellChecker(dict, WithMinTermLength(3))

	tests := []struct {
		query          string
		wantCorrected  string
		wantMisspelled int
	}{
		{"Открыть смену", "открыть смену", 0},
		{"открить смену в касе", "открыть смену в кассе", 2},
		{"смену x", "смену x", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			result, err := sc.Check(tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if result.CorrectedQuery != tt.wantCorrected {
				t.Errorf("CorrectedQuery = %q, want %q", result.CorrectedQuery, tt.wantCorrected)
			}
			if len(result.MisspelledTerms) != tt.wantMisspelled {
				t.Errorf("MisspelledTerms = %v, want %d", result.MisspelledTerms, tt.wantMisspelled)
			}
			if result.HasCorrections != (tt.wantMisspelled > 0) {
				t.Errorf("HasCorrections = %v", result.HasCorrections)
			}
		})
	}
}

func TestSpellChecker_IsMisspelled(t *testing.T) {
	sc := NewSpellChecker(newMockTermDictionary(map[string]int{"егаис": 3}))
	if sc.IsMisspelled("ЕГАИС") {
		t.Error("lookup should be case-insensitive")
	}
	if !sc.IsMisspelled("егаиз") {
		t.Error("unknown word should be misspelled")
	}
}

func TestSpellChecker_GetSuggestedQuery(t *testing.T) {
	sc := NewSpellChecker(newMockTermDictionary(map[string]int{"остатки": 10, "егаис": 5}))
	if got := sc.GetSuggestedQuery("астатки егаис"); got != "остатки егаис" {
		t.Errorf("GetSuggestedQuery = %q", got)
	}
	if got := sc.GetSuggestedQuery("принтер"); got != "принтер" {
		t.Errorf("no correction should return original, got %q", got)
	}
}

func TestSpellChecker_GetTopSuggestions(t *testing.T) {
	sc := NewSpellChecker(newMockTermDictionary(map[string]int{"смена": 10, "сцена": 2}))
	got := sc.GetTopSuggestions("смина", 5)
	if len(got) != 2 || got[0] != "смена" || got[1] != "сцена" {
		t.Errorf("GetTopSuggestions = %v, want [смена сцена]", got)
	}
	if got := sc.GetTopSuggestions("смина", 1); len(got) != 1 {
		t.Errorf("limit 1 returned %v", got)
	}
	if got := sc.GetTopSuggestions("смина", 0); got != nil {
		t.Errorf("limit 0 returned %v", got)
	}
	if got := sc.GetTopSuggestions("смена", 5); len(got) != 0 {
		t.Errorf("correct query returned %v", got)
	}
}

func TestSpellChecker_DictionaryErrors(t *testing.T) {
	broken := &mockTermDictionary{terms: map[string]int{"касса": 1}, getAllError: errMock}
	sc := NewSpellChecker(broken)
	if err := sc.RefreshCache(); err == nil {
		t.Error("RefreshCache should fail when GetAllTerms fails")
	}
	if _, err := sc.Check("каса"); err == nil {
		t.Error("Check should fail when the cache cannot be loaded")
	}
	if sc.IsMisspelled("каса") {
		t.Error("IsMisspelled should be false when the cache cannot be loaded")
	}
	if got := sc.Suggest("каса"); len(got) != 0 {
		t.Errorf("Suggest should be empty, got %v", got)
	}

	freqErr := &mockTermDictionary{terms: map[string]int{"касса": 1}, getFreqError: errMock}
	sc = NewSpellChecker(freqErr)
	if got := sc.Suggest("каса"); len(got) != 0 {
		t.Errorf("frequency errors should skip terms, got %v", got)
	}
}
