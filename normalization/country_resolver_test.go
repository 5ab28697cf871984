package normalization

import "testing"

// testCountryTable усеченный справочник в формате таблицы DHL
func testCountryTable() []CountryRecord {
	return []CountryRecord{
		{Name: "Egypt", Code: "EG"},
		{Name: "Cote D Ivoire", Code: "CI"},
		{Name: "United Arab Emirates", Code: "AE"},
		{Name: "United Kingdom", Code: "GB"},
		{Name: "United States Of America", Code: "US"},
		{Name: "Saudi Arabia", Code: "SA"},
		{Name: "Congo", Code: "CG"},
		{Name: "Congo The Democratic Republic Of", Code: "CD"},
		{Name: "South Africa", Code: "ZA"},
		{Name: "Reunion Island Of", Code: "RE"},
	}
}

func newTestResolver() *CountryResolver {
	return NewCountryResolver(NewTextNormalizer(), testCountryTable())
}

func TestCountryResolver_Resolve(t *testing.T) {
	cr := newTestResolver()

	tests := []struct {
		name     string
		in       string
		wantCode string
	}{
		{name: "exact", in: "Egypt", wantCode: "EG"},
		{name: "case insensitive", in: "EGYPT", wantCode: "EG"},
		{name: "accented", in: "Côte d'Ivoire", wantCode: "CI"},
		{name: "alias ivory coast", in: "Ivory Coast", wantCode: "CI"},
		{name: "alias UAE", in: "UAE", wantCode: "AE"},
		{name: "alias UK", in: "UK", wantCode: "GB"},
		{name: "alias USA", in: "USA", wantCode: "US"},
		{name: "alias reunion", in: "Reunion", wantCode: "RE"},
		{name: "substring input in candidate", in: "United Arab", wantCode: "AE"},
		{name: "substring candidate in input", in: "Arab Republic of Egypt", wantCode: "EG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := cr.Resolve(tt.in)
			if rec == nil {
				t.Fatalf("Resolve(%q) = nil, ожидали %s", tt.in, tt.wantCode)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("Resolve(%q).Code = %s, want %s", tt.in, rec.Code, tt.wantCode)
			}
		})
	}
}

func TestCountryResolver_ResolveUnknown(t *testing.T) {
	cr := newTestResolver()

	for _, in := range []string{"", "   ", "Atlantis", "Zzz"} {
		if rec := cr.Resolve(in); rec != nil {
			t.Errorf("Resolve(%q) = %v, ожидали nil", in, rec)
		}
	}
}

func TestCountryResolver_AliasEqualsCanonical(t *testing.T) {
	cr := newTestResolver()

	// алиас и каноническое имя должны давать одну и ту же запись
	pairs := [][2]string{
		{"UAE", "United Arab Emirates"},
		{"Ivory Coast", "Cote d'Ivoire"},
		{"USA", "United States of America"},
	}
	for _, p := range pairs {
		a, b := cr.Resolve(p[0]), cr.Resolve(p[1])
		if a == nil || b == nil || a != b {
			t.Errorf("Resolve(%q) и Resolve(%q) должны совпадать: %v vs %v", p[0], p[1], a, b)
		}
	}
}

func TestCountryResolver_ResolveCode(t *testing.T) {
	cr := newTestResolver()

	if rec := cr.ResolveCode("eg"); rec == nil || rec.Name != "Egypt" {
		t.Errorf("ResolveCode(eg) = %v, ожидали Egypt", rec)
	}
	if rec := cr.ResolveCode("XX"); rec != nil {
		t.Errorf("ResolveCode(XX) = %v, ожидали nil", rec)
	}
}

func TestCountryResolver_DialCodeFilled(t *testing.T) {
	cr := newTestResolver()

	rec := cr.Resolve("Egypt")
	if rec == nil || rec.DialCode != "20" {
		t.Errorf("телефонный код Египта должен быть 20, получили %+v", rec)
	}
	rec = cr.Resolve("Saudi Arabia")
	if rec == nil || rec.DialCode != "966" {
		t.Errorf("телефонный код Саудовской Аравии должен быть 966, получили %+v", rec)
	}
}

func TestCountryResolver_BuildDDPSetAndFlag(t *testing.T) {
	cr := newTestResolver()

	set := cr.BuildDDPSet([]string{
		"DDP",       // служебная метка
		"N",         // служебная метка
		"Content",   // служебная метка
		"OB",        // служебная метка
		"x",         // короче 2 символов
		"123",       // нет букв
		"Ivory Coast",
		"Egypt",
		"",
	})

	if len(set) != 2 {
		t.Fatalf("ожидали 2 элемента в DDP-множестве, получили %d: %v", len(set), set)
	}
	if !set.Contains("COTE D IVOIRE") {
		t.Error("алиас Ivory Coast должен попадать в множество как COTE D IVOIRE")
	}
	if !set.Contains("EGYPT") {
		t.Error("EGYPT должен быть в множестве")
	}

	if got := cr.DDPFlag(cr.Resolve("Egypt"), set); got != "N" {
		t.Errorf("DDPFlag(Egypt) = %q, want N", got)
	}
	if got := cr.DDPFlag(cr.Resolve("United Kingdom"), set); got != "Y" {
		t.Errorf("DDPFlag(United Kingdom) = %q, want Y", got)
	}
	if got := cr.DDPFlag(nil, set); got != "" {
		t.Errorf("DDPFlag(nil) = %q, want пустую строку", got)
	}
}
