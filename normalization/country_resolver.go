package normalization

import (
	"strings"
	"unicode"
)

// CountryRecord строка справочника стран DHL
type CountryRecord struct {
	Name     string // каноническое имя (DHL Country Name)
	Code     string // ISO2 (DHL Country Code)
	DialCode string // телефонный код страны, если известен
}

// DDPSet множество ключей стран, для которых DDP не применяется (флаг "N")
type DDPSet map[string]struct{}

// Contains проверяет принадлежность ключа множеству
func (s DDPSet) Contains(key string) bool {
	_, ok := s[key]
	return ok
}

// countryAliases ручная таблица алиасов: частые варианты написания -> каноническое имя.
// Ключи и значения в форме ключа сравнения (ComparisonKey).
var countryAliases = map[string]string{
	"IVORY COAST":                    "COTE D IVOIRE",
	"COTE D IVOIRE":                  "COTE D IVOIRE",
	"REPUBLIC OF CONGO":              "CONGO",
	"DEMOCRATIC REPUBLIC OF CONGO":   "CONGO THE DEMOCRATIC REPUBLIC OF",
	"DR CONGO":                       "CONGO THE DEMOCRATIC REPUBLIC OF",
	"RUSSIA":                         "RUSSIAN FEDERATION THE",
	"SOUTH KOREA":                    "KOREA REPUBLIC OF SOUTH K",
	"NORTH KOREA":                    "KOREA THE D P R OF NORTH K",
	"ESWATINI":                       "SWAZILAND",
	"REPUBLIC OF SOUTH AFRICA":       "SOUTH AFRICA",
	"UAE":                            "UNITED ARAB EMIRATES",
	"UK":                             "UNITED KINGDOM",
	"USA":                            "UNITED STATES OF AMERICA",
	"REUNION":                        "REUNION ISLAND OF",
	"SAO TOME AND PRINICIPE":         "SAO TOME AND PRINCIPE",
}

// CountryResolver сопоставляет произвольное написание страны записи справочника
type CountryResolver struct {
	tn      *TextNormalizer
	records []*CountryRecord
	byKey   map[string]*CountryRecord
	byCode  map[string]*CountryRecord
}

// NewCountryResolver создает резолвер над загруженным справочником.
// Порядок записей сохраняется: подстрочный fallback возвращает первое совпадение
// в порядке таблицы. Телефонные коды подставляются из встроенной таблицы.
func NewCountryResolver(tn *TextNormalizer, records []CountryRecord) *CountryResolver {
	cr := &CountryResolver{
		tn:     tn,
		byKey:  make(map[string]*CountryRecord, len(records)),
		byCode: make(map[string]*CountryRecord, len(records)),
	}
	for i := range records {
		rec := records[i]
		if rec.DialCode == "" {
			rec.DialCode = dialCodes[tn.ComparisonKey(rec.Name)]
		}
		r := &rec
		cr.records = append(cr.records, r)
		key := tn.ComparisonKey(rec.Name)
		if _, exists := cr.byKey[key]; !exists {
			cr.byKey[key] = r
		}
		code := tn.ComparisonKey(rec.Code)
		if _, exists := cr.byCode[code]; !exists {
			cr.byCode[code] = r
		}
	}
	return cr
}

// AliasKey применяет таблицу алиасов к ключу сравнения имени страны
func (cr *CountryResolver) AliasKey(key string) string {
	if alias, ok := countryAliases[key]; ok {
		return alias
	}
	return key
}

// Resolve находит запись справочника по произвольному написанию страны.
// Порядок: ключ сравнения -> алиас -> точное совпадение -> подстрочное
// совпадение в обе стороны по порядку таблицы. nil, если ничего не найдено.
func (cr *CountryResolver) Resolve(raw string) *CountryRecord {
	key := cr.tn.ComparisonKey(raw)
	if key == "" {
		return nil
	}
	key = cr.AliasKey(key)

	if rec, ok := cr.byKey[key]; ok {
		return rec
	}

	return cr.resolveBySubstring(key)
}

// resolveBySubstring расширенный эвристический поиск: ключ кандидата содержит
// входной ключ или наоборот. Намеренно без порога дистанции — доступность
// важнее точности; ложные совпадения коротких имен возможны.
func (cr *CountryResolver) resolveBySubstring(key string) *CountryRecord {
	for _, rec := range cr.records {
		candKey := cr.tn.ComparisonKey(rec.Name)
		if containsEither(candKey, key) {
			return rec
		}
	}
	return nil
}

// ResolveCode находит запись по коду ISO2
func (cr *CountryResolver) ResolveCode(iso2 string) *CountryRecord {
	rec, ok := cr.byCode[cr.tn.ComparisonKey(iso2)]
	if !ok {
		return nil
	}
	return rec
}

// DDPFlag возвращает флаг DDP для страны: "N" когда каноническое имя входит
// в DDP-множество, "Y" иначе, пустая строка для неразрешенной страны.
func (cr *CountryResolver) DDPFlag(rec *CountryRecord, ddp DDPSet) string {
	if rec == nil {
		return ""
	}
	if ddp.Contains(cr.tn.ComparisonKey(rec.Name)) {
		return "N"
	}
	return "Y"
}

// BuildDDPSet строит DDP-множество из сырых значений листа DDP.
// Значения фильтруются (минимум 2 символа, есть буква, не служебные метки),
// к каждому применяется таблица алиасов.
func (cr *CountryResolver) BuildDDPSet(values []string) DDPSet {
	serviceMarks := map[string]struct{}{
		"DDP": {}, "N": {}, "CONTENT": {}, "OB": {},
	}

	set := make(DDPSet)
	for _, v := range values {
		vv := cr.tn.Normalize(v)
		if len(vv) < 2 || !hasLetter(vv) {
			continue
		}
		if _, skip := serviceMarks[cr.tn.ComparisonKey(vv)]; skip {
			continue
		}
		set[cr.AliasKey(cr.tn.ComparisonKey(vv))] = struct{}{}
	}
	return set
}

func containsEither(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
