package enrichment

// capitalByISO2 столицы стран для fallback-стратегии и пустого города
var capitalByISO2 = map[string]string{
	"EG": "CAIRO",
	"AE": "ABU DHABI",
	"SA": "RIYADH",
	"GB": "LONDON",
	"US": "WASHINGTON",
}

// citySynonyms локальные исправления имен городов по странам.
// Ключи и значения в верхнем регистре без диакритики.
var citySynonyms = map[string]map[string]string{
	"EG": {
		"EL MAADI":   "MAADI",
		"AL MAADI":   "MAADI",
		"AL QAHIRA":  "CAIRO",
		"EL QAHERA":  "CAIRO",
		"6 OCTOBER":  "6TH OF OCTOBER",
		"6TH OCTOBER": "6TH OF OCTOBER",
	},
}

// CapitalFor возвращает столицу страны, если она известна
func CapitalFor(iso2 string) (string, bool) {
	c, ok := capitalByISO2[iso2]
	return c, ok
}

// ApplyCitySynonyms применяет таблицу синонимов города для страны.
// Вход ожидается в верхнем регистре без диакритики.
func ApplyCitySynonyms(iso2, city string) string {
	if table, ok := citySynonyms[iso2]; ok {
		if fixed, ok := table[city]; ok {
			return fixed
		}
	}
	return city
}
