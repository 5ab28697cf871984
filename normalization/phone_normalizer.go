package normalization

import (
	"regexp"
	"strings"
)

// PhoneConfidence класс результата нормализации телефона
type PhoneConfidence string

const (
	PhoneE164FromPlus PhoneConfidence = "E164_FROM_PLUS" // восстановлен из ведущего '+'
	PhoneE164From00   PhoneConfidence = "E164_FROM_00"   // восстановлен из префикса 00
	PhoneRawKept      PhoneConfidence = "RAW_KEPT"       // оставлен как есть
	PhoneNoPhone      PhoneConfidence = "NO_PHONE"       // телефона нет
)

// PhoneResult результат щадящей нормализации: номер и класс уверенности
type PhoneResult struct {
	Phone      string
	Confidence PhoneConfidence
}

// dialCodes телефонные коды по ключу сравнения канонического имени страны.
// Практическое подмножество; для прочих стран работает fallback "+<цифры>".
var dialCodes = map[string]string{
	"EGYPT":                    "20",
	"UNITED ARAB EMIRATES":     "971",
	"UNITED KINGDOM":           "44",
	"UNITED STATES OF AMERICA": "1",
	"SAUDI ARABIA":             "966",
	"QATAR":                    "974",
	"OMAN":                     "968",
	"KUWAIT":                   "965",
	"BAHRAIN":                  "973",
	"JORDAN":                   "962",
	"MOROCCO":                  "212",
	"TUNISIA":                  "216",
	"ALGERIA":                  "213",
	"NIGERIA":                  "234",
	"KENYA":                    "254",
	"SOUTH AFRICA":             "27",
	"FRANCE":                   "33",
	"GERMANY":                  "49",
	"SPAIN":                    "34",
	"ITALY":                    "39",
	"TURKEY":                   "90",
	"INDIA":                    "91",
	"PAKISTAN":                 "92",
	"SINGAPORE":                "65",
	"JAPAN":                    "81",
	"CHINA PEOPLES REPUBLIC":   "86",
}

// plusPhoneRe литеральный '+' и минимум 7 цифр с допустимыми разделителями
var plusPhoneRe = regexp.MustCompile(`\+\s*([0-9][0-9\s\-\(\)]{6,})`)

// PhoneNormalizer приводит телефоны к виду E.164 (best effort, не валидатор)
type PhoneNormalizer struct {
	tn *TextNormalizer
}

// NewPhoneNormalizer создает новый нормализатор телефонов
func NewPhoneNormalizer(tn *TextNormalizer) *PhoneNormalizer {
	return &PhoneNormalizer{tn: tn}
}

// DialCodeFor возвращает телефонный код по имени страны (с учетом алиасов)
func (pn *PhoneNormalizer) DialCodeFor(countryName string) string {
	key := pn.tn.ComparisonKey(countryName)
	if alias, ok := countryAliases[key]; ok {
		key = alias
	}
	return dialCodes[key]
}

// NormalizeE164 нормализует телефон в формат E.164 с учетом страны.
// Каскад правил, выигрывает первое совпавшее:
//  1. '+' и >=7 цифр -> '+' плюс только цифры
//  2. цифры начинаются с 00 -> '+' плюс остаток
//  3. >=10 цифр без ведущего нуля -> считается международным, '+' плюс цифры
//  4. известен код страны -> убрать ведущие нули, '+<код><номер>'
//  5. иначе '+' плюс цифры
//
// Пустой вход дает пустую строку. Правдоподобность номера не проверяется.
func (pn *PhoneNormalizer) NormalizeE164(rawPhone, countryName string) string {
	pr := pn.tn.Normalize(rawPhone)
	if pr == "" {
		return ""
	}

	if m := plusPhoneRe.FindStringSubmatch(pr); m != nil {
		return "+" + pn.tn.OnlyDigits(m[1])
	}

	digits := pn.tn.OnlyDigits(pr)
	if digits == "" {
		return ""
	}

	if strings.HasPrefix(digits, "00") {
		return "+" + digits[2:]
	}

	cc := pn.DialCodeFor(countryName)

	// уже содержит код страны
	if len(digits) >= 10 && !strings.HasPrefix(digits, "0") {
		if cc != "" && strings.HasPrefix(digits, cc) {
			return "+" + digits
		}
		// эвристика: считаем номер уже международным
		if len(digits) <= 15 {
			return "+" + digits
		}
	}

	if cc != "" {
		national := strings.TrimLeft(digits, "0")
		return "+" + cc + national
	}

	return "+" + digits
}

// NormalizeKeepIfCannot щадящая нормализация: приводит к E.164 только
// однозначные случаи ('+', префикс 00), иначе возвращает исходную строку.
func (pn *PhoneNormalizer) NormalizeKeepIfCannot(raw string) PhoneResult {
	raw0 := pn.tn.Normalize(raw)
	if raw0 == "" {
		return PhoneResult{Phone: "", Confidence: PhoneNoPhone}
	}

	if m := plusPhoneRe.FindStringSubmatch(raw0); m != nil {
		d := pn.tn.OnlyDigits(m[1])
		if len(d) >= 8 && len(d) <= 15 {
			return PhoneResult{Phone: "+" + d, Confidence: PhoneE164FromPlus}
		}
	}

	d := pn.tn.OnlyDigits(raw0)
	if strings.HasPrefix(d, "00") {
		d2 := d[2:]
		if len(d2) >= 8 && len(d2) <= 15 {
			return PhoneResult{Phone: "+" + d2, Confidence: PhoneE164From00}
		}
	}

	return PhoneResult{Phone: raw0, Confidence: PhoneRawKept}
}

// PhoneLikeScore оценивает, насколько значение похоже на телефон:
// 0 при менее чем 7 цифрах, иначе число цифр с бонусами за '+' и префикс 00
func (pn *PhoneNormalizer) PhoneLikeScore(s string) int {
	if s == "" {
		return 0
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 {
		return 0
	}
	score := digits
	if strings.Contains(s, "+") {
		score += 50
	}
	if strings.HasPrefix(strings.TrimSpace(s), "00") {
		score += 30
	}
	return score
}

// phoneColumnMarks ключевые слова колонок с телефонами
var phoneColumnMarks = []string{"PHONE", "TEL", "TELEPHONE", "MOBILE", "CELL"}

// ExtractPhoneFromRow выбирает наиболее телефоноподобное значение строки.
// Сначала просматриваются колонки с телефонными именами, затем все остальные.
func (pn *PhoneNormalizer) ExtractPhoneFromRow(row map[string]string) string {
	var candidates []string
	for col, val := range row {
		nk := pn.tn.ComparisonKey(col)
		for _, mark := range phoneColumnMarks {
			if strings.Contains(nk, mark) {
				v := pn.tn.Normalize(val)
				if pn.PhoneLikeScore(v) > 0 {
					candidates = append(candidates, v)
				}
				break
			}
		}
	}
	if len(candidates) == 0 {
		for _, val := range row {
			v := pn.tn.Normalize(val)
			if pn.PhoneLikeScore(v) > 0 {
				candidates = append(candidates, v)
			}
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	best := candidates[0]
	bestScore := pn.PhoneLikeScore(best)
	for _, c := range candidates[1:] {
		if s := pn.PhoneLikeScore(c); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}
