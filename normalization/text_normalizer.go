package normalization

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultTruncateLimit максимальная длина поля назначения (ограничение шаблона DHL)
const DefaultTruncateLimit = 45

// TextNormalizer нормализует свободный текст для вывода и для ключей сравнения
type TextNormalizer struct {
	accentFolder transform.Transformer
}

// NewTextNormalizer создает новый нормализатор текста
func NewTextNormalizer() *TextNormalizer {
	return &TextNormalizer{
		accentFolder: transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
	}
}

// Normalize выполняет базовую нормализацию строки:
// заменяет неразрывные пробелы, схлопывает последовательности пробелов, обрезает края.
// Идемпотентна: Normalize(Normalize(x)) == Normalize(x). Никогда не возвращает ошибку.
func (tn *TextNormalizer) Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.ReplaceAll(raw, " ", " ")
	return strings.Join(strings.Fields(s), " ")
}

// ComparisonKey строит ключ для поиска/сравнения (не для отображения):
// нормализация, удаление диакритики, верхний регистр,
// каждая последовательность не-алфанумерик заменяется одним пробелом.
func (tn *TextNormalizer) ComparisonKey(raw string) string {
	s := tn.StripAccents(tn.Normalize(raw))
	s = strings.ToUpper(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		alnum := (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if alnum {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		} else {
			pendingSpace = true
		}
	}
	return b.String()
}

// StripAccents удаляет диакритические знаки (NFD + удаление комбинируемых меток)
func (tn *TextNormalizer) StripAccents(s string) string {
	out, _, err := transform.String(tn.accentFolder, s)
	if err != nil {
		return s
	}
	return out
}

// UpperASCII приводит строку к верхнему регистру без диакритики
// (формат городов/стран в выходной книге)
func (tn *TextNormalizer) UpperASCII(s string) string {
	return tn.StripAccents(strings.ToUpper(tn.Normalize(s)))
}

// Truncate нормализует строку и жестко усекает до maxLen символов.
// При maxLen <= 0 используется DefaultTruncateLimit.
func (tn *TextNormalizer) Truncate(raw string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultTruncateLimit
	}
	s := tn.Normalize(raw)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}

// OnlyDigits оставляет в строке только десятичные цифры
func (tn *TextNormalizer) OnlyDigits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
