package workflows

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"dhlprep/normalization"
)

// Часовой пояс и формат даты выходных книг
const (
	DateTZ  = "Africa/Cairo"
	DateFmt = "02-01-2006"
)

const (
	maxSheetNameLen = 31
	maxFileNameLen  = 80
)

var (
	badSheetChars = regexp.MustCompile(`[:\\/?*\[\]]`)
	badFileChars  = regexp.MustCompile(`[^A-Za-z0-9\-_]+`)
	tokenSplit    = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// TodayString текущая дата в зоне Africa/Cairo в формате DD-MM-YYYY
func TodayString() string {
	loc, err := time.LoadLocation(DateTZ)
	if err != nil {
		return time.Now().Format(DateFmt)
	}
	return time.Now().In(loc).Format(DateFmt)
}

// SafeSheetName имя листа без запрещенных символов, не длиннее 31 символа
func SafeSheetName(tn *normalization.TextNormalizer, name string) string {
	s := tn.Normalize(name)
	s = badSheetChars.ReplaceAllString(s, " ")
	s = tn.Normalize(s)
	if s == "" {
		s = "DATA"
	}
	r := []rune(s)
	if len(r) > maxSheetNameLen {
		r = r[:maxSheetNameLen]
	}
	return string(r)
}

// SafeFileName имя файла из безопасных символов, не длиннее 80 символов
func SafeFileName(tn *normalization.TextNormalizer, name string) string {
	s := tn.Normalize(name)
	s = badFileChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "TAB"
	}
	r := []rune(s)
	if len(r) > maxFileNameLen {
		r = r[:maxFileNameLen]
	}
	return string(r)
}

// SheetCode короткий код вкладки для номеров заказов; used отслеживает
// повторные коды и добавляет числовой суффикс
func SheetCode(tn *normalization.TextNormalizer, name string, used map[string]int) string {
	toks := tokenSplit.Split(tn.Normalize(name), -1)
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t)
	}
	code := strings.ToUpper(b.String())
	if code == "" {
		code = "SHEET"
	}
	r := []rune(code)
	if len(r) > 6 {
		r = r[:6]
	}
	code = string(r)

	n := used[code]
	used[code] = n + 1
	if n > 0 {
		return fmt.Sprintf("%s%d", code, n+1)
	}
	return code
}

// titleCaseWord первая буква заглавная, остальные строчные (для титулов)
func titleCaseWord(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// cellValue значение ячейки строки листа по индексу колонки
func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
