package workflows

import (
	"fmt"
	"log"
	"strings"

	"github.com/xuri/excelize/v2"

	"dhlprep/normalization"
)

// Contact фиксированная внутренняя схема контакта.
// Разнородные наборы колонок входных листов сводятся к ней один раз
// при чтении; лишние колонки входа отбрасываются.
type Contact struct {
	Department  string
	Title       string
	Gender      string
	FullName    string
	Position    string
	Company     string
	City        string
	Country     string
	Language    string
	Street      string
	Phone       string
	Postcode    string
	Email       string
	SourceSheet string
}

// contactHeaderAliases алиасы заголовков входной книги -> поле схемы.
// Сопоставление по вхождению ключа в ключ сравнения заголовка;
// порядок важен: более специфичные алиасы раньше.
var contactHeaderAliases = []struct {
	mark  string
	field string
}{
	{"DEPARTMENT", "Department"},
	{"TITLE", "Title"},
	{"GENDER", "Gender"},
	{"FULL NAME", "FullName"},
	{"POSITION", "Position"},
	{"COMPANY", "Company"},
	{"CITY", "City"},
	{"COUNTRY", "Country"},
	{"LANGUAGE", "Language"},
	{"STREET ADDRESS2", "Street"},
	{"ADDRESS", "Street"},
	{"STREET", "Street"},
	{"TELEPHONE MOBILE3", "Phone"},
	{"TELEPHONE", "Phone"},
	{"MOBILE", "Phone"},
	{"POSTAL CODE", "Postcode"},
	{"ZIP", "Postcode"},
	{"EMAIL", "Email"},
}

// contactSkipSheets служебные листы входной книги, не содержащие контактов
var contactSkipSheets = []string{"ALL DEPARTMENTS", "LANGUAGE"}

// ContactReader читает контакты из входной книги
type ContactReader struct {
	tn *normalization.TextNormalizer
}

// NewContactReader создает новый читатель контактов
func NewContactReader(tn *normalization.TextNormalizer) *ContactReader {
	return &ContactReader{tn: tn}
}

// ReadWorkbook собирает контакты со всех листов входной книги.
// Строки без страны или одновременно без имени и компании отбрасываются.
func (r *ContactReader) ReadWorkbook(filePath string) ([]Contact, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть входную книгу %s: %w", filePath, err)
	}
	defer f.Close()

	var contacts []Contact
	for _, sheet := range f.GetSheetList() {
		if r.shouldSkipSheet(sheet) {
			continue
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			log.Printf("Лист %s пропущен: %v", sheet, err)
			continue
		}
		if len(rows) < 2 {
			continue
		}

		fieldByCol := r.mapHeaders(rows[0])
		for _, row := range rows[1:] {
			c := r.buildContact(fieldByCol, row, sheet)
			if c.Country == "" {
				continue
			}
			if c.FullName == "" && c.Company == "" {
				continue
			}
			contacts = append(contacts, c)
		}
	}

	log.Printf("Контактов собрано из %s: %d", filePath, len(contacts))
	return contacts, nil
}

// shouldSkipSheet служебный ли лист
func (r *ContactReader) shouldSkipSheet(sheet string) bool {
	key := r.tn.ComparisonKey(sheet)
	for _, skip := range contactSkipSheets {
		if key == r.tn.ComparisonKey(skip) {
			return true
		}
	}
	return false
}

// mapHeaders сопоставляет колонки листа полям схемы.
// Первая колонка, подошедшая под алиас поля, выигрывает.
func (r *ContactReader) mapHeaders(headers []string) map[int]string {
	fieldByCol := make(map[int]string)
	usedFields := make(map[string]bool)

	for i, h := range headers {
		key := r.tn.ComparisonKey(h)
		if key == "" {
			continue
		}
		for _, alias := range contactHeaderAliases {
			if strings.Contains(key, alias.mark) {
				if !usedFields[alias.field] {
					fieldByCol[i] = alias.field
					usedFields[alias.field] = true
				}
				break
			}
		}
	}
	return fieldByCol
}

// buildContact заполняет схему из строки листа
func (r *ContactReader) buildContact(fieldByCol map[int]string, row []string, sheet string) Contact {
	c := Contact{SourceSheet: sheet}
	for col, field := range fieldByCol {
		v := cellValue(row, col)
		switch field {
		case "Department":
			c.Department = v
		case "Title":
			c.Title = v
		case "Gender":
			c.Gender = v
		case "FullName":
			c.FullName = r.tn.Normalize(v)
		case "Position":
			c.Position = v
		case "Company":
			c.Company = r.tn.Normalize(v)
		case "City":
			c.City = v
		case "Country":
			c.Country = r.tn.Normalize(v)
		case "Language":
			c.Language = v
		case "Street":
			c.Street = v
		case "Phone":
			c.Phone = v
		case "Postcode":
			c.Postcode = v
		case "Email":
			c.Email = r.tn.Normalize(v)
		}
	}
	return c
}
