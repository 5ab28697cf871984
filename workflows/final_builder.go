package workflows

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"dhlprep/normalization"
)

// QCSheetName имя листа контроля качества в итоговой книге
const QCSheetName = "_QC"

// highlightColor заливка проблемных строк
const highlightColor = "FFFF00"

// computedColumns колонки, которые заполняет сборщик; значения второй строки
// шаблона в этих колонках не считаются константами
var computedColumns = map[string]struct{}{
	"Order Number": {}, "Date": {}, "To Name": {},
	"Destination Building": {}, "Destination Street": {}, "Destination Suburb": {},
	"Destination City": {}, "Destination Postcode": {}, "Destination State": {},
	"Destination Country": {}, "Destination Email": {}, "Destination Phone": {},
	"Company": {}, "Country Code": {}, "DDP": {},
}

// honorifics титулы, добавляемые к имени получателя
var honorifics = map[string]struct{}{
	"MR": {}, "MRS": {}, "MS": {}, "DR": {},
}

// postcodeRe извлечение почтового индекса из адресной строки:
// US ZIP, UK postcode или 4-6 цифр
var postcodeRe = regexp.MustCompile(`(?i)\b\d{5}(-\d{4})?\b|\b[A-Z]{1,2}\d[A-Z\d]? ?\d[A-Z]{2}\b|\b\d{4,6}\b`)

// Template итоговый шаблон: заголовки первой строки и константы второй
type Template struct {
	Headers   []string
	Constants map[string]string
}

// LoadTemplate читает шаблон итоговой книги.
// Строка 1 — заголовки (порядок колонок зафиксирован), строка 2 — константы
// для всех невычисляемых колонок.
func LoadTemplate(tn *normalization.TextNormalizer, filePath string) (*Template, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть шаблон %s: %w", filePath, err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("шаблон %s: чтение листа %s: %w", filePath, sheetName, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("шаблон %s: пустой лист %s", filePath, sheetName)
	}

	headers := make([]string, 0, len(rows[0]))
	for _, h := range rows[0] {
		headers = append(headers, tn.Normalize(h))
	}

	constants := make(map[string]string)
	if len(rows) > 1 {
		for i, h := range headers {
			v := strings.TrimSpace(cellValue(rows[1], i))
			if v == "" {
				continue
			}
			if _, computed := computedColumns[h]; computed {
				continue
			}
			constants[h] = v
		}
	}

	return &Template{Headers: headers, Constants: constants}, nil
}

// QCRow строка листа контроля качества
type QCRow struct {
	OrderNumber int
	SourceSheet string
	Name        string
	Email       string
	PhoneRaw    string
	PhoneE164   string
	CountryRaw  string
	DHLCountry  string
	DHLCode     string
	DDP         string
	Issues      []string
}

// qcHeaders заголовки листа _QC
var qcHeaders = []string{
	"Order Number", "Source Sheet", "Name", "Email", "Phone Raw", "Phone E164",
	"Country (raw)", "DHL Country", "DHL Code", "DDP", "Issues",
}

// BuildSummary итог сборки
type BuildSummary struct {
	Rows        int
	Highlighted int
	QCRows      int
}

// FinalBuilder собирает итоговую книгу по шаблону: по листу на исходную
// вкладку, проблемные строки подсвечены, плюс лист _QC
type FinalBuilder struct {
	tn       *normalization.TextNormalizer
	resolver *normalization.CountryResolver
	phones   *normalization.PhoneNormalizer
	ddp      normalization.DDPSet
}

// NewFinalBuilder создает новый сборщик
func NewFinalBuilder(tn *normalization.TextNormalizer, resolver *normalization.CountryResolver, phones *normalization.PhoneNormalizer, ddp normalization.DDPSet) *FinalBuilder {
	return &FinalBuilder{tn: tn, resolver: resolver, phones: phones, ddp: ddp}
}

// builtRecord собранная выходная строка
type builtRecord struct {
	values map[string]string
	issues []string
	qc     QCRow
}

// Run собирает итоговую книгу из контактов и сохраняет ее в outPath.
// Порядок строк внутри листа совпадает с порядком контактов.
func (fb *FinalBuilder) Run(contacts []Contact, template *Template, outPath string) (*BuildSummary, error) {
	out := excelize.NewFile()
	defer out.Close()

	highlightStyle, err := out.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{highlightColor}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("не удалось создать стиль подсветки: %w", err)
	}

	dateStr := TodayString()
	summary := &BuildSummary{}
	var qcRows []QCRow

	for _, sheetName := range fb.sheetOrder(contacts) {
		safeName := SafeSheetName(fb.tn, sheetName)
		if _, err := out.NewSheet(safeName); err != nil {
			return nil, fmt.Errorf("не удалось создать лист %s: %w", safeName, err)
		}

		// заголовки и строка констант
		for j, h := range template.Headers {
			cell, _ := excelize.CoordinatesToCellName(j+1, 1)
			if err := out.SetCellValue(safeName, cell, h); err != nil {
				return nil, err
			}
			if v, ok := template.Constants[h]; ok {
				cell2, _ := excelize.CoordinatesToCellName(j+1, 2)
				if err := out.SetCellValue(safeName, cell2, v); err != nil {
					return nil, err
				}
			}
		}

		orderNo := 1
		for _, c := range contacts {
			if c.SourceSheet != sheetName {
				continue
			}

			rec := fb.buildRecord(c, template, orderNo, dateStr)
			rowIdx := 2 + orderNo

			for j, h := range template.Headers {
				cell, _ := excelize.CoordinatesToCellName(j+1, rowIdx)
				if err := out.SetCellValue(safeName, cell, rec.values[h]); err != nil {
					return nil, err
				}
			}

			if len(rec.issues) > 0 {
				summary.Highlighted++
				first, _ := excelize.CoordinatesToCellName(1, rowIdx)
				last, _ := excelize.CoordinatesToCellName(len(template.Headers), rowIdx)
				if err := out.SetCellStyle(safeName, first, last, highlightStyle); err != nil {
					return nil, err
				}
			}

			qcRows = append(qcRows, rec.qc)
			summary.Rows++
			orderNo++
		}
	}

	if err := fb.writeQCSheet(out, qcRows); err != nil {
		return nil, err
	}
	summary.QCRows = len(qcRows)

	// excelize создает книги с листом по умолчанию
	out.DeleteSheet("Sheet1")

	if err := out.SaveAs(outPath); err != nil {
		return nil, fmt.Errorf("не удалось сохранить итоговую книгу %s: %w", outPath, err)
	}

	log.Printf("Итоговая книга собрана: %s (строк: %d, подсвечено: %d)", outPath, summary.Rows, summary.Highlighted)
	return summary, nil
}

// sheetOrder исходные вкладки в порядке первого появления
func (fb *FinalBuilder) sheetOrder(contacts []Contact) []string {
	var order []string
	seen := make(map[string]bool)
	for _, c := range contacts {
		if !seen[c.SourceSheet] {
			seen[c.SourceSheet] = true
			order = append(order, c.SourceSheet)
		}
	}
	return order
}

// buildRecord применяет правила нормализации к одному контакту.
// Отсутствие email намеренно не считается проблемой.
func (fb *FinalBuilder) buildRecord(c Contact, template *Template, orderNo int, dateStr string) builtRecord {
	var issues []string

	title := fb.tn.Normalize(c.Title)
	fullName := fb.tn.Normalize(c.FullName)
	titleKey := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(title, ".", "")))

	var toName string
	if _, ok := honorifics[titleKey]; ok && fullName != "" {
		toName = strings.TrimSpace(titleCaseWord(titleKey) + " " + fullName)
	} else if fullName != "" {
		toName = fullName
	} else {
		toName = fb.tn.Normalize(c.Company)
	}
	if toName == "" {
		issues = append(issues, "Missing name and company")
	}

	company := fb.tn.Normalize(c.Company)
	countryRaw := fb.tn.Normalize(c.Country)
	rec := fb.resolver.Resolve(countryRaw)
	if rec == nil {
		issues = append(issues, fmt.Sprintf("Unknown country: '%s'", countryRaw))
	}
	ddp := fb.resolver.DDPFlag(rec, fb.ddp)

	streetRaw := fb.tn.Normalize(c.Street)
	building, street := splitStreet(streetRaw)
	building = fb.tn.Truncate(building, 0)
	street = fb.tn.Truncate(street, 0)

	city := fb.tn.Normalize(c.City)
	postcode := fb.tn.Normalize(c.Postcode)
	if postcode == "" {
		if m := postcodeRe.FindString(streetRaw); m != "" {
			postcode = strings.TrimSpace(m)
		}
	}

	if streetRaw == "" {
		issues = append(issues, "Missing street")
	}
	if city == "" {
		issues = append(issues, "Missing city")
	}

	email := fb.tn.Normalize(c.Email)
	phoneRaw := fb.tn.Normalize(c.Phone)
	countryForPhone := countryRaw
	if rec != nil {
		countryForPhone = rec.Name
	}
	phoneE164 := fb.phones.NormalizeE164(phoneRaw, countryForPhone)
	if phoneE164 == "" {
		issues = append(issues, "Missing phone")
	}

	destCountry := countryRaw
	dhlName, dhlCode := "", ""
	if rec != nil {
		destCountry = rec.Name
		dhlName = rec.Name
		dhlCode = rec.Code
	}

	values := make(map[string]string, len(template.Headers))
	for _, h := range template.Headers {
		values[h] = template.Constants[h]
	}
	values["Order Number"] = fmt.Sprintf("%d", orderNo)
	values["Date"] = dateStr
	values["To Name"] = toName
	values["Destination Building"] = building
	values["Destination Street"] = street
	values["Destination Suburb"] = ""
	values["Destination City"] = strings.ToUpper(city)
	values["Destination Postcode"] = postcode
	values["Destination State"] = ""
	values["Destination Country"] = strings.ToUpper(destCountry)
	values["Destination Email"] = email
	values["Destination Phone"] = phoneE164
	values["Company"] = company
	values["Country Code"] = dhlCode
	values["DDP"] = ddp

	return builtRecord{
		values: values,
		issues: issues,
		qc: QCRow{
			OrderNumber: orderNo,
			SourceSheet: c.SourceSheet,
			Name:        toName,
			Email:       email,
			PhoneRaw:    phoneRaw,
			PhoneE164:   phoneE164,
			CountryRaw:  countryRaw,
			DHLCountry:  dhlName,
			DHLCode:     dhlCode,
			DDP:         ddp,
			Issues:      issues,
		},
	}
}

// splitStreet делит адрес по первой запятой на здание и улицу
func splitStreet(streetRaw string) (building, street string) {
	if streetRaw == "" {
		return "", ""
	}
	parts := strings.SplitN(streetRaw, ",", 2)
	building = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		street = strings.TrimSpace(parts[1])
	} else {
		street = streetRaw
	}
	return building, street
}

// writeQCSheet пишет лист _QC
func (fb *FinalBuilder) writeQCSheet(out *excelize.File, qcRows []QCRow) error {
	if _, err := out.NewSheet(QCSheetName); err != nil {
		return fmt.Errorf("не удалось создать лист %s: %w", QCSheetName, err)
	}

	for j, h := range qcHeaders {
		cell, _ := excelize.CoordinatesToCellName(j+1, 1)
		if err := out.SetCellValue(QCSheetName, cell, h); err != nil {
			return err
		}
	}

	for i, r := range qcRows {
		values := []interface{}{
			r.OrderNumber, r.SourceSheet, r.Name, r.Email, r.PhoneRaw, r.PhoneE164,
			r.CountryRaw, r.DHLCountry, r.DHLCode, r.DDP, strings.Join(r.Issues, "; "),
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := out.SetCellValue(QCSheetName, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}
