package workflows

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"dhlprep/normalization"
)

// TemplatePhoneColumn колонка телефона в шаблоне DHL
const TemplatePhoneColumn = "Destination Phone"

// itemColumns колонки позиций, добавляемые к каждой строке
var itemColumns = []string{"Item Name", "Item Price", "Qty", "Pc Weight"}

// perTabSkipSheets листы, исключаемые из разбиения
var perTabSkipSheets = []string{"ALL DEPARTMENTS", "LANGUAGE", "ITEMS"}

// blankOnContinuation колонки, гасимые на строках-продолжениях позиции
var blankOnContinuation = []string{
	"Date", "To Name", "Company", "Country Code", "DDP",
	"Destination Building", "Destination Street", "Destination Suburb", "Destination City",
	"Destination State", "Destination Postcode", "Destination Country", "Destination Email",
}

// pcWeightAliases варианты заголовка веса позиции
var pcWeightAliases = []string{
	"PC WEIGHT", "PCS WEIGHT", "PIECE WEIGHT", "ITEM WEIGHT",
	"WEIGHT", "WEIGHT KG", "WEIGHT (KG)", "PC WEIGHT (KG)",
}

// Item позиция отправления из Items.xlsx
type Item struct {
	Name     string
	Value    float64
	PcWeight float64
}

// PerTabOptions опции разбиения по вкладкам
type PerTabOptions struct {
	// телефон остается на всех строках позиций (иначе гасится на продолжениях)
	BlankPhoneOnItemLines bool
	OutDirName            string
}

// PerTabResult пути артефактов разбиения
type PerTabResult struct {
	ZipPath      string
	CombinedPath string
	QCPath       string
	PerTabDir    string
	PerTabCount  int
}

// perTabQCRow строка контроля качества разбиения
type perTabQCRow struct {
	OrderNumber string
	SourceTab   string
	PhoneRaw    string
	PhoneOutput string
	PhoneNote   normalization.PhoneConfidence
	RunDate     string
}

// PerTabSplitter разбивает книгу на пер-вкладочные файлы с позициями и ZIP-архив
type PerTabSplitter struct {
	tn     *normalization.TextNormalizer
	phones *normalization.PhoneNormalizer
}

// NewPerTabSplitter создает новый разбиватель
func NewPerTabSplitter(tn *normalization.TextNormalizer, phones *normalization.PhoneNormalizer) *PerTabSplitter {
	return &PerTabSplitter{tn: tn, phones: phones}
}

// LoadItems читает список позиций из Items.xlsx.
// Обязательные колонки: Item Name, Value и один из вариантов Pc Weight;
// их отсутствие — фатальная ошибка с именем файла.
func (ps *PerTabSplitter) LoadItems(itemsPath string) ([]Item, error) {
	f, err := excelize.OpenFile(itemsPath)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть %s: %w", itemsPath, err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("%s: чтение листа %s: %w", itemsPath, sheetName, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s: лист %s не содержит позиций", itemsPath, sheetName)
	}

	colByKey := make(map[string]int)
	for i, h := range rows[0] {
		key := ps.tn.ComparisonKey(h)
		if _, exists := colByKey[key]; !exists {
			colByKey[key] = i
		}
	}

	nameCol, nameOK := colByKey["ITEM NAME"]
	valueCol, valueOK := colByKey["VALUE"]
	if !nameOK || !valueOK {
		return nil, fmt.Errorf("%s: требуются колонки Item Name, Value, Pc Weight", itemsPath)
	}

	pcwCol := -1
	for _, alias := range pcWeightAliases {
		if idx, ok := colByKey[ps.tn.ComparisonKey(alias)]; ok {
			pcwCol = idx
			break
		}
	}
	if pcwCol == -1 {
		return nil, fmt.Errorf("%s: требуется колонка Pc Weight (вес штуки, кг)", itemsPath)
	}

	var items []Item
	for _, row := range rows[1:] {
		name := ps.tn.Normalize(cellValue(row, nameCol))
		if name == "" {
			continue
		}
		items = append(items, Item{
			Name:     name,
			Value:    parseFloatOrZero(cellValue(row, valueCol)),
			PcWeight: parseFloatOrZero(cellValue(row, pcwCol)),
		})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: список позиций пуст", itemsPath)
	}
	return items, nil
}

// Run разбивает основную книгу по вкладкам, размножает строки по позициям
// и собирает ZIP-архив с пер-вкладочными файлами, COMBINED и _QC
func (ps *PerTabSplitter) Run(mainPath, itemsPath string, opts PerTabOptions) (*PerTabResult, error) {
	if opts.OutDirName == "" {
		opts.OutDirName = "output_multiline"
	}

	items, err := ps.LoadItems(itemsPath)
	if err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(mainPath)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть основную книгу %s: %w", mainPath, err)
	}
	defer f.Close()

	outDir := filepath.Join(filepath.Dir(mainPath), opts.OutDirName)
	perTabDir := filepath.Join(outDir, "per_tab_excels")
	if err := os.MkdirAll(perTabDir, 0o755); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог %s: %w", perTabDir, err)
	}

	blankCols := ps.continuationColumns(opts)
	runDate := TodayString()
	usedCodes := make(map[string]int)

	var combinedHeaders []string
	var combinedRows []map[string]interface{}
	var qcRows []perTabQCRow
	perTabCount := 0

	for _, sheet := range f.GetSheetList() {
		if ps.shouldSkipSheet(sheet) {
			continue
		}
		rows, rerr := f.GetRows(sheet)
		if rerr != nil || len(rows) < 2 {
			continue
		}

		headers := ps.outputHeaders(rows[0])
		combinedHeaders = extendUnion(combinedHeaders, headers)

		code := SheetCode(ps.tn, sheet, usedCodes)
		seq := 1
		var outRows []map[string]interface{}

		for _, row := range rows[1:] {
			base := make(map[string]interface{}, len(headers))
			rowStrings := make(map[string]string, len(rows[0]))
			for i, h := range rows[0] {
				v := cellValue(row, i)
				base[h] = v
				rowStrings[h] = v
			}
			for _, h := range headers {
				if _, ok := base[h]; !ok {
					base[h] = ""
				}
			}

			order := fmt.Sprintf("%s-%04d", code, seq)
			seq++
			base["Order Number"] = order

			phoneRaw := ps.tn.Normalize(rowStrings[TemplatePhoneColumn])
			if phoneRaw == "" {
				phoneRaw = ps.phones.ExtractPhoneFromRow(rowStrings)
			}
			phone := ps.phones.NormalizeKeepIfCannot(phoneRaw)
			base[TemplatePhoneColumn] = phone.Phone

			for i, item := range items {
				rec := make(map[string]interface{}, len(base)+4)
				for k, v := range base {
					rec[k] = v
				}
				rec["Item Name"] = item.Name
				rec["Item Price"] = item.Value
				rec["Pc Weight"] = item.PcWeight
				rec["Qty"] = 1

				if i > 0 {
					for _, col := range blankCols {
						if _, ok := rec[col]; ok {
							rec[col] = ""
						}
					}
				}

				outRows = append(outRows, rec)

				combined := make(map[string]interface{}, len(rec)+1)
				for k, v := range rec {
					combined[k] = v
				}
				combined["Source Tab"] = sheet
				combinedRows = append(combinedRows, combined)
			}

			qcRows = append(qcRows, perTabQCRow{
				OrderNumber: order,
				SourceTab:   sheet,
				PhoneRaw:    phoneRaw,
				PhoneOutput: phone.Phone,
				PhoneNote:   phone.Confidence,
				RunDate:     runDate,
			})
		}

		tabPath := filepath.Join(perTabDir, SafeFileName(ps.tn, sheet)+".xlsx")
		if err := ps.writeRowsWorkbook(tabPath, SafeSheetName(ps.tn, sheet), headers, outRows); err != nil {
			return nil, err
		}
		perTabCount++
	}

	result := &PerTabResult{PerTabDir: perTabDir, PerTabCount: perTabCount}

	if len(combinedRows) > 0 {
		combinedHeaders = extendUnion(combinedHeaders, []string{"Source Tab"})
		result.CombinedPath = filepath.Join(outDir, "ALL_TABS_COMBINED.xlsx")
		if err := ps.writeRowsWorkbook(result.CombinedPath, "COMBINED", combinedHeaders, combinedRows); err != nil {
			return nil, err
		}
	}

	result.QCPath = filepath.Join(outDir, "_QC.xlsx")
	if err := ps.writeQCWorkbook(result.QCPath, qcRows); err != nil {
		return nil, err
	}

	result.ZipPath = filepath.Join(outDir, "DHL_PER_TAB_EXCELS.zip")
	if err := ps.writeZip(result); err != nil {
		return nil, err
	}

	log.Printf("Разбиение завершено: %s (вкладок: %d, строк QC: %d)", result.ZipPath, perTabCount, len(qcRows))
	return result, nil
}

// continuationColumns итоговый набор гасимых колонок с учетом опции телефона
func (ps *PerTabSplitter) continuationColumns(opts PerTabOptions) []string {
	cols := append([]string(nil), blankOnContinuation...)
	if opts.BlankPhoneOnItemLines {
		cols = append(cols, TemplatePhoneColumn)
	}
	return cols
}

// shouldSkipSheet служебный ли лист
func (ps *PerTabSplitter) shouldSkipSheet(sheet string) bool {
	key := ps.tn.ComparisonKey(sheet)
	for _, skip := range perTabSkipSheets {
		if key == ps.tn.ComparisonKey(skip) {
			return true
		}
	}
	return false
}

// outputHeaders заголовки выходного листа: исходные плюс недостающие служебные
func (ps *PerTabSplitter) outputHeaders(baseHeaders []string) []string {
	headers := append([]string(nil), baseHeaders...)
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	for _, extra := range append([]string{"Order Number", TemplatePhoneColumn}, itemColumns...) {
		if !present[extra] {
			headers = append(headers, extra)
			present[extra] = true
		}
	}
	return headers
}

// writeRowsWorkbook сохраняет книгу с одним листом из строк-словарей
func (ps *PerTabSplitter) writeRowsWorkbook(path, sheetName string, headers []string, rows []map[string]interface{}) error {
	out := excelize.NewFile()
	defer out.Close()

	if _, err := out.NewSheet(sheetName); err != nil {
		return fmt.Errorf("не удалось создать лист %s: %w", sheetName, err)
	}
	out.DeleteSheet("Sheet1")

	for j, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(j+1, 1)
		if err := out.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}
	for i, row := range rows {
		for j, h := range headers {
			v, ok := row[h]
			if !ok || v == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := out.SetCellValue(sheetName, cell, v); err != nil {
				return err
			}
		}
	}

	if err := out.SaveAs(path); err != nil {
		return fmt.Errorf("не удалось сохранить %s: %w", path, err)
	}
	return nil
}

// writeQCWorkbook сохраняет книгу _QC
func (ps *PerTabSplitter) writeQCWorkbook(path string, qcRows []perTabQCRow) error {
	headers := []string{"Order Number", "Source Tab", "Phone Raw", "Phone Output", "Phone Note", "Run Date"}
	rows := make([]map[string]interface{}, 0, len(qcRows))
	for _, r := range qcRows {
		rows = append(rows, map[string]interface{}{
			"Order Number": r.OrderNumber,
			"Source Tab":   r.SourceTab,
			"Phone Raw":    r.PhoneRaw,
			"Phone Output": r.PhoneOutput,
			"Phone Note":   string(r.PhoneNote),
			"Run Date":     r.RunDate,
		})
	}
	return ps.writeRowsWorkbook(path, "_QC", headers, rows)
}

// writeZip упаковывает пер-вкладочные файлы, _QC и COMBINED в один архив
func (ps *PerTabSplitter) writeZip(result *PerTabResult) error {
	zf, err := os.Create(result.ZipPath)
	if err != nil {
		return fmt.Errorf("не удалось создать архив %s: %w", result.ZipPath, err)
	}
	defer zf.Close()

	zw := zip.NewWriter(zf)
	defer zw.Close()

	entries, err := filepath.Glob(filepath.Join(result.PerTabDir, "*.xlsx"))
	if err != nil {
		return err
	}
	sort.Strings(entries)

	for _, p := range entries {
		if err := addZipFile(zw, p, "per_tab_excels/"+filepath.Base(p)); err != nil {
			return err
		}
	}
	if err := addZipFile(zw, result.QCPath, filepath.Base(result.QCPath)); err != nil {
		return err
	}
	if result.CombinedPath != "" {
		if err := addZipFile(zw, result.CombinedPath, filepath.Base(result.CombinedPath)); err != nil {
			return err
		}
	}
	return nil
}

// addZipFile добавляет файл в архив под заданным именем
func addZipFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("не удалось открыть %s для архивации: %w", path, err)
	}
	defer src.Close()

	dst, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// extendUnion дополняет список заголовков новыми, сохраняя порядок
func extendUnion(union []string, headers []string) []string {
	seen := make(map[string]bool, len(union))
	for _, h := range union {
		seen[h] = true
	}
	for _, h := range headers {
		if !seen[h] {
			union = append(union, h)
			seen[h] = true
		}
	}
	return union
}

func parseFloatOrZero(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
