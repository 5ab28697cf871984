package workflows

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"dhlprep/enrichment"
	"dhlprep/normalization"
)

// Имена служебных листов выходной книги обогащения
const (
	LogSheetName     = "_LOG"
	SummarySheetName = "_SUMMARY"
)

// OriginalCityColumn колонка с городом до обогащения (для аудита)
const OriginalCityColumn = "Original City"

// Статусы строк журнала обогащения
const (
	StatusNoCountry      = "no_country"
	StatusNoCitySeed     = "no_city_seed"
	StatusUnknownCountry = "unknown_country"
	StatusOkAPI          = "ok_api"
	StatusOkCached       = "ok_cached"
	needsReviewSuffix    = "_needs_review"
)

// Алиасы колонок входных листов (регистронезависимо, по вхождению)
var (
	countryNameAliases = []string{"country", "country name", "destination country"}
	countryCodeAliases = []string{"country code", "iso2", "iso"}
	cityAliases        = []string{"city", "address locality", "town"}
	postalAliases      = []string{"postal code", "postcode", "zip"}
)

// Имена колонок по умолчанию, когда во входном листе их нет
const (
	defaultCountryNameCol = "Country"
	defaultCountryCodeCol = "Country Code"
	defaultCityCol        = "City"
	defaultPostalCol      = "Postal Code"
)

// LogRow строка журнала: одна на входную строку
type LogRow struct {
	Sheet        string
	Row          int
	InputCountry string
	InputCode    string
	InputCity    string
	ISO2         string
	FinalCity    string
	Postal       string
	Distance     string
	Status       string
}

// SheetKPI счетчики одного листа
type SheetKPI struct {
	Sheet      string
	APICalls   int
	CacheHits  int
	FlaggedFar int
}

// RunSummary сводка прогона обогащения
type RunSummary struct {
	RunID          string
	TotalRows      int
	OkAPI          int
	OkCached       int
	NeedsReview    int
	NoCountry      int
	NoCitySeed     int
	UnknownCountry int
	CacheSize      int
	Sheets         []SheetKPI
}

// PostalEnricher прогоняет обогащение индексов/городов по листам книги
type PostalEnricher struct {
	tn       *normalization.TextNormalizer
	resolver *normalization.CountryResolver
	engine   *enrichment.Engine
}

// NewPostalEnricher создает новый прогон обогащения
func NewPostalEnricher(tn *normalization.TextNormalizer, resolver *normalization.CountryResolver, engine *enrichment.Engine) *PostalEnricher {
	return &PostalEnricher{tn: tn, resolver: resolver, engine: engine}
}

// Run обрабатывает листы входной книги последовательно, строки по порядку,
// и сохраняет выходную книгу с листами _LOG и _SUMMARY.
// Кэш и индекс городов сбрасываются в хранилище на всех путях выхода.
func (pe *PostalEnricher) Run(ctx context.Context, inputPath, outPath string) (summary *RunSummary, err error) {
	f, err := excelize.OpenFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть входную книгу %s: %w", inputPath, err)
	}
	defer f.Close()

	defer func() {
		if ferr := pe.engine.Flush(); ferr != nil && err == nil {
			err = ferr
		}
	}()

	out := excelize.NewFile()
	defer out.Close()

	summary = &RunSummary{RunID: uuid.NewString()}
	var logs []LogRow

	for _, sheet := range f.GetSheetList() {
		rows, rerr := f.GetRows(sheet)
		if rerr != nil {
			return nil, fmt.Errorf("чтение листа %s: %w", sheet, rerr)
		}
		if len(rows) == 0 {
			continue
		}

		sheetLogs, kpi, serr := pe.processSheet(ctx, out, sheet, rows)
		if serr != nil {
			return nil, serr
		}
		logs = append(logs, sheetLogs...)
		summary.Sheets = append(summary.Sheets, kpi)
	}

	pe.tally(summary, logs)
	summary.CacheSize = pe.engine.CacheSize()

	if err := pe.writeLogSheet(out, logs); err != nil {
		return nil, err
	}
	if err := pe.writeSummarySheet(out, summary); err != nil {
		return nil, err
	}

	out.DeleteSheet("Sheet1")
	if err := out.SaveAs(outPath); err != nil {
		return nil, fmt.Errorf("не удалось сохранить книгу %s: %w", outPath, err)
	}

	log.Printf("Обогащение завершено: %s (строк: %d, api: %d, кэш: %d)",
		outPath, summary.TotalRows, summary.OkAPI, summary.OkCached)
	return summary, nil
}

// sheetColumns разрешенные индексы колонок листа
type sheetColumns struct {
	headers      []string
	countryName  int
	countryCode  int
	city         int
	postal       int
	originalCity int
}

// resolveColumns находит колонки по алиасам; отсутствующие добавляются в конец
func (pe *PostalEnricher) resolveColumns(headers []string) sheetColumns {
	cols := sheetColumns{headers: append([]string(nil), headers...)}

	ensure := func(aliases []string, defaultName string) int {
		if idx := findColumn(cols.headers, aliases); idx >= 0 {
			return idx
		}
		cols.headers = append(cols.headers, defaultName)
		return len(cols.headers) - 1
	}

	cols.countryName = ensure(countryNameAliases, defaultCountryNameCol)
	cols.countryCode = ensure(countryCodeAliases, defaultCountryCodeCol)
	cols.city = ensure(cityAliases, defaultCityCol)
	cols.postal = ensure(postalAliases, defaultPostalCol)
	cols.originalCity = ensure([]string{strings.ToLower(OriginalCityColumn)}, OriginalCityColumn)
	return cols
}

// findColumn ищет колонку: сначала точное совпадение (без регистра),
// затем вхождение алиаса в заголовок
func findColumn(headers []string, aliases []string) int {
	lower := make([]string, len(headers))
	for i, h := range headers {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}
	for _, a := range aliases {
		for i, h := range lower {
			if h == a {
				return i
			}
		}
	}
	for i, h := range lower {
		for _, a := range aliases {
			if strings.Contains(h, a) {
				return i
			}
		}
	}
	return -1
}

// processSheet обрабатывает один лист и пишет его в выходную книгу
func (pe *PostalEnricher) processSheet(ctx context.Context, out *excelize.File, sheet string, rows [][]string) ([]LogRow, SheetKPI, error) {
	kpi := SheetKPI{Sheet: sheet}
	cols := pe.resolveColumns(rows[0])
	opts := pe.engine.Options()

	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		padded := make([]string, len(cols.headers))
		copy(padded, row)
		data = append(data, padded)
	}

	var logs []LogRow
	for i, row := range data {
		inName := cellValue(row, cols.countryName)
		inCode := cellValue(row, cols.countryCode)
		inCity := cellValue(row, cols.city)
		pe.maybeWrite(row, cols.originalCity, inCity, opts.OnlyEmpty)

		lr := LogRow{
			Sheet:        sheet,
			Row:          i + 1,
			InputCountry: inName,
			InputCode:    inCode,
			InputCity:    inCity,
		}

		iso2, canonical := pe.normalizeCountry(inName, inCode)
		if iso2 == "" {
			lr.Status = StatusNoCountry
			logs = append(logs, lr)
			continue
		}

		seed := strings.TrimSpace(pe.tn.UpperASCII(inCity))
		if seed == "" && opts.FallbackToCapital() {
			if capital, ok := enrichment.CapitalFor(iso2); ok {
				seed = capital
			}
		}
		if seed == "" {
			lr.Status = StatusNoCitySeed
			logs = append(logs, lr)
			continue
		}

		result, rerr := pe.engine.ResolveCity(ctx, iso2, canonical, seed)
		if rerr != nil {
			if errors.Is(rerr, enrichment.ErrUnknownCountry) {
				lr.Status = StatusUnknownCountry
				logs = append(logs, lr)
				continue
			}
			return nil, kpi, fmt.Errorf("лист %s, строка %d: %w", sheet, i+1, rerr)
		}

		status := StatusOkAPI
		if result.Source == enrichment.SourceCacheHit {
			status = StatusOkCached
			kpi.CacheHits++
		} else {
			kpi.APICalls++
		}

		finalCity := seed
		if opts.StrictCityFromProvider() && result.City != "" {
			finalCity = result.City
		}
		finalCountry := pe.tn.UpperASCII(canonical)

		if result.NeedsReview {
			status += needsReviewSuffix
			kpi.FlaggedFar++
		}

		pe.maybeWrite(row, cols.countryCode, iso2, opts.OnlyEmpty)
		pe.maybeWrite(row, cols.countryName, finalCountry, opts.OnlyEmpty)
		pe.maybeWrite(row, cols.city, finalCity, opts.OnlyEmpty)
		pe.maybeWrite(row, cols.postal, result.Postal, opts.OnlyEmpty)

		lr.ISO2 = iso2
		lr.FinalCity = finalCity
		lr.Postal = result.Postal
		lr.Distance = result.Distance
		lr.Status = status
		logs = append(logs, lr)
	}

	if err := pe.writeSheet(out, sheet, cols.headers, data); err != nil {
		return nil, kpi, err
	}
	return logs, kpi, nil
}

// normalizeCountry определяет ISO2 и каноническое имя страны.
// Двухбуквенный код берется напрямую, иначе имя разрешается через справочник.
func (pe *PostalEnricher) normalizeCountry(name, code string) (string, string) {
	c := strings.TrimSpace(pe.tn.UpperASCII(code))
	if len(c) == 2 && isAlpha(c) {
		if rec := pe.resolver.ResolveCode(c); rec != nil {
			return c, rec.Name
		}
		if name != "" {
			return c, name
		}
		return c, c
	}

	rec := pe.resolver.Resolve(name)
	if rec == nil {
		return "", ""
	}
	return strings.ToUpper(rec.Code), rec.Name
}

// maybeWrite пишет значение в ячейку; в режиме onlyEmpty — только в пустую
func (pe *PostalEnricher) maybeWrite(row []string, idx int, value string, onlyEmpty bool) {
	if idx < 0 || idx >= len(row) {
		return
	}
	if onlyEmpty && strings.TrimSpace(row[idx]) != "" {
		return
	}
	row[idx] = value
}

// writeSheet пишет лист с заголовками и данными в выходную книгу
func (pe *PostalEnricher) writeSheet(out *excelize.File, sheet string, headers []string, data [][]string) error {
	safeName := SafeSheetName(pe.tn, sheet)
	if _, err := out.NewSheet(safeName); err != nil {
		return fmt.Errorf("не удалось создать лист %s: %w", safeName, err)
	}

	for j, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(j+1, 1)
		if err := out.SetCellValue(safeName, cell, h); err != nil {
			return err
		}
	}
	for i, row := range data {
		for j, v := range row {
			if v == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := out.SetCellValue(safeName, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// tally сводит счетчики по журналу
func (pe *PostalEnricher) tally(summary *RunSummary, logs []LogRow) {
	summary.TotalRows = len(logs)
	for _, lr := range logs {
		switch {
		case strings.HasPrefix(lr.Status, StatusOkAPI):
			summary.OkAPI++
		case strings.HasPrefix(lr.Status, StatusOkCached):
			summary.OkCached++
		case lr.Status == StatusNoCountry:
			summary.NoCountry++
		case lr.Status == StatusNoCitySeed:
			summary.NoCitySeed++
		case lr.Status == StatusUnknownCountry:
			summary.UnknownCountry++
		}
		if strings.HasSuffix(lr.Status, needsReviewSuffix) {
			summary.NeedsReview++
		}
	}
}

// logHeaders заголовки листа _LOG
var logHeaders = []string{
	"sheet", "row", "input_country", "input_country_code", "input_city",
	"iso2", "final_city", "postal", "distance", "status",
}

// writeLogSheet пишет журнал обогащения
func (pe *PostalEnricher) writeLogSheet(out *excelize.File, logs []LogRow) error {
	if _, err := out.NewSheet(LogSheetName); err != nil {
		return fmt.Errorf("не удалось создать лист %s: %w", LogSheetName, err)
	}

	for j, h := range logHeaders {
		cell, _ := excelize.CoordinatesToCellName(j+1, 1)
		if err := out.SetCellValue(LogSheetName, cell, h); err != nil {
			return err
		}
	}
	for i, lr := range logs {
		values := []interface{}{
			lr.Sheet, lr.Row, lr.InputCountry, lr.InputCode, lr.InputCity,
			lr.ISO2, lr.FinalCity, lr.Postal, lr.Distance, lr.Status,
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := out.SetCellValue(LogSheetName, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeSummarySheet пишет конфигурацию прогона, сводные счетчики и
// пер-листовые KPI тремя блоками с пустой строкой между ними
func (pe *PostalEnricher) writeSummarySheet(out *excelize.File, summary *RunSummary) error {
	if _, err := out.NewSheet(SummarySheetName); err != nil {
		return fmt.Errorf("не удалось создать лист %s: %w", SummarySheetName, err)
	}

	opts := pe.engine.Options()
	row := 1

	writeKV := func(key string, value interface{}) error {
		cellK, _ := excelize.CoordinatesToCellName(1, row)
		cellV, _ := excelize.CoordinatesToCellName(2, row)
		if err := out.SetCellValue(SummarySheetName, cellK, key); err != nil {
			return err
		}
		if err := out.SetCellValue(SummarySheetName, cellV, value); err != nil {
			return err
		}
		row++
		return nil
	}

	config := []struct {
		key   string
		value interface{}
	}{
		{"RUN_ID", summary.RunID},
		{"PROVIDER_TYPE", opts.ProviderType},
		{"SERVICE_TYPE", opts.ServiceType},
		{"LIMIT_RESULTS", opts.LimitResults},
		{"MAX_ACCEPTED_DISTANCE_M", opts.MaxAcceptedDistanceM},
		{"REQUEST_DELAY", opts.RequestDelay.String()},
		{"MAX_RETRIES", opts.MaxRetries},
		{"ONLY_EMPTY", opts.OnlyEmpty},
		{"STRICT_CITY_FROM_DHL", opts.StrictCityFromProvider()},
		{"FALLBACK_TO_CAPITAL", opts.FallbackToCapital()},
	}
	if err := writeKV("Key", "Value"); err != nil {
		return err
	}
	for _, kv := range config {
		if err := writeKV(kv.key, kv.value); err != nil {
			return err
		}
	}
	row++

	metrics := []struct {
		key   string
		value interface{}
	}{
		{"total_rows", summary.TotalRows},
		{"ok_api", summary.OkAPI},
		{"ok_cached", summary.OkCached},
		{"needs_review", summary.NeedsReview},
		{"no_country", summary.NoCountry},
		{"no_city_seed", summary.NoCitySeed},
		{"unknown_country", summary.UnknownCountry},
	}
	if err := writeKV("Metric", "Value"); err != nil {
		return err
	}
	for _, kv := range metrics {
		if err := writeKV(kv.key, kv.value); err != nil {
			return err
		}
	}
	row++

	kpiHeaders := []string{"sheet", "api_calls", "cache_hits", "flagged_far"}
	for j, h := range kpiHeaders {
		cell, _ := excelize.CoordinatesToCellName(j+1, row)
		if err := out.SetCellValue(SummarySheetName, cell, h); err != nil {
			return err
		}
	}
	row++
	for _, kpi := range summary.Sheets {
		values := []interface{}{kpi.Sheet, kpi.APICalls, kpi.CacheHits, kpi.FlaggedFar}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			if err := out.SetCellValue(SummarySheetName, cell, v); err != nil {
				return err
			}
		}
		row++
	}
	return nil
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}
