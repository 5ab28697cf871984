package workflows

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"dhlprep/database"
	"dhlprep/enrichment"
	"dhlprep/normalization"
)

// fakeFinder заглушка гео-провайдера для прогонов обогащения
type fakeFinder struct {
	responses    map[string]*enrichment.LocationResult
	errByCountry map[string]error
	calls        int
}

func (f *fakeFinder) FindByAddress(_ context.Context, q enrichment.LocationQuery) (*enrichment.LocationResult, error) {
	f.calls++
	if err, ok := f.errByCountry[q.CountryCode]; ok {
		return nil, err
	}
	if res, ok := f.responses[q.CountryCode+"/"+q.AddressLocality]; ok {
		return res, nil
	}
	return &enrichment.LocationResult{Found: false}, nil
}

func newEnricherResolver() *normalization.CountryResolver {
	return normalization.NewCountryResolver(normalization.NewTextNormalizer(), []normalization.CountryRecord{
		{Name: "Egypt", Code: "EG"},
		{Name: "Cote D Ivoire", Code: "CI"},
	})
}

func newEnricher(t *testing.T, dbPath string, finder enrichment.LocationFinder) *PostalEnricher {
	t.Helper()
	store, err := database.NewGeoCacheDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eng, err := enrichment.NewEngine(store, finder, enrichment.Options{})
	require.NoError(t, err)

	return NewPostalEnricher(normalization.NewTextNormalizer(), newEnricherResolver(), eng)
}

// writeEnricherInput входная книга прогона обогащения
func writeEnricherInput(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	writeSheetRows(t, f, "Shipments", [][]interface{}{
		{"Country", "City", "Postal Code"},
		{"Ivory Coast", "Abidjan", ""},
		{"Côte d'Ivoire", "ABIDJAN", ""}, // та же страна/город: из кэша
		{"Egypt", "Fayoum", ""},          // дистанция за порогом
		{"Egypt", "", ""},                // пустой город: столица
		{"", "Lonely City", ""},          // нет страны
		{"Atlantis", "Marketown", ""},    // неизвестная страна в справочнике
		{"Ivory Coast", "", ""},          // нет города, столица CI неизвестна
	})
	writeSheetRows(t, f, "Codes", [][]interface{}{
		{"Country Code", "City"},
		{"ZZ", "Lost City"}, // провайдер отвечает Unknown Country
	})

	return saveWorkbook(t, f, "shipments.xlsx")
}

func newEnricherFinder() *fakeFinder {
	return &fakeFinder{
		responses: map[string]*enrichment.LocationResult{
			"CI/ABIDJAN": {Found: true, Postal: "00225", City: "Abidjan", Distance: "1500"},
			"EG/FAYOUM":  {Found: true, Postal: "63511", City: "Fayoum", Distance: "30000"},
			"EG/CAIRO":   {Found: true, Postal: "11511", City: "Cairo", Distance: "2000"},
		},
		errByCountry: map[string]error{"ZZ": enrichment.ErrUnknownCountry},
	}
}

func TestPostalEnricher_Run(t *testing.T) {
	inputPath := writeEnricherInput(t)
	outPath := filepath.Join(t.TempDir(), "enriched.xlsx")

	pe := newEnricher(t, filepath.Join(t.TempDir(), "geo.db"), newEnricherFinder())

	summary, err := pe.Run(context.Background(), inputPath, outPath)
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 8, summary.TotalRows)
	assert.Equal(t, 3, summary.OkAPI)
	assert.Equal(t, 1, summary.OkCached)
	assert.Equal(t, 1, summary.NeedsReview)
	assert.Equal(t, 2, summary.NoCountry)
	assert.Equal(t, 1, summary.NoCitySeed)
	assert.Equal(t, 1, summary.UnknownCountry)

	require.Len(t, summary.Sheets, 2)
	shipKPI := summary.Sheets[0]
	assert.Equal(t, "Shipments", shipKPI.Sheet)
	assert.Equal(t, 3, shipKPI.APICalls)
	assert.Equal(t, 1, shipKPI.CacheHits)
	assert.Equal(t, 1, shipKPI.FlaggedFar)

	f, err := excelize.OpenFile(outPath)
	require.NoError(t, err)
	defer f.Close()

	cell := func(sheet, ref string) string {
		v, cerr := f.GetCellValue(sheet, ref)
		require.NoError(t, cerr)
		return v
	}

	// недостающие колонки добавлены в конец листа
	assert.Equal(t, "Country Code", cell("Shipments", "D1"))
	assert.Equal(t, OriginalCityColumn, cell("Shipments", "E1"))

	// первая строка: страна канонизирована, город/индекс от провайдера
	assert.Equal(t, "COTE D IVOIRE", cell("Shipments", "A2"))
	assert.Equal(t, "ABIDJAN", cell("Shipments", "B2"))
	assert.Equal(t, "00225", cell("Shipments", "C2"))
	assert.Equal(t, "CI", cell("Shipments", "D2"))
	assert.Equal(t, "Abidjan", cell("Shipments", "E2"))

	// вторая строка обслужена из кэша с тем же результатом
	assert.Equal(t, "00225", cell("Shipments", "C3"))

	// пустой город заполняется столицей
	assert.Equal(t, "CAIRO", cell("Shipments", "B5"))
	assert.Equal(t, "11511", cell("Shipments", "C5"))

	// журнал: статусы строк по порядку
	wantStatuses := []string{
		StatusOkAPI, StatusOkCached, StatusOkAPI + "_needs_review", StatusOkAPI,
		StatusNoCountry, StatusNoCountry, StatusNoCitySeed, StatusUnknownCountry,
	}
	for i, want := range wantStatuses {
		ref, _ := excelize.CoordinatesToCellName(10, i+2)
		assert.Equal(t, want, cell(LogSheetName, ref), "строка журнала %d", i+1)
	}

	// сводка: конфигурация и счетчики
	assert.Equal(t, "Key", cell(SummarySheetName, "A1"))
	assert.Equal(t, "RUN_ID", cell(SummarySheetName, "A2"))
	assert.NotEmpty(t, cell(SummarySheetName, "B2"))
	assert.Equal(t, "total_rows", cell(SummarySheetName, "A14"))
	assert.Equal(t, "8", cell(SummarySheetName, "B14"))
}

func TestPostalEnricher_CacheSurvivesRuns(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "geo.db")
	inputPath := writeEnricherInput(t)

	pe := newEnricher(t, dbPath, newEnricherFinder())
	_, err := pe.Run(context.Background(), inputPath, filepath.Join(dir, "run1.xlsx"))
	require.NoError(t, err)

	// второй прогон: провайдер молчит, разрешимые строки идут из кэша
	silent := &fakeFinder{errByCountry: map[string]error{"ZZ": enrichment.ErrUnknownCountry}}
	pe2 := newEnricher(t, dbPath, silent)

	summary, err := pe2.Run(context.Background(), inputPath, filepath.Join(dir, "run2.xlsx"))
	require.NoError(t, err)

	assert.Equal(t, 4, summary.OkCached, "ABIDJAN x2, FAYOUM и столица должны быть в кэше")
	assert.Equal(t, 0, summary.OkAPI)
	assert.Equal(t, 1, summary.NeedsReview, "флаг дистанции переживает кэш")
}

func TestPostalEnricher_OnlyEmptyMode(t *testing.T) {
	f := excelize.NewFile()
	writeSheetRows(t, f, "Data", [][]interface{}{
		{"Country", "City", "Postal Code"},
		{"Egypt", "Fayoum", "99999"}, // индекс уже заполнен
	})
	inputPath := saveWorkbook(t, f, "prefilled.xlsx")
	f.Close()

	store, err := database.NewGeoCacheDB(filepath.Join(t.TempDir(), "geo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eng, err := enrichment.NewEngine(store, newEnricherFinder(), enrichment.Options{OnlyEmpty: true})
	require.NoError(t, err)
	pe := NewPostalEnricher(normalization.NewTextNormalizer(), newEnricherResolver(), eng)

	outPath := filepath.Join(t.TempDir(), "out.xlsx")
	_, err = pe.Run(context.Background(), inputPath, outPath)
	require.NoError(t, err)

	out, err := excelize.OpenFile(outPath)
	require.NoError(t, err)
	defer out.Close()

	got, err := out.GetCellValue("Data", "C2")
	require.NoError(t, err)
	assert.Equal(t, "99999", got, "в режиме only-empty заполненная ячейка не перезаписывается")
}
