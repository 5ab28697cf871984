package importer

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// writeCountryWorkbook собирает тестовый справочник стран
func writeCountryWorkbook(t *testing.T, headers []string, rows [][]string, ddp []string) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		t.Fatalf("заголовки: %v", err)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("строка %d: %v", i+2, err)
		}
	}

	if ddp != nil {
		if _, err := f.NewSheet(DDPSheetName); err != nil {
			t.Fatalf("лист DDP: %v", err)
		}
		for i, v := range ddp {
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			if err := f.SetCellValue(DDPSheetName, cell, v); err != nil {
				t.Fatalf("значение DDP: %v", err)
			}
		}
	}

	path := filepath.Join(t.TempDir(), "countries.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("сохранение книги: %v", err)
	}
	return path
}

func TestLoadCountryTable(t *testing.T) {
	path := writeCountryWorkbook(t,
		[]string{"DHL Country Code", "DHL Country Name", "Remarks"},
		[][]string{
			{"EG", "Egypt", ""},
			{"CI", "Cote D Ivoire", "west africa"},
			{"", "", ""}, // пустая строка пропускается
			{"AE", "United Arab Emirates"},
		},
		[]string{"DDP", "Ivory Coast", "Egypt"},
	)

	records, ddp, err := LoadCountryTable(path)
	if err != nil {
		t.Fatalf("LoadCountryTable: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("ожидали 3 записи, получили %d: %v", len(records), records)
	}
	if records[0].Code != "EG" || records[0].Name != "Egypt" {
		t.Errorf("первая запись = %+v", records[0])
	}
	if records[1].Code != "CI" {
		t.Errorf("порядок таблицы должен сохраняться: %+v", records[1])
	}

	if len(ddp) != 3 {
		t.Errorf("ожидали 3 сырых значения DDP, получили %v", ddp)
	}
}

func TestLoadCountryTable_NoDDPSheet(t *testing.T) {
	path := writeCountryWorkbook(t,
		[]string{"Country Code", "Country Name"},
		[][]string{{"EG", "Egypt"}},
		nil,
	)

	records, ddp, err := LoadCountryTable(path)
	if err != nil {
		t.Fatalf("отсутствие листа DDP не должно быть ошибкой: %v", err)
	}
	if len(records) != 1 || len(ddp) != 0 {
		t.Errorf("records=%v ddp=%v", records, ddp)
	}
}

func TestLoadCountryTable_MissingColumns(t *testing.T) {
	path := writeCountryWorkbook(t,
		[]string{"Code", "Name"},
		[][]string{{"EG", "Egypt"}},
		nil,
	)

	_, _, err := LoadCountryTable(path)
	if err == nil {
		t.Fatal("ожидали ошибку при отсутствии обязательных колонок")
	}
	if !strings.Contains(err.Error(), "countries.xlsx") {
		t.Errorf("ошибка должна называть файл: %v", err)
	}
}

func TestLoadCountryTable_MissingFile(t *testing.T) {
	if _, _, err := LoadCountryTable(filepath.Join(t.TempDir(), "nope.xlsx")); err == nil {
		t.Fatal("ожидали ошибку для отсутствующего файла")
	}
}
