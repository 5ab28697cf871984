package importer

import (
	"fmt"
	"log"
	"strings"

	"github.com/xuri/excelize/v2"

	"dhlprep/normalization"
)

// DDPSheetName имя листа справочника со списком стран без предоплаты пошлин
const DDPSheetName = "DDP"

// LoadCountryTable загружает справочник стран DHL из .xlsx.
// Первый лист: колонки, содержащие COUNTRY CODE и COUNTRY NAME (поиск по
// подстроке заголовка). Лист DDP (если есть): сырые значения всех ячеек.
// Отсутствие обязательных колонок — фатальная ошибка с именем файла.
func LoadCountryTable(filePath string) ([]normalization.CountryRecord, []string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("не удалось открыть справочник стран %s: %w", filePath, err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, nil, fmt.Errorf("справочник стран %s: в книге нет листов", filePath)
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, nil, fmt.Errorf("справочник стран %s: чтение листа %s: %w", filePath, sheetName, err)
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("справочник стран %s: лист %s пуст", filePath, sheetName)
	}

	codeCol, nameCol := -1, -1
	for i, header := range rows[0] {
		hu := strings.ToUpper(strings.TrimSpace(header))
		if codeCol == -1 && strings.Contains(hu, "COUNTRY CODE") {
			codeCol = i
		}
		if nameCol == -1 && strings.Contains(hu, "COUNTRY NAME") {
			nameCol = i
		}
	}
	if codeCol == -1 || nameCol == -1 {
		return nil, nil, fmt.Errorf("справочник стран %s: не найдены колонки COUNTRY CODE/COUNTRY NAME на листе %s", filePath, sheetName)
	}

	var records []normalization.CountryRecord
	for _, row := range rows[1:] {
		code := cellAt(row, codeCol)
		name := cellAt(row, nameCol)
		if code == "" && name == "" {
			continue
		}
		records = append(records, normalization.CountryRecord{
			Name: name,
			Code: code,
		})
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("справочник стран %s: лист %s не содержит записей", filePath, sheetName)
	}

	ddpValues := loadDDPValues(f)
	log.Printf("Справочник стран загружен: %d записей, значений DDP: %d", len(records), len(ddpValues))

	return records, ddpValues, nil
}

// loadDDPValues читает все непустые ячейки листа DDP.
// Отсутствие листа не ошибка: DDP-множество будет пустым.
func loadDDPValues(f *excelize.File) []string {
	rows, err := f.GetRows(DDPSheetName)
	if err != nil {
		return nil
	}

	var values []string
	for _, row := range rows {
		for _, cell := range row {
			if v := strings.TrimSpace(cell); v != "" {
				values = append(values, v)
			}
		}
	}
	return values
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
