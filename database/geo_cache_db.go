package database

import (
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"
)

// CacheKey ключ записи гео-кэша
type CacheKey struct {
	ISO2     string
	CitySeed string
}

// CacheEntry значение гео-кэша: результат разрешения города.
// Дистанция хранится строкой как в сыром ответе провайдера.
type CacheEntry struct {
	Postal      string
	City        string
	CountryName string
	Distance    string
}

// CityIndex множества виденных городов по коду страны
type CityIndex map[string]map[string]struct{}

// Add добавляет город в индекс страны
func (ci CityIndex) Add(iso2, city string) {
	if city == "" {
		return
	}
	set, ok := ci[iso2]
	if !ok {
		set = make(map[string]struct{})
		ci[iso2] = set
	}
	set[city] = struct{}{}
}

// Cities возвращает города страны (порядок не определен)
func (ci CityIndex) Cities(iso2 string) []string {
	set := ci[iso2]
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// GeoCacheDB durable-хранилище гео-кэша и индекса городов поверх SQLite.
// Читается целиком при старте прогона, перезаписывается целиком при завершении.
type GeoCacheDB struct {
	conn *sql.DB
	path string
}

// NewGeoCacheDB открывает (или создает) базу гео-кэша и применяет миграции
func NewGeoCacheDB(path string) (*GeoCacheDB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть базу гео-кэша %s: %w", path, err)
	}

	db := &GeoCacheDB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// migrate создает таблицы кэша и индекса городов
func (db *GeoCacheDB) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS city_cache (
			iso2         TEXT NOT NULL,
			city_seed    TEXT NOT NULL,
			postal       TEXT NOT NULL DEFAULT '',
			city         TEXT NOT NULL DEFAULT '',
			country_name TEXT NOT NULL DEFAULT '',
			distance     TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (iso2, city_seed)
		)`,
		`CREATE TABLE IF NOT EXISTS city_index (
			iso2 TEXT NOT NULL,
			city TEXT NOT NULL,
			PRIMARY KEY (iso2, city)
		)`,
	}

	for _, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("миграция базы гео-кэша %s: %w", db.path, err)
		}
	}
	return nil
}

// LoadCache читает весь кэш в память
func (db *GeoCacheDB) LoadCache() (map[CacheKey]CacheEntry, error) {
	rows, err := db.conn.Query(`SELECT iso2, city_seed, postal, city, country_name, distance FROM city_cache`)
	if err != nil {
		return nil, fmt.Errorf("чтение city_cache: %w", err)
	}
	defer rows.Close()

	cache := make(map[CacheKey]CacheEntry)
	for rows.Next() {
		var k CacheKey
		var v CacheEntry
		if err := rows.Scan(&k.ISO2, &k.CitySeed, &v.Postal, &v.City, &v.CountryName, &v.Distance); err != nil {
			return nil, fmt.Errorf("чтение city_cache: %w", err)
		}
		cache[k] = v
	}
	return cache, rows.Err()
}

// SaveCache транзакционно перезаписывает таблицу кэша целиком.
// Ключ таблицы дает дедупликацию; порядок вставки детерминирован.
func (db *GeoCacheDB) SaveCache(cache map[CacheKey]CacheEntry) error {
	keys := make([]CacheKey, 0, len(cache))
	for k := range cache {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ISO2 != keys[j].ISO2 {
			return keys[i].ISO2 < keys[j].ISO2
		}
		return keys[i].CitySeed < keys[j].CitySeed
	})

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("запись city_cache: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM city_cache`); err != nil {
		return fmt.Errorf("запись city_cache: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO city_cache (iso2, city_seed, postal, city, country_name, distance) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("запись city_cache: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		v := cache[k]
		if _, err := stmt.Exec(k.ISO2, k.CitySeed, v.Postal, v.City, v.CountryName, v.Distance); err != nil {
			return fmt.Errorf("запись city_cache (%s/%s): %w", k.ISO2, k.CitySeed, err)
		}
	}

	return tx.Commit()
}

// LoadCityIndex читает весь индекс городов в память
func (db *GeoCacheDB) LoadCityIndex() (CityIndex, error) {
	rows, err := db.conn.Query(`SELECT iso2, city FROM city_index`)
	if err != nil {
		return nil, fmt.Errorf("чтение city_index: %w", err)
	}
	defer rows.Close()

	index := make(CityIndex)
	for rows.Next() {
		var iso2, city string
		if err := rows.Scan(&iso2, &city); err != nil {
			return nil, fmt.Errorf("чтение city_index: %w", err)
		}
		index.Add(iso2, city)
	}
	return index, rows.Err()
}

// SaveCityIndex транзакционно перезаписывает индекс городов целиком
func (db *GeoCacheDB) SaveCityIndex(index CityIndex) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("запись city_index: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM city_index`); err != nil {
		return fmt.Errorf("запись city_index: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO city_index (iso2, city) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("запись city_index: %w", err)
	}
	defer stmt.Close()

	countries := make([]string, 0, len(index))
	for iso2 := range index {
		countries = append(countries, iso2)
	}
	sort.Strings(countries)

	for _, iso2 := range countries {
		cities := index.Cities(iso2)
		sort.Strings(cities)
		for _, city := range cities {
			if _, err := stmt.Exec(iso2, city); err != nil {
				return fmt.Errorf("запись city_index (%s/%s): %w", iso2, city, err)
			}
		}
	}

	return tx.Commit()
}

// Close закрывает соединение с базой
func (db *GeoCacheDB) Close() error {
	return db.conn.Close()
}
