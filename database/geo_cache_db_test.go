package database

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *GeoCacheDB {
	t.Helper()
	db, err := NewGeoCacheDB(filepath.Join(t.TempDir(), "geo_cache.db"))
	if err != nil {
		t.Fatalf("не удалось открыть тестовую базу: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGeoCacheDB_EmptyOnFirstOpen(t *testing.T) {
	db := openTestDB(t)

	cache, err := db.LoadCache()
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	if len(cache) != 0 {
		t.Errorf("новая база должна быть пустой, получили %d записей", len(cache))
	}

	index, err := db.LoadCityIndex()
	if err != nil {
		t.Fatalf("LoadCityIndex: %v", err)
	}
	if len(index) != 0 {
		t.Errorf("новый индекс должен быть пустым, получили %d стран", len(index))
	}
}

func TestGeoCacheDB_CacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geo_cache.db")

	db, err := NewGeoCacheDB(path)
	if err != nil {
		t.Fatalf("NewGeoCacheDB: %v", err)
	}

	cache := map[CacheKey]CacheEntry{
		{ISO2: "CI", CitySeed: "ABIDJAN"}: {Postal: "00225", City: "ABIDJAN", CountryName: "COTE D IVOIRE", Distance: "0"},
		{ISO2: "EG", CitySeed: "MAADI"}:   {Postal: "11728", City: "CAIRO", CountryName: "EGYPT", Distance: "12000.5"},
		{ISO2: "EG", CitySeed: "GIZA"}:    {Postal: "12511", City: "GIZA", CountryName: "EGYPT", Distance: ""},
	}
	if err := db.SaveCache(cache); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// повторное открытие: данные пережили перезапуск
	db2, err := NewGeoCacheDB(path)
	if err != nil {
		t.Fatalf("повторное открытие: %v", err)
	}
	defer db2.Close()

	got, err := db2.LoadCache()
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	if len(got) != len(cache) {
		t.Fatalf("после перезапуска %d записей, ожидали %d", len(got), len(cache))
	}
	for k, want := range cache {
		if got[k] != want {
			t.Errorf("запись %v: got %+v, want %+v", k, got[k], want)
		}
	}
}

func TestGeoCacheDB_SaveCacheOverwrites(t *testing.T) {
	db := openTestDB(t)

	first := map[CacheKey]CacheEntry{
		{ISO2: "EG", CitySeed: "MAADI"}: {Postal: "11728", City: "CAIRO"},
		{ISO2: "EG", CitySeed: "GIZA"}:  {Postal: "12511", City: "GIZA"},
	}
	if err := db.SaveCache(first); err != nil {
		t.Fatalf("SaveCache(first): %v", err)
	}

	// вторая запись меньше и с новым значением: побеждает последняя
	second := map[CacheKey]CacheEntry{
		{ISO2: "EG", CitySeed: "MAADI"}: {Postal: "11431", City: "CAIRO"},
	}
	if err := db.SaveCache(second); err != nil {
		t.Fatalf("SaveCache(second): %v", err)
	}

	got, err := db.LoadCache()
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ожидали полную перезапись (1 запись), получили %d", len(got))
	}
	if e := got[CacheKey{ISO2: "EG", CitySeed: "MAADI"}]; e.Postal != "11431" {
		t.Errorf("Postal = %q, want 11431", e.Postal)
	}
}

func TestGeoCacheDB_CityIndexRoundTrip(t *testing.T) {
	db := openTestDB(t)

	index := make(CityIndex)
	index.Add("EG", "CAIRO")
	index.Add("EG", "GIZA")
	index.Add("EG", "CAIRO") // дубликат не множится
	index.Add("CI", "ABIDJAN")
	index.Add("CI", "") // пустой город игнорируется

	if err := db.SaveCityIndex(index); err != nil {
		t.Fatalf("SaveCityIndex: %v", err)
	}

	got, err := db.LoadCityIndex()
	if err != nil {
		t.Fatalf("LoadCityIndex: %v", err)
	}

	eg := got.Cities("EG")
	if len(eg) != 2 {
		t.Errorf("Cities(EG) = %v, ожидали 2 города", eg)
	}
	ci := got.Cities("CI")
	if len(ci) != 1 || ci[0] != "ABIDJAN" {
		t.Errorf("Cities(CI) = %v, ожидали [ABIDJAN]", ci)
	}
	if cities := got.Cities("XX"); len(cities) != 0 {
		t.Errorf("Cities(XX) = %v, ожидали пусто", cities)
	}
}

func TestCityIndex_Add(t *testing.T) {
	index := make(CityIndex)
	index.Add("EG", "CAIRO")
	index.Add("EG", "CAIRO")
	index.Add("EG", "")

	if got := index.Cities("EG"); len(got) != 1 || got[0] != "CAIRO" {
		t.Errorf("Cities(EG) = %v, want [CAIRO]", got)
	}
}
