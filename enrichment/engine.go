package enrichment

import (
	"context"
	"fmt"
	"log"
	"strings"

	"dhlprep/database"
	"dhlprep/normalization"
)

// Engine движок разрешения города/индекса: кэш, обучаемый индекс городов,
// fuzzy-коррекция и откат на столицу поверх внешнего гео-провайдера.
// Экземпляр владеет кэшем и индексом на время одного прогона;
// Flush обязателен на всех путях завершения.
type Engine struct {
	finder LocationFinder
	store  *database.GeoCacheDB
	tn     *normalization.TextNormalizer
	fuzzy  *normalization.FuzzyMatcher
	opts   Options

	cache map[database.CacheKey]database.CacheEntry
	index database.CityIndex
}

// NewEngine создает движок и загружает кэш/индекс из durable-хранилища
func NewEngine(store *database.GeoCacheDB, finder LocationFinder, opts Options) (*Engine, error) {
	opts.ApplyDefaults()

	cache, err := store.LoadCache()
	if err != nil {
		return nil, fmt.Errorf("загрузка гео-кэша: %w", err)
	}
	index, err := store.LoadCityIndex()
	if err != nil {
		return nil, fmt.Errorf("загрузка индекса городов: %w", err)
	}

	return &Engine{
		finder: finder,
		store:  store,
		tn:     normalization.NewTextNormalizer(),
		fuzzy:  normalization.NewFuzzyMatcher(),
		opts:   opts,
		cache:  cache,
		index:  index,
	}, nil
}

// Options возвращает действующие опции движка
func (e *Engine) Options() Options {
	return e.opts
}

// CacheSize текущий размер кэша
func (e *Engine) CacheSize() int {
	return len(e.cache)
}

// ResolveCity разрешает город и индекс для страны iso2.
// countryName — каноническое имя страны для записи в кэш.
// Стратегии по порядку, выигрывает первая успешная:
// синонимы -> кэш -> прямой запрос -> fuzzy-кандидаты -> столица -> эхо входа.
// Эхо-fallback всегда успешен: одна неразрешимая строка не блокирует прогон.
// Ошибкой завершаются только ErrUnknownCountry и сетевые/фатальные сбои.
func (e *Engine) ResolveCity(ctx context.Context, iso2, countryName, rawCity string) (*Result, error) {
	seed := ApplyCitySynonyms(iso2, strings.TrimSpace(e.tn.UpperASCII(rawCity)))

	key := database.CacheKey{ISO2: iso2, CitySeed: seed}
	if entry, ok := e.cache[key]; ok {
		return &Result{
			Postal:      entry.Postal,
			City:        entry.City,
			Distance:    entry.Distance,
			UsedCity:    seed,
			Source:      SourceCacheHit,
			NeedsReview: e.opts.DistanceExceeded(entry.Distance),
		}, nil
	}

	result, err := e.resolveViaProvider(ctx, iso2, seed)
	if err != nil {
		return nil, err
	}

	if result.Attempt != AttemptFallback {
		e.learn(key, countryName, result)
	}
	return result, nil
}

// resolveViaProvider перебирает сетевые стратегии и эхо-fallback
func (e *Engine) resolveViaProvider(ctx context.Context, iso2, seed string) (*Result, error) {
	if len(strings.TrimSpace(seed)) >= 3 {
		result, err := e.query(ctx, iso2, seed, AttemptSynonymOrInput)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}

	pool := e.index.Cities(iso2)
	for _, cand := range e.fuzzy.TopCandidates(seed, pool, e.opts.FuzzyCutoff, e.opts.FuzzyTopN) {
		result, err := e.query(ctx, iso2, cand, AttemptFuzzy)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}

	if e.opts.FallbackToCapital() {
		if capital, ok := CapitalFor(iso2); ok && len(strings.TrimSpace(capital)) >= 3 {
			result, err := e.query(ctx, iso2, capital, AttemptCapital)
			if err != nil {
				return nil, err
			}
			if result != nil {
				return result, nil
			}
		}
	}

	// эхо входа: пустой индекс, но строка обработана
	return &Result{
		Postal:   "",
		City:     seed,
		Distance: "",
		Attempt:  AttemptFallback,
		UsedCity: seed,
		Source:   SourceAPIMiss,
	}, nil
}

// query один запрос к провайдеру; nil-результат без ошибки значит
// «пригодной локации нет, пробуем следующую стратегию»
func (e *Engine) query(ctx context.Context, iso2, city, attempt string) (*Result, error) {
	loc, err := e.finder.FindByAddress(ctx, LocationQuery{
		CountryCode:     iso2,
		AddressLocality: city,
		ProviderType:    e.opts.ProviderType,
		ServiceType:     e.opts.ServiceType,
		Limit:           e.opts.LimitResults,
	})
	if err != nil {
		return nil, err
	}
	if !loc.Found {
		return nil, nil
	}

	return &Result{
		Postal:       loc.Postal,
		City:         e.tn.UpperASCII(loc.City),
		Distance:     loc.Distance,
		Attempt:      attempt,
		UsedCity:     e.tn.UpperASCII(city),
		ServiceTypes: loc.ServiceTypes,
		Source:       SourceAPIMiss,
		NeedsReview:  e.opts.DistanceExceeded(loc.Distance),
	}, nil
}

// learn записывает успешный сетевой результат в кэш и индекс городов.
// Единственная мутация разделяемого состояния движка; только добавление
// и перезапись, удалений нет. Последующие строки того же прогона уже
// видят запись.
func (e *Engine) learn(key database.CacheKey, countryName string, r *Result) {
	e.cache[key] = database.CacheEntry{
		Postal:      r.Postal,
		City:        r.City,
		CountryName: e.tn.UpperASCII(countryName),
		Distance:    r.Distance,
	}
	e.index.Add(key.ISO2, r.City)
}

// Flush сохраняет кэш и индекс в durable-хранилище.
// Безопасен для повторного вызова.
func (e *Engine) Flush() error {
	if err := e.store.SaveCache(e.cache); err != nil {
		return err
	}
	if err := e.store.SaveCityIndex(e.index); err != nil {
		return err
	}
	log.Printf("Гео-кэш сохранен: %d записей, стран в индексе: %d", len(e.cache), len(e.index))
	return nil
}
