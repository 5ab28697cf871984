package enrichment

import (
	"strconv"
	"time"
)

// ResultSource источник результата разрешения города
type ResultSource string

const (
	SourceCacheHit ResultSource = "cacheHit" // из локального кэша, без сети
	SourceAPIMiss  ResultSource = "apiMiss"  // получен от провайдера
)

// Метки попыток разрешения (в порядке стратегий движка)
const (
	AttemptSynonymOrInput = "synonym_or_input" // прямой запрос по входу/синониму
	AttemptFuzzy          = "fuzzy"            // запрос по fuzzy-кандидату из индекса
	AttemptCapital        = "capital"          // запрос по столице страны
	AttemptFallback       = "fallback"         // эхо входа, индекс не найден
)

// Result результат одного разрешения города
type Result struct {
	Postal       string       // почтовый индекс (может быть пустым)
	City         string       // разрешенное имя города (UPPERCASE)
	Distance     string       // дистанция в метрах, сырой вид провайдера
	Attempt      string       // метка сработавшей стратегии
	UsedCity     string       // строка города, по которой был запрос
	ServiceTypes string       // сервисы точки, через запятую
	Source       ResultSource // кэш или сеть
	NeedsReview  bool         // дистанция превысила допустимый порог
}

// Options опции движка обогащения. Нулевые значения заменяются дефолтами
// ApplyDefaults; явный false для Strict/Fallback задается через Disable-флаги.
type Options struct {
	ProviderType        string        // тип провайдера DHL (express)
	ServiceType         string        // фильтр по типу сервиса
	LimitResults        int           // максимум локаций в ответе
	MaxAcceptedDistanceM int          // порог дистанции для флага needs_review
	RequestDelay        time.Duration // фиксированная пауза между запросами
	MaxRetries          int           // потолок ретраев транзиентных ошибок
	FuzzyCutoff         float64       // минимальная схожесть fuzzy-кандидата
	FuzzyTopN           int           // сколько кандидатов пробовать
	DisableStrictCity   bool          // не заменять город ответом провайдера
	DisableCapital      bool          // не откатываться на столицу
	OnlyEmpty           bool          // заполнять только пустые ячейки выхода
}

// ApplyDefaults подставляет значения по умолчанию
func (o *Options) ApplyDefaults() {
	if o.ProviderType == "" {
		o.ProviderType = "express"
	}
	if o.LimitResults == 0 {
		o.LimitResults = 15
	}
	if o.MaxAcceptedDistanceM == 0 {
		o.MaxAcceptedDistanceM = 25000
	}
	if o.RequestDelay == 0 {
		o.RequestDelay = 200 * time.Millisecond
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 5
	}
	if o.FuzzyCutoff == 0 {
		o.FuzzyCutoff = 0.85
	}
	if o.FuzzyTopN == 0 {
		o.FuzzyTopN = 3
	}
}

// StrictCityFromProvider заменять ли город значением из ответа провайдера
func (o *Options) StrictCityFromProvider() bool {
	return !o.DisableStrictCity
}

// FallbackToCapital пробовать ли столицу, когда остальные стратегии не сработали
func (o *Options) FallbackToCapital() bool {
	return !o.DisableCapital
}

// DistanceExceeded true, если дистанция задана и превышает допустимый порог
func (o *Options) DistanceExceeded(distance string) bool {
	if distance == "" {
		return false
	}
	d, err := strconv.ParseFloat(distance, 64)
	if err != nil {
		return false
	}
	return d > float64(o.MaxAcceptedDistanceM)
}
