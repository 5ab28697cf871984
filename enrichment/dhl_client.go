package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL базовый адрес DHL Location Finder API
const DefaultBaseURL = "https://api.dhl.com/location-finder/v1"

// ErrUnknownCountry терминальный ответ провайдера "Unknown Country":
// не ретраится, не фатален — вызывающий помечает строку и продолжает
var ErrUnknownCountry = errors.New("провайдер не знает такую страну")

// transientStatuses HTTP-статусы, подлежащие ретраю с бэкоффом
var transientStatuses = map[int]struct{}{
	http.StatusTooManyRequests:    {},
	http.StatusBadGateway:         {},
	http.StatusServiceUnavailable: {},
	http.StatusGatewayTimeout:     {},
}

// LocationQuery параметры запроса find-by-address
type LocationQuery struct {
	CountryCode     string
	AddressLocality string
	ProviderType    string
	ServiceType     string
	Limit           int
}

// LocationResult лучшая (ближайшая) локация из ответа провайдера.
// Found=false означает корректный ответ без пригодных локаций.
type LocationResult struct {
	Found        bool
	Postal       string
	City         string
	Distance     string
	Name         string
	ServiceTypes string
}

// LocationFinder абстракция внешнего гео-провайдера
type LocationFinder interface {
	FindByAddress(ctx context.Context, q LocationQuery) (*LocationResult, error)
}

// ClientConfig конфигурация клиента DHL
type ClientConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RequestDelay time.Duration // фиксированная межзапросная пауза
	MaxRetries   int
}

// Client HTTP-клиент DHL Location Finder с ретраями и rate-limit
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// NewClient создает новый клиент DHL Location Finder
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RequestDelay == 0 {
		config.RequestDelay = 200 * time.Millisecond
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 5
	}

	return &Client{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter:    rate.NewLimiter(rate.Every(config.RequestDelay), 1),
		maxRetries: config.MaxRetries,
	}
}

// locationsResponse ответ find-by-address
type locationsResponse struct {
	Locations []locationPayload `json:"locations"`
}

type locationPayload struct {
	Name         string           `json:"name"`
	Distance     *float64         `json:"distance"`
	ServiceTypes []string         `json:"serviceTypes"`
	Place        locationPlace    `json:"place"`
}

type locationPlace struct {
	Address locationAddress `json:"address"`
}

type locationAddress struct {
	PostalCode      string `json:"postalCode"`
	AddressLocality string `json:"addressLocality"`
}

// FindByAddress выполняет запрос find-by-address и возвращает ближайшую локацию.
// Транзиентные статусы (429, 502, 503, 504) и сетевые таймауты ретраятся с
// экспоненциальным бэкоффом (0.5с, множитель 1.6, потолок 10с) до maxRetries;
// "Unknown Country" возвращается как ErrUnknownCountry без ретраев;
// прочие неуспешные статусы — ошибка вызова.
func (c *Client) FindByAddress(ctx context.Context, q LocationQuery) (*LocationResult, error) {
	reqURL, err := c.buildURL(q)
	if err != nil {
		return nil, err
	}

	backoff := 500 * time.Millisecond
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, status, err := c.doRequest(ctx, reqURL)
		if err != nil {
			// сетевые ошибки и таймауты считаются транзиентными
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if sleepErr := sleepCtx(ctx, capBackoff(backoff)); sleepErr != nil {
				return nil, sleepErr
			}
			backoff = nextBackoff(backoff)
			continue
		}

		switch {
		case status == http.StatusOK:
			return parseBestLocation(body)
		case status == http.StatusBadRequest && strings.Contains(string(body), "Unknown Country"):
			return nil, ErrUnknownCountry
		default:
			if _, transient := transientStatuses[status]; transient {
				if sleepErr := sleepCtx(ctx, capBackoff(backoff)); sleepErr != nil {
					return nil, sleepErr
				}
				backoff = nextBackoff(backoff)
				continue
			}
			return nil, fmt.Errorf("DHL API вернул статус %d: %s", status, string(body))
		}
	}

	return nil, fmt.Errorf("исчерпан лимит попыток DHL API (%d)", c.maxRetries)
}

// buildURL собирает URL запроса find-by-address
func (c *Client) buildURL(q LocationQuery) (string, error) {
	u, err := url.Parse(c.baseURL + "/find-by-address")
	if err != nil {
		return "", fmt.Errorf("некорректный базовый URL DHL: %w", err)
	}

	params := url.Values{}
	params.Set("countryCode", q.CountryCode)
	params.Set("addressLocality", q.AddressLocality)
	if q.ProviderType != "" {
		params.Set("providerType", q.ProviderType)
	}
	if q.ServiceType != "" {
		params.Set("serviceType", q.ServiceType)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// doRequest выполняет один HTTP-вызов и читает тело ответа
func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("не удалось создать запрос: %w", err)
	}
	req.Header.Set("DHL-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// parseBestLocation выбирает локацию с минимальной дистанцией
func parseBestLocation(body []byte) (*LocationResult, error) {
	var payload locationsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("не удалось разобрать ответ DHL: %w", err)
	}
	if len(payload.Locations) == 0 {
		return &LocationResult{Found: false}, nil
	}

	best := payload.Locations[0]
	for _, loc := range payload.Locations[1:] {
		if locDistance(loc) < locDistance(best) {
			best = loc
		}
	}

	services := append([]string(nil), best.ServiceTypes...)
	sort.Strings(services)

	distance := ""
	if best.Distance != nil {
		distance = strconv.FormatFloat(*best.Distance, 'f', -1, 64)
	}

	return &LocationResult{
		Found:        best.Place.Address.AddressLocality != "",
		Postal:       best.Place.Address.PostalCode,
		City:         best.Place.Address.AddressLocality,
		Distance:     distance,
		Name:         best.Name,
		ServiceTypes: strings.Join(services, ","),
	}, nil
}

func locDistance(l locationPayload) float64 {
	if l.Distance == nil {
		return 1e18
	}
	return *l.Distance
}

func nextBackoff(d time.Duration) time.Duration {
	return time.Duration(float64(d) * 1.6)
}

func capBackoff(d time.Duration) time.Duration {
	const max = 10 * time.Second
	if d > max {
		return max
	}
	return d
}

// sleepCtx пауза с учетом отмены контекста
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
