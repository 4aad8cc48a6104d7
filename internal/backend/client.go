package backend

/*
Файл client.go — типизированный REST-клиент бэкенда платформы.

Бэкенд — внешний коллаборатор: вся персистентность, серверная валидация и сам
движок согласований живут там. Консоль общается с ним только через операции
этого клиента. Токен доступа, скоупированный на учреждение, прикладывается
к каждому запросу здесь (внешний request layer из описания платформы).

Надежность: rate limiter + circuit breaker на все вызовы, ретраи — ТОЛЬКО для
идемпотентных чтений. Мутации, инициированные пользователем, не ретраятся:
отказ репортится один раз, форма остается заполненной.
*/

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/taskflow-approval-console/internal/domain"
	"github.com/xela07ax/taskflow-approval-console/internal/infra"
	"github.com/xela07ax/taskflow-approval-console/internal/metrics"
)

type Client struct {
	httpc   *http.Client
	baseURL string
	token   string
	logger  *zap.Logger
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
}

func NewClient(cfg infra.BackendConfig, logger *zap.Logger, m *metrics.Metrics) *Client {
	// Настройка предохранителя: после серии отказов бэкенда перестаем
	// долбить его и сразу отдаем ошибку UI
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "platform-backend",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			state := 0.0
			if to == gobreaker.StateOpen {
				state = 1.0
			}
			m.BreakerState.WithLabelValues("platform-backend").Set(state)
		},
	})

	return &Client{
		httpc:   &http.Client{Timeout: cfg.RequestTimeout},
		baseURL: cfg.BaseURL,
		token:   cfg.AccessToken,
		logger:  logger.Named("backend-client"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		cb:      cb,
		metrics: m,
	}
}

// --- Справочники (read-only) ---

func (c *Client) ListActions(ctx context.Context) ([]domain.Action, error) {
	raw, err := c.get(ctx, "list_actions", "/api/approvals/actions/", nil)
	if err != nil {
		return nil, err
	}
	// Может прийти массив или {results: [...]} — нормализуем
	return decodeList[domain.Action](raw)
}

func (c *Client) ListApprovableModels(ctx context.Context) ([]domain.ApprovableModel, error) {
	raw, err := c.get(ctx, "list_models", "/api/approvals/approvable-models/", nil)
	if err != nil {
		return nil, err
	}
	return decodeList[domain.ApprovableModel](raw)
}

func (c *Client) ListRoles(ctx context.Context, institutionID int64) ([]domain.Role, error) {
	q := url.Values{"institution": {strconv.FormatInt(institutionID, 10)}}
	raw, err := c.get(ctx, "list_roles", "/api/roles/", q)
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Role](raw)
}

func (c *Client) ListUserProfiles(ctx context.Context, page int) (*Page[domain.UserProfile], error) {
	q := url.Values{}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	raw, err := c.get(ctx, "list_users", "/api/user-profiles/", q)
	if err != nil {
		return nil, err
	}
	return decodePage[domain.UserProfile](raw)
}

// --- ApprovalDocument ---

func (c *Client) GetDocument(ctx context.Context, id int64) (*domain.ApprovalDocument, error) {
	raw, err := c.get(ctx, "get_document", fmt.Sprintf("/api/approvals/documents/%d/", id), nil)
	if err != nil {
		return nil, err
	}
	var doc domain.ApprovalDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("backend: decode document: %w", err)
	}
	if doc.Levels == nil {
		doc.Levels = make([]domain.ApprovalDocumentLevel, 0)
	}
	return &doc, nil
}

func (c *Client) CreateDocument(ctx context.Context, in domain.DocumentInput) (*domain.ApprovalDocument, error) {
	var doc domain.ApprovalDocument
	if err := c.mutate(ctx, "create_document", http.MethodPost, "/api/approvals/documents/", in, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateDocument — частичное обновление верхнего уровня (description, actions).
// Уровни им не затрагиваются.
func (c *Client) UpdateDocument(ctx context.Context, id int64, in domain.DocumentInput) (*domain.ApprovalDocument, error) {
	var doc domain.ApprovalDocument
	path := fmt.Sprintf("/api/approvals/documents/%d/", id)
	body := map[string]any{
		"description": in.Description,
		"actions":     in.ActionIDs,
	}
	if err := c.mutate(ctx, "update_document", http.MethodPatch, path, body, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// --- ApprovalDocumentLevel ---

func (c *Client) CreateLevel(ctx context.Context, documentID int64, in domain.LevelInput) (*domain.ApprovalDocumentLevel, error) {
	body := map[string]any{
		"name":              in.Name,
		"description":       in.Description,
		"approvers":         in.ApproverGroupIDs,
		"overriders":        in.OverriderGroupIDs,
		"approval_document": documentID,
	}
	var lvl domain.ApprovalDocumentLevel
	if err := c.mutate(ctx, "create_level", http.MethodPost, "/api/approvals/levels/", body, &lvl); err != nil {
		return nil, err
	}
	return &lvl, nil
}

func (c *Client) UpdateLevel(ctx context.Context, levelID int64, in domain.LevelInput) (*domain.ApprovalDocumentLevel, error) {
	path := fmt.Sprintf("/api/approvals/levels/%d/", levelID)
	var lvl domain.ApprovalDocumentLevel
	if err := c.mutate(ctx, "update_level", http.MethodPut, path, in, &lvl); err != nil {
		return nil, err
	}
	return &lvl, nil
}

func (c *Client) DeleteLevel(ctx context.Context, levelID int64) error {
	path := fmt.Sprintf("/api/approvals/levels/%d/", levelID)
	return c.mutate(ctx, "delete_level", http.MethodDelete, path, nil, nil)
}

// --- ApproverGroup ---

func (c *Client) ListGroups(ctx context.Context, institutionID int64, search string, page int) (*Page[domain.ApproverGroup], error) {
	q := url.Values{"institution": {strconv.FormatInt(institutionID, 10)}}
	if search != "" {
		q.Set("search", search)
	}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	raw, err := c.get(ctx, "list_groups", "/api/approvals/approver-groups/", q)
	if err != nil {
		return nil, err
	}
	return decodePage[domain.ApproverGroup](raw)
}

func (c *Client) CreateGroup(ctx context.Context, in domain.GroupInput) (*domain.ApproverGroup, error) {
	var g domain.ApproverGroup
	if err := c.mutate(ctx, "create_group", http.MethodPost, "/api/approvals/approver-groups/", in, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) UpdateGroup(ctx context.Context, id int64, in domain.GroupInput) (*domain.ApproverGroup, error) {
	path := fmt.Sprintf("/api/approvals/approver-groups/%d/", id)
	var g domain.ApproverGroup
	if err := c.mutate(ctx, "update_group", http.MethodPut, path, in, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) DeleteGroup(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/api/approvals/approver-groups/%d/", id)
	return c.mutate(ctx, "delete_group", http.MethodDelete, path, nil, nil)
}

// --- Транспорт ---

// get выполняет идемпотентное чтение с ретраями.
func (c *Client) get(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	var raw []byte

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
		// Умный расчет задержки: честный Retry-After для троттлинга,
		// экспоненциальный бэкофф для всего остального
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			var tErr *ThrottleError
			if errors.As(err, &tErr) {
				return tErr.RetryAfter
			}
			return retry.BackOffDelay(n, err, config)
		}),
	)

	err := r.Do(func() error {
		var callErr error
		raw, callErr = c.do(ctx, op, http.MethodGet, path, query, nil)
		// 4xx (кроме 429) ретраить бессмысленно
		var apiErr *APIError
		if errors.As(callErr, &apiErr) && apiErr.StatusCode < 500 {
			return retry.Unrecoverable(callErr)
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// mutate выполняет мутацию БЕЗ ретраев (one toast, no auto-retry).
func (c *Client) mutate(ctx context.Context, op, method, path string, body, out any) error {
	raw, err := c.do(ctx, op, method, path, nil, body)
	if err != nil {
		return err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("backend: decode %s response: %w", op, err)
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any) ([]byte, error) {
	// 1. Rate Limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("backend: rate limit wait: %w", err)
	}

	start := time.Now()
	status := "error"
	defer func() {
		c.metrics.BackendCallDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	}()

	// 2. Circuit Breaker
	result, err := c.cb.Execute(func() (interface{}, error) {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		var rdr io.Reader
		if body != nil {
			payload, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("backend: encode %s: %w", op, err)
			}
			rdr = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, rdr)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if traceID := infra.TraceIDFromContext(ctx); traceID != "" {
			req.Header.Set("X-Trace-ID", traceID)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("backend: %s request failed: %w", op, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("backend: read %s response: %w", op, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &ThrottleError{
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				Cause:      &APIError{StatusCode: resp.StatusCode, Op: op},
			}
		}

		if resp.StatusCode >= 400 {
			c.logger.Warn("backend call rejected",
				zap.String("op", op),
				zap.Int("status", resp.StatusCode))
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Detail:     extractDetail(raw),
				Op:         op,
			}
		}

		return raw, nil
	})
	if err != nil {
		return nil, err
	}

	status = "ok"
	return result.([]byte), nil
}

// extractDetail вытаскивает серверное пояснение из тела ошибки.
// DRF-подобный бэкенд кладет его в {"detail": "..."}.
func extractDetail(raw []byte) string {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	// Фолбэк: отдаем усеченное сырое тело, чтобы не потерять контекст
	const maxDetail = 256
	s := string(raw)
	if len(s) > maxDetail {
		s = s[:maxDetail]
	}
	return s
}

func parseRetryAfter(h string) time.Duration {
	if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 2 * time.Second // дефолтная пауза, если заголовка нет
}

func decodePage[T any](raw []byte) (*Page[T], error) {
	var p Page[T]
	if err := json.Unmarshal(raw, &p); err != nil || p.Results == nil {
		// Часть эндпоинтов отдает голый массив даже там, где ждем страницу
		items, listErr := decodeList[T](raw)
		if listErr != nil {
			return nil, fmt.Errorf("backend: unexpected page payload: %w", listErr)
		}
		return &Page[T]{Count: int64(len(items)), Results: items}, nil
	}
	return &p, nil
}
