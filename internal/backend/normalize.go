package backend

import (
	"encoding/json"
	"fmt"
)

// Page — страница серверной пагинации в стиле DRF.
type Page[T any] struct {
	Count    int64  `json:"count"`
	Next     string `json:"next"`
	Previous string `json:"previous"`
	Results  []T    `json:"results"`
}

// decodeList нормализует два формата ответов списков: бэкенд для части
// справочников отдает голый массив, для части — обертку {"results": [...]}.
// Вызывающий код всегда получает слайс (пустой, не nil).
func decodeList[T any](data []byte) ([]T, error) {
	var items []T
	if err := json.Unmarshal(data, &items); err == nil {
		if items == nil {
			items = make([]T, 0)
		}
		return items, nil
	}

	var wrapped struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("backend: unexpected list payload: %w", err)
	}
	if wrapped.Results == nil {
		wrapped.Results = make([]T, 0)
	}
	return wrapped.Results, nil
}
