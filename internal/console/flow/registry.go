package flow

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/taskflow-approval-console/internal/infra"
)

// Registry держит живые сессии редактирования между HTTP-запросами.
// Каждая сессия привязана к одному документу или одной странице групп;
// состояние (флаги сохранения, pending delete, черновик формы) живет здесь,
// а не у клиента. Протухшие сессии выметает janitor.
type Registry struct {
	cfg    infra.FlowConfig
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]*registryEntry

	stop chan struct{}
	wg   sync.WaitGroup
}

type registryEntry struct {
	docFlow  *DocumentFlow
	groupMgr *GroupManager
	touched  time.Time
}

func NewRegistry(cfg infra.FlowConfig, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:     cfg,
		logger:  logger.Named("flow-registry"),
		entries: make(map[string]*registryEntry),
		stop:    make(chan struct{}),
	}
}

// Start запускает фоновую очистку протухших сессий.
func (r *Registry) Start() {
	r.wg.Add(1)
	go r.janitor()
}

// Stop останавливает janitor; активные сессии просто забываются.
func (r *Registry) Stop() {
	close(r.stop)
	r.wg.Wait()
}

// PutDocumentFlow регистрирует новую сессию документа и выдает её ключ.
func (r *Registry) PutDocumentFlow(f *DocumentFlow) string {
	key := uuid.New().String()
	r.mu.Lock()
	r.entries[key] = &registryEntry{docFlow: f, touched: time.Now()}
	r.mu.Unlock()
	return key
}

// PutGroupManager регистрирует сессию страницы групп и выдает её ключ.
func (r *Registry) PutGroupManager(m *GroupManager) string {
	key := uuid.New().String()
	r.mu.Lock()
	r.entries[key] = &registryEntry{groupMgr: m, touched: time.Now()}
	r.mu.Unlock()
	return key
}

// DocumentFlow возвращает сессию документа по ключу, продлевая её TTL.
func (r *Registry) DocumentFlow(key string) (*DocumentFlow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok || e.docFlow == nil {
		return nil, ErrFlowNotFound
	}
	e.touched = time.Now()
	return e.docFlow, nil
}

// GroupManager возвращает сессию групп по ключу, продлевая её TTL.
func (r *Registry) GroupManager(key string) (*GroupManager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok || e.groupMgr == nil {
		return nil, ErrFlowNotFound
	}
	e.touched = time.Now()
	return e.groupMgr, nil
}

// Drop явно закрывает сессию (уход со страницы).
func (r *Registry) Drop(key string) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// Len — количество живых сессий (для дашборда).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) janitor() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep(time.Now())
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, e := range r.entries {
		if now.Sub(e.touched) > r.cfg.SessionTTL {
			delete(r.entries, key)
			r.logger.Debug("expired editing session evicted", zap.String("session_key", key))
		}
	}
}

// Touch продлевает сессию без обращения к её содержимому (heartbeat).
func (r *Registry) Touch(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return false
	}
	e.touched = time.Now()
	return true
}
