package audit

/*
Файл trail.go реализует журнал изменений конфигурации (Config Audit Trail).

Ключевые особенности архитектуры:
- Non-blocking Logging: события уходят в неблокирующий канал, чтобы задержки
  записи в БД не влияли на время ответа консоли.
- Batching & Efficiency: накопление событий в памяти и пакетная запись
  (Bulk Insert) в PostgreSQL по таймеру или при достижении лимита.
- Drain Pattern & Graceful Shutdown: при остановке сервиса буфер вычитывается
  полностью (Final Flush) — потерь записей при перезагрузке нет.
- Reliability: воркер изолирован от основного потока; завершающие операции
  идут с Background-контекстом.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться записи
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

// BufferGauge принимает текущую заполненность буфера (prometheus.Gauge
// подходит как есть; пакет не тянет зависимость на клиент Prometheus).
type BufferGauge interface {
	Set(float64)
}

type Recorder interface {
	Log(event Event)
}

type Trail struct {
	ch        chan Event       // Буфер для асинхронности
	repo      StorageInterface // Интерфейс для Postgres
	logger    *zap.Logger
	gauge     BufferGauge // может быть nil
	wg        sync.WaitGroup
	batchSize int
	interval  time.Duration
	// Защита от вызова Log после остановки
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	// BufferGauge отражает len(буфера) наружу (мониторинг backpressure)
	BufferGauge BufferGauge
}

func NewTrail(repo StorageInterface, logger *zap.Logger, opts Options) *Trail {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	return &Trail{
		ch:        make(chan Event, opts.BufferSize),
		repo:      repo,
		logger:    logger.With(zap.String("mod", "audit-trail")),
		gauge:     opts.BufferGauge,
		batchSize: opts.BatchSize,
		interval:  opts.FlushInterval,
	}
}

func (t *Trail) reportFill() {
	if t.gauge != nil {
		t.gauge.Set(float64(len(t.ch)))
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&t.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Drain Pattern: завершение горутины происходит исключительно
	// через закрытие входного канала.
	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

func (t *Trail) Log(event Event) {
	// Убеждаемся, что таймстемп всегда проставлен
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Атомарно проверяем, не закрыт ли канал
	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	// Стратегия Load Shedding: переполненный буфер не должен блокировать запрос
	select {
	case t.ch <- event:
		t.reportFill()
	default:
		// Backpressure: фиксируем факт потери в обычный лог
		t.logger.Error("audit_buffer_overflow",
			zap.String("operator_id", event.OperatorID),
			zap.String("trace_id", event.TraceID),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Event, 0, t.batchSize)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст к этому моменту может быть закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): воркер сначала вычитал остатки,
				// теперь финальный сброс и выход
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			t.reportFill()
			if len(batch) >= t.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
			t.reportFill()
		}
	}
}
