package flow

// PendingDelete — переиспользуемый держатель «двухфазного удаления»:
// mark target → открыть модалку → confirm. Один и тот же механизм для уровней
// и групп, вместо пары boolean/id на каждую сущность.
//
// Потокобезопасность обеспечивает владелец (flow держит свой мьютекс).
type PendingDelete[T comparable] struct {
	target T
	armed  bool
}

// Request помечает цель на удаление и «открывает» подтверждение.
// Сетевого вызова на этой фазе НЕ происходит.
func (p *PendingDelete[T]) Request(target T) {
	p.target = target
	p.armed = true
}

// Confirm снимает пометку и возвращает цель. ok=false, если подтверждать нечего.
func (p *PendingDelete[T]) Confirm() (T, bool) {
	if !p.armed {
		var zero T
		return zero, false
	}
	t := p.target
	p.reset()
	return t, true
}

// Cancel закрывает подтверждение без каких-либо действий.
func (p *PendingDelete[T]) Cancel() {
	p.reset()
}

// Armed сообщает, открыт ли диалог подтверждения.
func (p *PendingDelete[T]) Armed() bool { return p.armed }

// Target возвращает помеченную цель (для рендера модалки).
func (p *PendingDelete[T]) Target() (T, bool) {
	return p.target, p.armed
}

func (p *PendingDelete[T]) reset() {
	var zero T
	p.target = zero
	p.armed = false
}
