package otp

// Файл decision.go — таблица решений политики обработки кода входа.
// Решение вычисляется по снимку состояния аккаунта и живых оверрайдов;
// порядок приоритетов фиксирован и проверяется сверху вниз:
//
//	temp passthrough > пауза destroyer > destroyer > forward > ignore.
//
// Функция Decide чистая: никакого ввода-вывода, только снимок -> действие.
// Это позволяет протестировать всю таблицу без Telegram и хранилища.

// Action — выбранное действие над сообщением с кодом входа.
type Action int

const (
	// ActionIgnore — не трогать сообщение, только отметить в журнале.
	ActionIgnore Action = iota
	// ActionTempForward — переслать владельцу по живому temp passthrough.
	ActionTempForward
	// ActionPausedForward — переслать владельцу, пока destroyer на паузе.
	ActionPausedForward
	// ActionDestroy — инвалидировать код и удалить сообщение.
	ActionDestroy
	// ActionForward — переслать владельцу по статическому флагу forward.
	ActionForward
)

// String возвращает имя действия для логов.
func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionTempForward:
		return "temp_forward"
	case ActionPausedForward:
		return "paused_forward"
	case ActionDestroy:
		return "destroy"
	case ActionForward:
		return "forward"
	default:
		return "unknown"
	}
}

// PolicyView — снимок политики аккаунта на момент прихода события.
// Статические флаги берутся из записи хранилища, временные — из стора
// оверрайдов (уже с учётом истечения TTL).
type PolicyView struct {
	DestroyerEnabled bool
	ForwardEnabled   bool
	TempPassthrough  bool
	DestroyerPaused  bool
}

// Decide возвращает действие для данного снимка политики.
func Decide(p PolicyView) Action {
	if p.TempPassthrough {
		return ActionTempForward
	}
	if p.DestroyerEnabled && p.DestroyerPaused {
		return ActionPausedForward
	}
	if p.DestroyerEnabled {
		return ActionDestroy
	}
	if p.ForwardEnabled {
		return ActionForward
	}
	return ActionIgnore
}
