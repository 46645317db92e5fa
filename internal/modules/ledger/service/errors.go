package service

import "errors"

// Типизированные ошибки капитала. Вызывающий код матчит их через errors.Is.
var (
	// ErrInsufficientFunds: запросили больше, чем свободно на соответствующем уровне.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAllocationNotFound: нет строки аллокации под ключ. Для торговли это "нельзя", а не "ноль".
	ErrAllocationNotFound = errors.New("allocation not found")
	// ErrRiskBreached: липкий флаг риска стоит, операции наращивания капитала запрещены до сброса.
	ErrRiskBreached = errors.New("risk breached")
)
