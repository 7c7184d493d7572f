package rewards

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNotEnoughPoints   = errors.New("not enough points")
	ErrAlreadyAnswered   = errors.New("survey is already answered")
	ErrAlreadyReferred   = errors.New("user is already referred")
	ErrSurveyClosed      = errors.New("survey is closed")
	ErrFinalStatus       = errors.New("status is final")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmailTaken        = errors.New("email is already registered")
	ErrInvalidLogin      = errors.New("email or password is not correct")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrAlreadyExists     = errors.New("already exists")
	ErrSelfUpdate        = errors.New("cannot update yourself")
)

// Недостаточно бутылок - в сообщении указываем доступное количество
type NotEnoughBottlesError struct {
	Available int64
}

func (e *NotEnoughBottlesError) Error() string {
	return fmt.Sprintf("not enough bottles (available: %d)", e.Available)
}

// Сумма обмена меньше минимальной для выбранного направления
type MinAmountError struct {
	Min int64
}

func (e *MinAmountError) Error() string {
	return fmt.Sprintf("minimum exchange amount is %d", e.Min)
}
