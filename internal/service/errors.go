package service

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation входные данные некорректны
	ErrValidation = errors.New("validation error")
	// ErrState операция недопустима в текущем состоянии
	ErrState = errors.New("invalid state")
	// ErrNotFound сущность не найдена
	ErrNotFound = errors.New("not found")
	// ErrStore ошибка хранилища
	ErrStore = errors.New("store error")
)

func isServiceError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrState) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrStore)
}

// withinTx выполняет fn в транзакции; сбои begin/commit становятся ErrStore
func withinTx(ctx context.Context, tx TxManager, fn func(ctx context.Context) error) error {
	err := tx.WithinTx(ctx, fn)
	if err == nil || isServiceError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStore, err)
}
