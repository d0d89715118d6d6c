package service

import (
	"context"
	"errors"

	"storefront/internal/apperr"
	"storefront/internal/domain"
	"storefront/internal/repository"
)

// PointsService переводы бонусных баллов между пользователями
type PointsService struct {
	users     repository.UserRepository
	transfers repository.TransferRepository
	tx        repository.TxManager
}

func NewPointsService(users repository.UserRepository, transfers repository.TransferRepository, tx repository.TxManager) *PointsService {
	return &PointsService{users: users, transfers: transfers, tx: tx}
}

// Transfer списывает amount у отправителя (только если хватает баллов),
// зачисляет получателю и пишет запись в журнал. Всё в одной транзакции.
func (s *PointsService) Transfer(ctx context.Context, actor domain.Actor, receiverID, amount int64) (*domain.Transfer, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated("login required")
	}
	if amount <= 0 {
		return nil, apperr.InvalidRequest("number of points must be more than 0")
	}
	if receiverID <= 0 {
		return nil, apperr.InvalidRequest("receiverId is required")
	}
	if receiverID == actor.ID {
		return nil, apperr.InvalidRequest("cannot transfer points to the same user")
	}

	var created *domain.Transfer
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.users.GetByID(ctx, actor.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("sender not found")
			}
			return err
		}
		if _, err := s.users.GetByID(ctx, receiverID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("receiver not found")
			}
			return err
		}

		// строки пользователей блокируются по возрастанию id,
		// встречные переводы A->B и B->A не взаимоблокируются
		debit := func() error {
			ok, err := s.users.DeductPoints(ctx, actor.ID, amount)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.InsufficientBalance("sender's points are not enough to make a transfer")
			}
			return nil
		}
		credit := func() error {
			ok, err := s.users.AddPoints(ctx, receiverID, amount)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.NotFound("receiver not found")
			}
			return nil
		}
		steps := []func() error{debit, credit}
		if receiverID < actor.ID {
			steps = []func() error{credit, debit}
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}

		t := domain.Transfer{FromUserID: actor.ID, ToUserID: receiverID, Amount: amount}
		if err := s.transfers.Create(ctx, &t); err != nil {
			return err
		}
		created = &t
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err, "transfer points")
	}
	return created, nil
}

// TransferPage страница журнала переводов
type TransferPage struct {
	Items  []domain.Transfer
	Total  int64
	Limit  int
	Offset int
}

// History отправленные и полученные переводы, новые первыми
func (s *PointsService) History(ctx context.Context, actor domain.Actor, limit, offset *int) (*TransferPage, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated("login required")
	}
	l, o := clampPage(limit, offset)
	items, total, err := s.transfers.ListByUser(ctx, actor.ID, l, o)
	if err != nil {
		return nil, apperr.Wrap(err, "list transfers")
	}
	return &TransferPage{Items: items, Total: total, Limit: l, Offset: o}, nil
}
