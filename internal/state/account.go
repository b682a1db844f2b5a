package state

import (
	"github.com/google/uuid"
)

// AccountManager is the registry of trading accounts. An account must exist
// before it can hold collateral or commit orders.
type AccountManager struct {
	accounts map[uuid.UUID]struct{}
}

func NewAccountManager() *AccountManager {
	return &AccountManager{accounts: make(map[uuid.UUID]struct{})}
}

func (am *AccountManager) Create(id uuid.UUID) error {
	if _, ok := am.accounts[id]; ok {
		return &AccountExistsError{AccountID: id}
	}
	am.accounts[id] = struct{}{}
	return nil
}

func (am *AccountManager) Require(id uuid.UUID) error {
	if _, ok := am.accounts[id]; !ok {
		return &AccountNotFoundError{AccountID: id}
	}
	return nil
}

func (am *AccountManager) Count() int {
	return len(am.accounts)
}
