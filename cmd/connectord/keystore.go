package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/status-im/connector-txqueue/transactions"
)

// keyStoreSigners signs with the accounts of an encrypted keystore directory.
type keyStoreSigners struct {
	ks         *keystore.KeyStore
	passphrase string
}

func newKeyStoreSigners(dir, passphrase string) *keyStoreSigners {
	return &keyStoreSigners{
		ks:         keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP),
		passphrase: passphrase,
	}
}

func (k *keyStoreSigners) SignerFor(ctx context.Context, from common.Address) (transactions.Signer, error) {
	if !k.ks.HasAddress(from) {
		return nil, fmt.Errorf("account %s is not in the keystore", from.Hex())
	}
	return &keyStoreSigner{ks: k.ks, account: accounts.Account{Address: from}, passphrase: k.passphrase}, nil
}

func (k *keyStoreSigners) Accounts() []common.Address {
	res := make([]common.Address, 0, len(k.ks.Accounts()))
	for _, account := range k.ks.Accounts() {
		res = append(res, account.Address)
	}
	return res
}

type keyStoreSigner struct {
	ks         *keystore.KeyStore
	account    accounts.Account
	passphrase string
}

func (s *keyStoreSigner) SignTx(ctx context.Context, tx *gethtypes.Transaction, chainID *big.Int) (*gethtypes.Transaction, error) {
	return s.ks.SignTxWithPassphrase(s.account, s.passphrase, tx, chainID)
}

func (s *keyStoreSigner) SignHash(ctx context.Context, hash []byte) ([]byte, error) {
	return s.ks.SignHashWithPassphrase(s.account, s.passphrase, hash)
}

// noSigners is used when no keystore is configured.
type noSigners struct{}

func (noSigners) SignerFor(ctx context.Context, from common.Address) (transactions.Signer, error) {
	return nil, fmt.Errorf("no keystore configured for %s", from.Hex())
}
