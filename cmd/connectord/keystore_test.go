package main

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestKeyStoreSigners(t *testing.T) {
	dir := t.TempDir()
	ks := keystore.NewKeyStore(dir, keystore.LightScryptN, keystore.LightScryptP)
	account, err := ks.NewAccount("secret")
	require.NoError(t, err)

	signers := &keyStoreSigners{ks: ks, passphrase: "secret"}
	require.Equal(t, []common.Address{account.Address}, signers.Accounts())

	_, err = signers.SignerFor(context.Background(), common.HexToAddress("0x1"))
	require.Error(t, err)

	signer, err := signers.SignerFor(context.Background(), account.Address)
	require.NoError(t, err)

	hash := crypto.Keccak256([]byte("hello"))
	sig, err := signer.SignHash(context.Background(), hash)
	require.NoError(t, err)
	pub, err := crypto.SigToPub(hash, sig)
	require.NoError(t, err)
	require.Equal(t, account.Address, crypto.PubkeyToAddress(*pub))

	to := common.HexToAddress("0xB")
	chainID := big.NewInt(10)
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{Nonce: 1, To: &to, Gas: 21000, GasPrice: big.NewInt(1), Value: big.NewInt(1)})
	signed, err := signer.SignTx(context.Background(), tx, chainID)
	require.NoError(t, err)
	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	require.Equal(t, account.Address, from)

	wrong := &keyStoreSigners{ks: ks, passphrase: "wrong"}
	signer, err = wrong.SignerFor(context.Background(), account.Address)
	require.NoError(t, err)
	_, err = signer.SignHash(context.Background(), hash)
	require.Error(t, err)
}
