package handlers

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeBech32(t *testing.T, hrp string, payload []byte) string {
	t.Helper()
	data, err := bech32.ConvertBits(payload, 8, 5, true)
	require.NoError(t, err)
	addr, err := bech32.Encode(hrp, data)
	require.NoError(t, err)
	return addr
}

func TestIsCardanoAddress(t *testing.T) {
	// header byte + payment and stake key hashes, longer than the bip-173 limit
	payload := make([]byte, 57)
	payload[0] = 0x01
	for i := 1; i < len(payload); i++ {
		payload[i] = byte(i)
	}

	mainnet := encodeBech32(t, "addr", payload)
	assert.Greater(t, len(mainnet), 90)
	assert.True(t, isCardanoAddress(mainnet))
	assert.True(t, isCardanoAddress(encodeBech32(t, "addr_test", payload)))

	assert.False(t, isCardanoAddress(encodeBech32(t, "stake", payload[:29])))
	last := "q"
	if mainnet[len(mainnet)-1] == 'q' {
		last = "p"
	}
	assert.False(t, isCardanoAddress(mainnet[:len(mainnet)-1]+last))
	assert.False(t, isCardanoAddress("DdzFFzCqrhsw3prhfMFDNFowbzUku3QmrMwarfjUbWXRisodn97R436SHc1rimp4MhPNmbdYb1aTdqtGSJixMVMi5MkArDQJ6Sc1n3Ez"))
	assert.False(t, isCardanoAddress(""))
}

func TestIsSolanaAddress(t *testing.T) {
	assert.True(t, isSolanaAddress(solana.NewWallet().PublicKey().String()))
	assert.False(t, isSolanaAddress("0x52908400098527886E0F7030069857D2E4169EE7"))
	assert.False(t, isSolanaAddress(""))
}

func TestValidate_WalletRequest(t *testing.T) {
	v := newValidator()

	assert.NoError(t, v.Struct(&WalletRequest{Solana: solana.NewWallet().PublicKey().String()}))
	assert.NoError(t, v.Struct(&WalletRequest{}))
	assert.Error(t, v.Struct(&WalletRequest{Cardano: "addr1notbech32"}))
	assert.Error(t, v.Struct(&WalletRequest{Solana: "not base58 !"}))
}

func TestValidate_BridgeTxRequest(t *testing.T) {
	v := newValidator()

	assert.NoError(t, v.Struct(&BridgeTxRequest{TxHash: "8f1c2a0b7e4d6c5f3a2b1c0d9e8f7a6b5c4d3e2f1a0b9c8d7e6f5a4b3c2d1e0f"}))
	assert.Error(t, v.Struct(&BridgeTxRequest{}))
	assert.Error(t, v.Struct(&BridgeTxRequest{TxHash: "xyz"}))
}
