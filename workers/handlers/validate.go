package handlers

import (
	"fmt"
	"unicode"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/go-playground/validator/v10"

	"trtlbridge/SOLRPC"
)

func newValidator() *validator.Validate {
	v := validator.New()
	for tag, fn := range map[string]validator.Func{
		"cardano_address": func(fl validator.FieldLevel) bool { return isCardanoAddress(fl.Field().String()) },
		"solana_address":  func(fl validator.FieldLevel) bool { return isSolanaAddress(fl.Field().String()) },
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	return v
}

// isCardanoAddress accepts Shelley payment addresses of mainnet and testnets.
func isCardanoAddress(addr string) bool {
	hrp, data, err := bech32.DecodeNoLimit(addr)
	if err != nil || len(data) == 0 {
		return false
	}
	return hrp == "addr" || hrp == "addr_test"
}

func isSolanaAddress(addr string) bool {
	_, err := SOLRPC.ParseAddress(addr)
	return err == nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func fieldMessage(fe validator.FieldError) string {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "cardano_address":
		return "No Cardano address or invalid address provided"
	case "solana_address":
		return "No Solana address or invalid address provided"
	case "len", "hexadecimal":
		// only transaction hashes are checked this way
		return "Invalid transaction hash"
	}
	return fmt.Sprintf("%s is invalid", field)
}
