package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dchest/uniuri"

	"dadaal/internal/dadaalapi"
)

// Attempt states. Every attempt starts at Submitted; malformed input rejects
// before validation, validated input either succeeds or is rejected by the
// provider rules.
type State string

const (
	StateSubmitted State = "SUBMITTED"
	StateValidated State = "VALIDATED"
	StateSucceeded State = "SUCCEEDED"
	StateRejected  State = "REJECTED"
)

const (
	MethodMobileMoney = "mobile_money"
	MethodCard        = "card"
	MethodBank        = "bank"
	MethodCrypto      = "crypto"
)

var ErrUnknownMethod = errors.New("unknown payment method")

// carrierPrefixes maps recognized Somali carrier prefixes to the provider
// tag used in fabricated transaction ids.
var carrierPrefixes = map[string]string{
	"61": "EVC",    // Hormuud EVC Plus
	"62": "EDAHAB", // Somtel eDahab
	"63": "ZAAD",   // Telesom ZAAD
	"65": "EDAHAB",
	"66": "EDAHAB",
	"90": "SAHAL", // Golis Sahal
}

const txidChars = "0123456789ABCDEF"

type Request struct {
	Amount        float64
	Method        string
	Phone         string
	CardHolder    string
	CardEmail     string
	AccountHolder string
	WalletAddress string
}

type Result struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	State         State  `json:"state"`
	Err           string `json:"error,omitempty"`
}

type Simulator struct {
	limits   dadaalapi.SettingLimit
	provider *ProviderClient
}

func NewSimulator(cfg *dadaalapi.AppConfig, provider *ProviderClient) *Simulator {
	return &Simulator{
		limits:   cfg.Settings.Limits,
		provider: provider,
	}
}

// Process validates the instruction and fabricates a provider response. On
// failure no ledger mutation happens; that is the caller's contract.
func (s *Simulator) Process(ctx context.Context, req Request) Result {
	switch req.Method {
	case MethodMobileMoney:
		return s.processMobileMoney(ctx, req)
	case MethodCard:
		return s.processCard(req)
	case MethodBank:
		return s.processBank(req)
	case MethodCrypto:
		return s.processCrypto(req)
	}
	return rejected(ErrUnknownMethod.Error())
}

func (s *Simulator) processMobileMoney(ctx context.Context, req Request) Result {
	phone, carrier, err := NormalizePhone(req.Phone)
	if err != nil {
		return rejected("Lambarka telefoonku waa khalad") // invalid phone number
	}
	if req.Amount < s.limits.MobileMoneyMin || req.Amount > s.limits.MobileMoneyMax {
		return Result{
			Success: false,
			State:   StateRejected,
			Err: fmt.Sprintf("Lacagtu waa inay u dhaxaysaa $%.0f iyo $%.0f", // amount must be between
				s.limits.MobileMoneyMin, s.limits.MobileMoneyMax),
		}
	}
	txid := NewProviderTxID(carrier)
	if s.provider != nil && !s.provider.Demo() {
		if err := s.provider.Charge(ctx, req.Amount, phone, txid); err != nil {
			return rejected(err.Error())
		}
	}
	return succeeded(txid)
}

func (s *Simulator) processCard(req Request) Result {
	if strings.TrimSpace(req.CardHolder) == "" || strings.TrimSpace(req.CardEmail) == "" {
		return rejected("cardholder name and email are required")
	}
	if !strings.Contains(req.CardEmail, "@") {
		return rejected("invalid cardholder email")
	}
	if req.Amount <= 0 {
		return rejected("invalid amount")
	}
	return succeeded(NewProviderTxID("CARD"))
}

func (s *Simulator) processBank(req Request) Result {
	if strings.TrimSpace(req.AccountHolder) == "" {
		return rejected("account holder is required")
	}
	if req.Amount <= 0 {
		return rejected("invalid amount")
	}
	return succeeded(NewProviderTxID("BANK"))
}

func (s *Simulator) processCrypto(req Request) Result {
	wallet := strings.TrimSpace(req.WalletAddress)
	if len(wallet) < 26 || len(wallet) > 64 {
		return rejected("invalid wallet address")
	}
	if req.Amount <= 0 {
		return rejected("invalid amount")
	}
	return succeeded(NewProviderTxID("CRYPTO"))
}

// NormalizePhone strips the international prefix and reports the carrier tag
// for a recognized Somali subscriber number.
func NormalizePhone(phone string) (normalized string, carrier string, err error) {
	p := strings.TrimSpace(phone)
	p = strings.ReplaceAll(p, " ", "")
	p = strings.TrimPrefix(p, "+")
	if strings.HasPrefix(p, "00") {
		p = p[2:]
	}
	p = strings.TrimPrefix(p, "252")
	if len(p) != 9 {
		return "", "", errors.New("invalid phone length")
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", "", errors.New("invalid phone digits")
		}
	}
	tag, ok := carrierPrefixes[p[:2]]
	if !ok {
		return "", "", errors.New("unrecognized carrier prefix")
	}
	return "252" + p, tag, nil
}

// NewProviderTxID fabricates a provider transaction id, e.g. EVC-1A2B3C4D5E6F7A8B.
func NewProviderTxID(prefix string) string {
	return prefix + "-" + uniuri.NewLenChars(16, []byte(txidChars))
}

func rejected(msg string) Result {
	return Result{Success: false, State: StateRejected, Err: msg}
}

func succeeded(txid string) Result {
	return Result{Success: true, State: StateSucceeded, TransactionID: txid}
}
