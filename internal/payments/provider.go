package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ProviderClient talks to the mobile money gateway. Without merchant
// credentials it stays in demo mode and the simulator fabricates responses
// locally instead of calling out.
type ProviderClient struct {
	http       *resty.Client
	merchantID string
	apiKey     string
	demo       bool
}

func NewProviderClient() *ProviderClient {
	merchantID := os.Getenv("MM_MERCHANT_ID")
	apiKey := os.Getenv("MM_API_KEY")
	baseURL := os.Getenv("MM_API_URL")
	demo := merchantID == "" || apiKey == "" || baseURL == ""
	if demo {
		zap.L().Warn("payment provider credentials missing, running in demo mode")
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)
	return &ProviderClient{
		http:       client,
		merchantID: merchantID,
		apiKey:     apiKey,
		demo:       demo,
	}
}

func (p *ProviderClient) Demo() bool {
	return p == nil || p.demo
}

// Signature signs a charge request the way the gateway expects:
// sha256(merchant_id + amount + phone + transaction_id + secret).
func Signature(merchantID string, amount float64, phone string, txid string, secret string) string {
	stringToSign := fmt.Sprintf("%s%.2f%s%s%s", merchantID, amount, phone, txid, secret)
	sum := sha256.Sum256([]byte(stringToSign))
	return hex.EncodeToString(sum[:])
}

func (p *ProviderClient) Charge(ctx context.Context, amount float64, phone string, txid string) error {
	payload := map[string]interface{}{
		"merchant_id":    p.merchantID,
		"amount":         amount,
		"phone":          phone,
		"transaction_id": txid,
		"currency":       "USD",
		"timestamp":      time.Now().Format(time.RFC3339),
		"description":    "Dadaal App Payment",
		"signature":      Signature(p.merchantID, amount, phone, txid, p.apiKey),
	}
	resp, err := p.http.R().
		SetContext(ctx).
		SetAuthToken(p.apiKey).
		SetBody(payload).
		Post("/payments")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("provider error: %s", resp.String())
	}
	return nil
}
