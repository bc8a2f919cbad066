package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	appErr "casino-core/pkg/errors"
)

// Gateway is the payment processor surface the deposit and withdrawal flows
// depend on. The production implementation talks to the Crypto Pay API.
type Gateway interface {
	CreateInvoice(ctx context.Context, accountID, amount int64, payload string) (*InvoiceInfo, error)
	GetInvoices(ctx context.Context, externalIDs []string) ([]InvoiceInfo, error)
	ExecuteTransfer(ctx context.Context, accountID, amount int64, reference string) (string, error)
}

// InvoiceInfo is the processor's view of an invoice.
type InvoiceInfo struct {
	ExternalID string
	Status     string // active, paid, expired
	Asset      string
	Amount     int64
	PayURL     string
	Payload    string
}

// Client implements Gateway against a Crypto Pay style HTTP API. All amounts
// cross the wire as major-unit decimal strings; internally they stay in
// minor units.
type Client struct {
	base  string
	token string
	asset string
	http  *http.Client
}

func NewClient(base, token, asset string) *Client {
	return &Client{
		base:  base,
		token: token,
		asset: asset,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

type apiEnvelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"error"`
}

type apiInvoice struct {
	InvoiceID int64  `json:"invoice_id"`
	Status    string `json:"status"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	PayURL    string `json:"pay_url"`
	Payload   string `json:"payload"`
}

func (c *Client) CreateInvoice(ctx context.Context, accountID, amount int64, payload string) (*InvoiceInfo, error) {
	if c.base == "" || c.token == "" {
		return nil, appErr.ErrGatewayDisabled
	}

	req := map[string]interface{}{
		"asset":   c.asset,
		"amount":  minorToDecimal(amount),
		"payload": payload,
	}
	var inv apiInvoice
	if err := c.call(ctx, "createInvoice", req, &inv); err != nil {
		return nil, err
	}
	return invoiceInfo(inv)
}

func (c *Client) GetInvoices(ctx context.Context, externalIDs []string) ([]InvoiceInfo, error) {
	if c.base == "" || c.token == "" {
		return nil, appErr.ErrGatewayDisabled
	}
	if len(externalIDs) == 0 {
		return nil, nil
	}

	req := map[string]interface{}{
		"invoice_ids": joinIDs(externalIDs),
	}
	var result struct {
		Items []apiInvoice `json:"items"`
	}
	if err := c.call(ctx, "getInvoices", req, &result); err != nil {
		return nil, err
	}

	infos := make([]InvoiceInfo, 0, len(result.Items))
	for _, inv := range result.Items {
		info, err := invoiceInfo(inv)
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

// ExecuteTransfer sends funds out to the user. The reference doubles as the
// processor-side idempotency key (spend_id), so a retried call cannot pay
// twice.
func (c *Client) ExecuteTransfer(ctx context.Context, accountID, amount int64, reference string) (string, error) {
	if c.base == "" || c.token == "" {
		return "", appErr.ErrGatewayDisabled
	}

	req := map[string]interface{}{
		"user_id":  accountID,
		"asset":    c.asset,
		"amount":   minorToDecimal(amount),
		"spend_id": reference,
	}
	var result struct {
		TransferID int64 `json:"transfer_id"`
	}
	if err := c.call(ctx, "transfer", req, &result); err != nil {
		return "", err
	}
	return strconv.FormatInt(result.TransferID, 10), nil
}

func (c *Client) call(ctx context.Context, method string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/"+method, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Crypto-Pay-API-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("payment api %s: %w", method, err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("payment api %s: decode: %w", method, err)
	}
	if !env.OK {
		if env.Error != nil {
			return fmt.Errorf("payment api %s: %d %s", method, env.Error.Code, env.Error.Name)
		}
		return fmt.Errorf("payment api %s: status %d", method, resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(env.Result, out)
	}
	return nil
}

func invoiceInfo(inv apiInvoice) (*InvoiceInfo, error) {
	amount, err := decimalToMinor(inv.Amount)
	if err != nil {
		return nil, fmt.Errorf("payment api: bad amount %q: %w", inv.Amount, err)
	}
	return &InvoiceInfo{
		ExternalID: strconv.FormatInt(inv.InvoiceID, 10),
		Status:     inv.Status,
		Asset:      inv.Asset,
		Amount:     amount,
		PayURL:     inv.PayURL,
		Payload:    inv.Payload,
	}, nil
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += id
	}
	return out
}

// minorToDecimal renders cents as a major-unit decimal string ("1250" ->
// "12.50").
func minorToDecimal(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

// decimalToMinor parses a major-unit decimal string into cents, truncating
// past two fractional digits. The sign is handled up front: parsing "-0.50"
// through the whole part alone would lose it.
func decimalToMinor(s string) (int64, error) {
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}

	whole := s
	frac := ""
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			whole = s[:i]
			frac = s[i+1:]
			break
		}
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}

	w, err := strconv.ParseUint(whole, 10, 63)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseUint(frac, 10, 63)
	if err != nil {
		return 0, err
	}

	v := int64(w)*100 + int64(f)
	if neg {
		v = -v
	}
	return v, nil
}
