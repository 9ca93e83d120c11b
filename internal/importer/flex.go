// Package importer pulls trade confirmation reports from the broker's Flex
// report service: request a report, poll until it is generated, parse the
// XML, and record each trade idempotently.
package importer

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tradetools/tradetools-server/internal/config"
	"github.com/tradetools/tradetools-server/internal/models"
)

// TradeRecorder records a trade, skipping duplicates by trade id.
type TradeRecorder interface {
	InsertTradeIfAbsent(t *models.Trade) (bool, error)
}

// Result summarizes one import run.
type Result struct {
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// FlexClient drives the two-step report flow against the Flex service.
type FlexClient struct {
	cli        *http.Client
	cfg        config.FlexConfig
	recorder   TradeRecorder
	maxRetries int
	retryDelay time.Duration
}

// New creates a FlexClient with bounded polling (10 attempts, 2s apart).
func New(cfg config.FlexConfig, recorder TradeRecorder) *FlexClient {
	return &FlexClient{
		cli:        &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
		recorder:   recorder,
		maxRetries: 10,
		retryDelay: 2 * time.Second,
	}
}

type sendResponse struct {
	Status        string `xml:"Status"`
	ReferenceCode string `xml:"ReferenceCode"`
	URL           string `xml:"Url"`
	ErrorCode     string `xml:"ErrorCode"`
	ErrorMessage  string `xml:"ErrorMessage"`
}

// Import requests the configured daily or weekly report and records the
// trades it contains. Returns how many rows were new.
func (c *FlexClient) Import(ctx context.Context, queryType string) (*Result, error) {
	queryID := c.cfg.QueryIDDaily
	if queryType == "weekly" {
		queryID = c.cfg.QueryIDWeekly
	}
	if queryID == "" || c.cfg.Token == "" {
		return nil, fmt.Errorf("flex import is not configured")
	}

	reqURL := fmt.Sprintf("%s/FlexStatementService.SendRequest?t=%s&q=%s&v=3",
		c.cfg.BaseURL, c.cfg.Token, queryID)
	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("flex request failed: %w", err)
	}

	var send sendResponse
	if err := xml.Unmarshal(body, &send); err != nil {
		return nil, fmt.Errorf("failed to parse flex response: %w", err)
	}
	if send.Status != "Success" {
		return nil, fmt.Errorf("flex request rejected: %s - %s", send.ErrorCode, send.ErrorMessage)
	}

	dlURL := fmt.Sprintf("%s?q=%s&t=%s&v=3", send.URL, send.ReferenceCode, c.cfg.Token)
	statement, err := c.pollStatement(ctx, dlURL)
	if err != nil {
		return nil, err
	}

	return c.recordStatement(statement)
}

// pollStatement retries the download URL with a fixed backoff until the
// generated statement shows up or the attempt budget runs out.
func (c *FlexClient) pollStatement(ctx context.Context, url string) ([]byte, error) {
	for i := 0; i < c.maxRetries; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}

		body, err := c.get(ctx, url)
		if err != nil {
			log.Printf("Flex statement poll %d/%d failed: %v", i+1, c.maxRetries, err)
			continue
		}
		if bytes.Contains(body, []byte("<FlexStatement")) || bytes.Contains(body, []byte("<FlexQueryResponse")) {
			return body, nil
		}
	}
	return nil, fmt.Errorf("timeout waiting for flex report generation")
}

func (c *FlexClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// recordStatement walks every Trade / TradeConfirm element in the statement
// and records it. Duplicate trade ids are skipped by the store.
func (c *FlexClient) recordStatement(statement []byte) (*Result, error) {
	dec := xml.NewDecoder(bytes.NewReader(statement))
	result := &Result{}
	found := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse flex statement: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		name := start.Name.Local
		if !strings.HasSuffix(name, "Trade") && !strings.HasSuffix(name, "TradeConfirm") {
			continue
		}
		found++

		trade := tradeFromAttrs(start.Attr)
		if trade.TradeID == "" {
			continue
		}
		inserted, err := c.recorder.InsertTradeIfAbsent(trade)
		if err != nil {
			log.Printf("Error recording trade %s: %v", trade.TradeID, err)
			continue
		}
		if inserted {
			result.Count++
		}
	}

	if found == 0 {
		result.Message = "No trades found in report"
		return result, nil
	}
	result.Message = fmt.Sprintf("%d new trades imported", result.Count)
	return result, nil
}

func tradeFromAttrs(attrs []xml.Attr) *models.Trade {
	data := make(map[string]string, len(attrs))
	for _, a := range attrs {
		data[a.Name.Local] = a.Value
	}

	t := &models.Trade{
		TradeID:            data["tradeID"],
		AccountID:          data["accountId"],
		UnderlyingSymbol:   data["underlyingSymbol"],
		Symbol:             data["symbol"],
		Description:        data["description"],
		Expiry:             data["expiry"],
		PutCall:            data["putCall"],
		Currency:           data["currency"],
		Notes:              data["notes"],
		OpenCloseIndicator: data["openCloseIndicator"],
	}

	t.Strike = optFloat(data["strike"])
	t.Quantity = floatOrZero(data["quantity"])
	t.DateTime = parseFlexTime(data["dateTime"])

	// Daily confirm reports call these price/commission, the trade reports
	// tradePrice/ibCommission.
	if v, ok := data["tradePrice"]; ok {
		t.TradePrice = floatOrZero(v)
	} else {
		t.TradePrice = floatOrZero(data["price"])
	}
	if v, ok := data["ibCommission"]; ok {
		t.Commission = optFloat(v)
	} else {
		t.Commission = optFloat(data["commission"])
	}
	t.Multiplier = floatOrZero(data["multiplier"])

	// Confirm rows carry open/close inside the notes-style code attribute.
	if t.OpenCloseIndicator == "" {
		if code, ok := data["code"]; ok {
			if strings.Contains(code, "O") {
				t.OpenCloseIndicator = "O"
			} else if strings.Contains(code, "C") {
				t.OpenCloseIndicator = "C"
			}
		}
	}
	return t
}

var flexTimeLayouts = []string{
	"20060102150405",
	"20060102;150405",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"20060102",
	"2006-01-02",
}

func parseFlexTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range flexTimeLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func optFloat(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func floatOrZero(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}
