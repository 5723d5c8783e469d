// Package datahandler provides an HTTP-forwarding implementation of
// paychan.DataHandler: the connector does not route multi-hop ILP traffic
// itself, so every admitted PREPARE is handed off
// to whatever process sits behind this URL — a STREAM server, a router, or a
// test fixture.
package datahandler

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/warrant1/chain-xrpl-ilp/internal/corekind"
	"github.com/warrant1/chain-xrpl-ilp/internal/ilppacket"
)

// HTTPHandler forwards PREPARE packets to a downstream HTTP endpoint as JSON
// and parses its response into a FULFILL.
type HTTPHandler struct {
	client *http.Client
	url    string
	logger *slog.Logger
}

// NewHTTP builds an HTTPHandler posting to url with the given per-request timeout.
func NewHTTP(url string, timeout time.Duration, logger *slog.Logger) *HTTPHandler {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPHandler{
		client: &http.Client{Timeout: timeout},
		url:    url,
		logger: logger.With("component", "datahandler.http"),
	}
}

type forwardRequest struct {
	AccountID             string `json:"accountId"`
	Amount                uint64 `json:"amount"`
	Destination           string `json:"destination"`
	ExecutionConditionHex string `json:"executionCondition"`
	Data                  []byte `json:"data"`
}

type forwardResponse struct {
	FulfillmentHex string `json:"fulfillment"`
	Data           []byte `json:"data"`
}

// Handle posts prepare to the configured URL and decodes the FULFILL response.
// A transport failure or non-200 status is reported as corekind.ErrUnreachable
// (the dispatcher maps it to an ILP F02); an unreadable body is
// corekind.ErrTransient and a malformed body or fulfillment corekind.ErrProtocol.
func (h *HTTPHandler) Handle(ctx context.Context, accountID string, prepare ilppacket.Prepare) (ilppacket.Fulfill, error) {
	body, err := json.Marshal(forwardRequest{
		AccountID:             accountID,
		Amount:                prepare.Amount,
		Destination:           prepare.Destination,
		ExecutionConditionHex: fmt.Sprintf("%x", prepare.ExecutionCondition),
		Data:                  prepare.Data,
	})
	if err != nil {
		return ilppacket.Fulfill{}, fmt.Errorf("%w: encode forward request: %v", corekind.ErrProtocol, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return ilppacket.Fulfill{}, fmt.Errorf("%w: build forward request: %v", corekind.ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return ilppacket.Fulfill{}, fmt.Errorf("%w: forward prepare: %v", corekind.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ilppacket.Fulfill{}, fmt.Errorf("%w: read forward response: %v", corekind.ErrTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		h.logger.Warn("downstream rejected prepare", "status", resp.StatusCode, "accountId", accountID)
		return ilppacket.Fulfill{}, fmt.Errorf("%w: downstream status %d", corekind.ErrUnreachable, resp.StatusCode)
	}

	var fr forwardResponse
	if err := json.Unmarshal(respBody, &fr); err != nil {
		return ilppacket.Fulfill{}, fmt.Errorf("%w: decode forward response: %v", corekind.ErrProtocol, err)
	}

	raw, err := hex.DecodeString(fr.FulfillmentHex)
	if err != nil || len(raw) != len(ilppacket.Fulfill{}.Fulfillment) {
		return ilppacket.Fulfill{}, fmt.Errorf("%w: malformed fulfillment hex", corekind.ErrProtocol)
	}
	var fulfill ilppacket.Fulfill
	copy(fulfill.Fulfillment[:], raw)
	fulfill.Data = fr.Data
	return fulfill, nil
}
