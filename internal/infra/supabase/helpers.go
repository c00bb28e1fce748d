package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// ============================================================
// HTTP helpers for POST
// ============================================================

// doInsert posts one row. With onConflict set, PostgREST upserts on that
// column and silently skips rows that already exist, which is how a retried
// commit avoids writing the same ledger row twice.
func (c *Client) doInsert(ctx context.Context, table, onConflict string, row any) error {
	path := table
	if onConflict != "" {
		path = fmt.Sprintf("%s?on_conflict=%s", table, onConflict)
	}
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)

	jsonBody, err := json.Marshal(row)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}

	c.setHeaders(req)
	if onConflict != "" {
		req.Header.Set("Prefer", "resolution=ignore-duplicates,return=minimal")
	} else {
		req.Header.Set("Prefer", "return=minimal")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: POST request failed",
			zap.String("table", table),
			zap.Error(err),
		)
		return err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return err
	}

	if err := statusError(http.MethodPost, table, resp.StatusCode, body); err != nil {
		c.logger.Warn("supabase: POST non-2xx",
			zap.String("table", table),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return err
	}

	c.logger.Debug("supabase: POST OK", zap.String("table", table), zap.Int("status", resp.StatusCode))
	return nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
