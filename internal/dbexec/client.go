package dbexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fastomop/medA2A-implementation/internal/common"
)

// Row is one named-field result row.
type Row = map[string]any

// Result is a successful tabular query result. Columns preserve the
// server-reported order when available.
type Result struct {
	Columns []string `json:"columns,omitempty"`
	Rows    []Row    `json:"rows"`
}

// Executor submits one SQL statement to the query-execution service. It
// never retries internally; attempt accounting is the loop controller's
// exclusive responsibility.
type Executor interface {
	Execute(ctx context.Context, sql string) (*Result, error)
}

// Client is the HTTP executor for the remote OMOP query service. The
// service accepts {"sql": ...} and answers {"columns": [...], "rows": [...]}
// or {"error": "..."}; it is assumed read-only.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("query service URL required")
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type queryRequest struct {
	SQL string `json:"sql"`
}

type queryResponse struct {
	Columns []string `json:"columns,omitempty"`
	Rows    []Row    `json:"rows,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Execute submits the statement verbatim. Non-SELECT statements are
// rejected locally; this system never issues mutating SQL.
func (c *Client) Execute(ctx context.Context, sql string) (*Result, error) {
	trimmed := strings.TrimSpace(sql)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return nil, &ExecutionError{Kind: KindSyntaxError, Message: "only SELECT statements are executed"}
	}

	body, err := json.Marshal(queryRequest{SQL: trimmed})
	if err != nil {
		return nil, fmt.Errorf("encode query request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logger := common.Logger()
	logger.Debug("dbexec: submitting query", "bytes", len(trimmed))
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline exceeded") {
			return nil, &ExecutionError{Kind: KindTimeout, Message: err.Error()}
		}
		return nil, &ExecutionError{Kind: KindConnectionError, Message: err.Error()}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, &ExecutionError{Kind: KindConnectionError, Message: err.Error()}
	}

	var decoded queryResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, &ExecutionError{Kind: KindConnectionError, Message: fmt.Sprintf("undecodable response (status %d)", resp.StatusCode)}
	}
	if decoded.Error != "" {
		execErr := ClassifyMessage(decoded.Error)
		logger.Debug("dbexec: query failed", "kind", execErr.Kind)
		return nil, execErr
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ExecutionError{Kind: KindConnectionError, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
	if decoded.Rows == nil {
		decoded.Rows = []Row{}
	}
	logger.Debug("dbexec: query succeeded", "rows", len(decoded.Rows))
	return &Result{Columns: decoded.Columns, Rows: decoded.Rows}, nil
}
