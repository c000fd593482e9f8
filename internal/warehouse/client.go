// Package warehouse reads loyalty transactions and their reference tables
// from BigQuery and optionally loads exported records back into it.
package warehouse

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/points-exporter/internal/config"
	"github.com/dvloznov/points-exporter/internal/retry"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Client is the BigQuery-backed warehouse. It holds a shared BigQuery client
// to avoid creating a new connection for each query.
type Client struct {
	bq     *bigquery.Client
	cfg    config.Warehouse
	policy config.Retry
}

// NewClient creates a Client for cfg.Project. An empty CredentialsFile uses
// Application Default Credentials.
func NewClient(ctx context.Context, cfg config.Warehouse, policy config.Retry) (*Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	bq, err := bigquery.NewClient(ctx, cfg.Project, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewClient: creating bigquery client: %w", err)
	}
	if cfg.Location != "" {
		bq.Location = cfg.Location
	}
	return &Client{bq: bq, cfg: cfg, policy: policy}, nil
}

// Close closes the BigQuery client connection.
func (c *Client) Close() error {
	if c.bq != nil {
		return c.bq.Close()
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.QueryTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.QueryTimeout)
	}
	return context.WithCancel(ctx)
}

// readAll runs q and decodes every row into T. A failed attempt discards the
// rows read so far and retries the whole query. Client errors are not
// retried.
func readAll[T any](ctx context.Context, c *Client, op string, q statement) ([]T, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	query := c.bq.Query(q.SQL)
	query.Parameters = q.Params

	var rows []T
	err := retry.Do(ctx, c.policy, op, func() error {
		rows = rows[:0]

		it, err := query.Read(ctx)
		if err != nil {
			return permanentIfClientError(fmt.Errorf("query read: %w", err))
		}
		for {
			var r T
			err := it.Next(&r)
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return permanentIfClientError(fmt.Errorf("iter next: %w", err))
			}
			rows = append(rows, r)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rows, nil
}
