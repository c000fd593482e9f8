package warehouse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/points-exporter/internal/domain"
	"github.com/dvloznov/points-exporter/internal/logger"
	"github.com/dvloznov/points-exporter/internal/retry"
	"github.com/goccy/go-json"
	"google.golang.org/api/googleapi"
)

const sinkTimeLayout = "2006-01-02 15:04:05"

// LoadTarget is the slice of the sink table owned by one export batch.
type LoadTarget struct {
	Table         string // dataset.table or project.dataset.table
	PartitionDate civil.Date
	Batch         int
}

// sinkSchema is the layout of the optional BigQuery sink, partitioned by
// partition_date.
var sinkSchema = bigquery.Schema{
	{Name: "partition_date", Type: bigquery.DateFieldType, Required: true},
	{Name: "batch", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "card_id", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "user_id", Type: bigquery.StringFieldType},
	{Name: "user_type", Type: bigquery.StringFieldType},
	{Name: "amount", Type: bigquery.NumericFieldType},
	{Name: "gateway_id", Type: bigquery.IntegerFieldType},
	{Name: "gateway_transaction_id", Type: bigquery.StringFieldType},
	{Name: "issued_at", Type: bigquery.DateTimeFieldType},
	{Name: "merchant_reference", Type: bigquery.StringFieldType},
	{Name: "partner", Type: bigquery.StringFieldType},
	{Name: "payment_mode", Type: bigquery.StringFieldType},
	{Name: "points_standard", Type: bigquery.NumericFieldType},
	{Name: "points_bonus", Type: bigquery.NumericFieldType},
	{Name: "products", Type: bigquery.JSONFieldType},
	{Name: "terminal_id", Type: bigquery.StringFieldType},
	{Name: "type", Type: bigquery.StringFieldType},
	{Name: "latitude", Type: bigquery.FloatFieldType},
	{Name: "longitude", Type: bigquery.FloatFieldType},
}

type sinkRow struct {
	PartitionDate        civil.Date `json:"partition_date"`
	Batch                int        `json:"batch"`
	CardID               int64      `json:"card_id"`
	UserID               string     `json:"user_id"`
	UserType             string     `json:"user_type"`
	Amount               string     `json:"amount"`
	GatewayID            int        `json:"gateway_id"`
	GatewayTransactionID string     `json:"gateway_transaction_id"`
	IssuedAt             *string    `json:"issued_at,omitempty"`
	MerchantReference    string     `json:"merchant_reference"`
	Partner              string     `json:"partner"`
	PaymentMode          string     `json:"payment_mode"`
	PointsStandard       string     `json:"points_standard"`
	PointsBonus          string     `json:"points_bonus"`
	Products             string     `json:"products"`
	TerminalID           string     `json:"terminal_id"`
	Type                 string     `json:"type"`
	Latitude             float64    `json:"latitude"`
	Longitude            float64    `json:"longitude"`
}

// encodeSinkRows renders records as newline-delimited JSON matching
// sinkSchema.
func encodeSinkRows(target LoadTarget, records []domain.OutputRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for i := range records {
		r := &records[i]
		products := r.Products
		if products == nil {
			products = []domain.Product{}
		}
		productDoc, err := json.Marshal(products)
		if err != nil {
			return nil, fmt.Errorf("record %d: products: %w", i, err)
		}

		row := sinkRow{
			PartitionDate:        target.PartitionDate,
			Batch:                target.Batch,
			CardID:               r.CardID,
			UserID:               r.User.ID,
			UserType:             r.User.Type,
			Amount:               r.Amount.String(),
			GatewayID:            r.Gateway.ID,
			GatewayTransactionID: r.Gateway.TransactionID,
			MerchantReference:    r.MerchantReference,
			Partner:              r.Partner,
			PaymentMode:          r.PaymentMode,
			PointsStandard:       r.Points.Standard.String(),
			PointsBonus:          r.Points.Bonus.String(),
			Products:             string(productDoc),
			TerminalID:           r.TerminalID,
			Type:                 r.Type,
			Latitude:             r.Latitude,
			Longitude:            r.Longitude,
		}
		if !r.IssuedAt.IsZero() {
			s := r.IssuedAt.Format(sinkTimeLayout)
			row.IssuedAt = &s
		}
		if err := enc.Encode(&row); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// tableHandle resolves dataset.table or project.dataset.table.
func (c *Client) tableHandle(name string) (*bigquery.Table, error) {
	if _, err := tableRef(name); err != nil {
		return nil, err
	}
	parts := strings.Split(name, ".")
	if len(parts) == 3 {
		return c.bq.DatasetInProject(parts[0], parts[1]).Table(parts[2]), nil
	}
	return c.bq.Dataset(parts[0]).Table(parts[1]), nil
}

// LoadRecords replaces the rows of target's batch in the sink table. The
// batch's previous rows are deleted before the load so a rerun does not
// duplicate them.
func (c *Client) LoadRecords(ctx context.Context, target LoadTarget, records []domain.OutputRecord) error {
	table, err := c.tableHandle(target.Table)
	if err != nil {
		return fmt.Errorf("LoadRecords: %w", err)
	}
	data, err := encodeSinkRows(target, records)
	if err != nil {
		return fmt.Errorf("LoadRecords: encoding rows: %w", err)
	}
	del, err := buildDeleteBatch(target.Table, target.PartitionDate, target.Batch)
	if err != nil {
		return fmt.Errorf("LoadRecords: %w", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	err = retry.Do(ctx, c.policy, "LoadRecords", func() error {
		exists, err := tableExists(ctx, table)
		if err != nil {
			return permanentIfClientError(err)
		}
		if exists {
			if err := c.runDML(ctx, del); err != nil {
				return permanentIfClientError(fmt.Errorf("deleting previous rows: %w", err))
			}
		}
		if len(records) == 0 {
			return nil
		}
		return permanentIfClientError(loadJSON(ctx, table, data))
	})
	if err != nil {
		return fmt.Errorf("LoadRecords: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("table", target.Table).
		Str("date", target.PartitionDate.String()).
		Int("batch", target.Batch).
		Int("records", len(records)).
		Msg("Records loaded into warehouse")
	return nil
}

func tableExists(ctx context.Context, table *bigquery.Table) (bool, error) {
	_, err := table.Metadata(ctx)
	if err == nil {
		return true, nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("reading table metadata: %w", err)
}

func (c *Client) runDML(ctx context.Context, stmt statement) error {
	q := c.bq.Query(stmt.SQL)
	q.Parameters = stmt.Params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait job: %w", err)
	}
	return status.Err()
}

func loadJSON(ctx context.Context, table *bigquery.Table, data []byte) error {
	rs := bigquery.NewReaderSource(bytes.NewReader(data))
	rs.SourceFormat = bigquery.JSON
	rs.Schema = sinkSchema

	loader := table.LoaderFrom(rs)
	loader.WriteDisposition = bigquery.WriteAppend
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.TimePartitioning = &bigquery.TimePartitioning{
		Type:  bigquery.DayPartitioningType,
		Field: "partition_date",
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("run load job: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait load job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	return nil
}
