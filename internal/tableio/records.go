package tableio

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/dvloznov/points-exporter/internal/domain"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// RecordColumns is the column order of flat record exports.
var RecordColumns = []string{
	"cardId",
	"user",
	"amount",
	"gateway",
	"issuedAt",
	"merchantReference",
	"partner",
	"paymentMode",
	"points",
	"products",
	"terminalId",
	"type",
	"latitude",
	"longitude",
}

// recordJSONFields marks the RecordColumns holding escaped JSON documents.
var recordJSONFields = []bool{1: true, 3: true, 8: true, 9: true}

// IssuedAtLayout formats transaction timestamps in flat exports.
const IssuedAtLayout = "2006-01-02 15:04:05"

// flatRecord is an OutputRecord with its nested documents rendered as
// escaped JSON text.
type flatRecord struct {
	CardID            int64
	User              string
	Amount            string
	Gateway           string
	IssuedAt          time.Time
	MerchantReference string
	Partner           string
	PaymentMode       string
	Points            string
	Products          string
	TerminalID        string
	Type              string
	Latitude          float64
	Longitude         float64
}

func flatten(r *domain.OutputRecord) (flatRecord, error) {
	products := r.Products
	if products == nil {
		products = []domain.Product{}
	}

	docs := []interface{}{r.User, r.Gateway, r.Points, products}
	text := make([]string, len(docs))
	for i, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return flatRecord{}, fmt.Errorf("transaction %s: %w", r.Gateway.TransactionID, err)
		}
		text[i] = escapeJSON(b)
	}

	return flatRecord{
		CardID:            r.CardID,
		User:              text[0],
		Amount:            r.Amount.String(),
		Gateway:           text[1],
		IssuedAt:          r.IssuedAt,
		MerchantReference: r.MerchantReference,
		Partner:           r.Partner,
		PaymentMode:       r.PaymentMode,
		Points:            text[2],
		Products:          text[3],
		TerminalID:        r.TerminalID,
		Type:              r.Type,
		Latitude:          r.Latitude,
		Longitude:         r.Longitude,
	}, nil
}

func (f *flatRecord) strings() []string {
	return []string{
		strconv.FormatInt(f.CardID, 10),
		f.User,
		f.Amount,
		f.Gateway,
		formatIssuedAt(f.IssuedAt),
		f.MerchantReference,
		f.Partner,
		f.PaymentMode,
		f.Points,
		f.Products,
		f.TerminalID,
		f.Type,
		strconv.FormatFloat(f.Latitude, 'f', -1, 64),
		strconv.FormatFloat(f.Longitude, 'f', -1, 64),
	}
}

func formatIssuedAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(IssuedAtLayout)
}

// EncodeRecords serializes records in the given format. csv, csv.gz and
// parquet use the flat legacy layout. jsonl writes one nested document per
// line.
func EncodeRecords(records []domain.OutputRecord, format Format) ([]byte, error) {
	if format == FormatJSONL {
		return encodeJSONL(records)
	}

	flat := make([]flatRecord, len(records))
	for i := range records {
		f, err := flatten(&records[i])
		if err != nil {
			return nil, fmt.Errorf("EncodeRecords: %w", err)
		}
		flat[i] = f
	}

	switch format {
	case FormatCSV, FormatCSVGzip:
		rows := make([][]string, len(flat))
		for i := range flat {
			rows[i] = flat[i].strings()
		}
		data := encodeCSV(RecordColumns, rows, recordJSONFields)
		if format == FormatCSVGzip {
			return compress(data)
		}
		return data, nil
	case FormatParquet:
		data, err := encodeRecordsParquet(flat)
		if err != nil {
			return nil, fmt.Errorf("EncodeRecords: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("EncodeRecords: %w: %q", ErrUnsupportedFormat, format)
	}
}

func encodeJSONL(records []domain.OutputRecord) ([]byte, error) {
	var buf bytes.Buffer
	for i := range records {
		b, err := json.Marshal(&records[i])
		if err != nil {
			return nil, fmt.Errorf("encodeJSONL: transaction %s: %w", records[i].Gateway.TransactionID, err)
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress: closing: %w", err)
	}
	return buf.Bytes(), nil
}
