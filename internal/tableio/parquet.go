package tableio

import (
	"bytes"
	"fmt"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRecord struct {
	CardID            int64   `parquet:"name=cardId, type=INT64"`
	User              string  `parquet:"name=user, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount            string  `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Gateway           string  `parquet:"name=gateway, type=BYTE_ARRAY, convertedtype=UTF8"`
	IssuedAt          string  `parquet:"name=issuedAt, type=BYTE_ARRAY, convertedtype=UTF8"`
	MerchantReference string  `parquet:"name=merchantReference, type=BYTE_ARRAY, convertedtype=UTF8"`
	Partner           string  `parquet:"name=partner, type=BYTE_ARRAY, convertedtype=UTF8"`
	PaymentMode       string  `parquet:"name=paymentMode, type=BYTE_ARRAY, convertedtype=UTF8"`
	Points            string  `parquet:"name=points, type=BYTE_ARRAY, convertedtype=UTF8"`
	Products          string  `parquet:"name=products, type=BYTE_ARRAY, convertedtype=UTF8"`
	TerminalID        string  `parquet:"name=terminalId, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type              string  `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Latitude          float64 `parquet:"name=latitude, type=DOUBLE"`
	Longitude         float64 `parquet:"name=longitude, type=DOUBLE"`
}

const parquetRowGroupSize = 128 * 1024 * 1024

func encodeRecordsParquet(rows []flatRecord) ([]byte, error) {
	var buf bytes.Buffer
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(&buf), new(parquetRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("parquet schema: %w", err)
	}
	pw.RowGroupSize = parquetRowGroupSize
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		r := &rows[i]
		pr := &parquetRecord{
			CardID:            r.CardID,
			User:              r.User,
			Amount:            r.Amount,
			Gateway:           r.Gateway,
			IssuedAt:          formatIssuedAt(r.IssuedAt),
			MerchantReference: r.MerchantReference,
			Partner:           r.Partner,
			PaymentMode:       r.PaymentMode,
			Points:            r.Points,
			Products:          r.Products,
			TerminalID:        r.TerminalID,
			Type:              r.Type,
			Latitude:          r.Latitude,
			Longitude:         r.Longitude,
		}
		if err := pw.Write(pr); err != nil {
			_ = pw.WriteStop()
			return nil, fmt.Errorf("parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("parquet flush: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeTableParquet writes an all-string table through the CSV writer of
// parquet-go, one UTF8 column per header entry.
func encodeTableParquet(header []string, rows [][]string) ([]byte, error) {
	md := make([]string, len(header))
	for i, h := range header {
		md[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", h)
	}

	var buf bytes.Buffer
	pw, err := writer.NewCSVWriter(md, writerfile.NewWriterFile(&buf), 1)
	if err != nil {
		return nil, fmt.Errorf("parquet schema: %w", err)
	}
	pw.RowGroupSize = parquetRowGroupSize
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range rows {
		rec := make([]*string, len(header))
		for i := range rec {
			if i < len(r) {
				v := r[i]
				rec[i] = &v
			}
		}
		if err := pw.WriteString(rec); err != nil {
			_ = pw.WriteStop()
			return nil, fmt.Errorf("parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("parquet flush: %w", err)
	}
	return buf.Bytes(), nil
}
