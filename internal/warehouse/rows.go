package warehouse

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/points-exporter/internal/domain"
	"github.com/dvloznov/points-exporter/internal/reference"
	"github.com/shopspring/decimal"
)

// numericScale is the number of fractional digits of BigQuery NUMERIC.
const numericScale = 9

type lineRow struct {
	PartitionDate civil.Date `bigquery:"partition_dt"`
	TransactionID int64      `bigquery:"transaction_id"`

	CardNo          bigquery.NullString   `bigquery:"card_no"`
	TerminalID      bigquery.NullString   `bigquery:"terminal_id"`
	TransactionDate bigquery.NullDateTime `bigquery:"transaction_date"`

	TotalTxnValue    *big.Rat `bigquery:"total_txn_value"`    // NULLABLE NUMERIC
	StdPointsValue   *big.Rat `bigquery:"std_points_value"`   // NULLABLE NUMERIC
	BonusPointsValue *big.Rat `bigquery:"bonus_points_value"` // NULLABLE NUMERIC

	Source      bigquery.NullString `bigquery:"source"`
	MerchRef    bigquery.NullString `bigquery:"merch_ref"`
	StatementID bigquery.NullString `bigquery:"statement_id"`
	Name        bigquery.NullString `bigquery:"name"`
	CardType    bigquery.NullString `bigquery:"card_type"`
	FormOfPmt   bigquery.NullString `bigquery:"form_of_pmt"`
	TxTypeCode  bigquery.NullString `bigquery:"tx_type_code"`

	// Detail columns, NULL without a detail row.
	ProductCode bigquery.NullString `bigquery:"product_code"`
	GroupCode   bigquery.NullString `bigquery:"group_code"`
	Qty         *big.Rat            `bigquery:"qty"`
	Value       *big.Rat            `bigquery:"value"`
	StdPts      *big.Rat            `bigquery:"std_pts"`
	BonusPts    *big.Rat            `bigquery:"bonus_pts"`
}

func (r *lineRow) toDomain() domain.TransactionLine {
	return domain.TransactionLine{
		PartitionDate:    r.PartitionDate,
		TransactionID:    r.TransactionID,
		CardNo:           r.CardNo.StringVal,
		TerminalID:       r.TerminalID.StringVal,
		TransactionDate:  dateTime(r.TransactionDate),
		TotalTxnValue:    nullDecimal(r.TotalTxnValue),
		StdPointsValue:   nullDecimal(r.StdPointsValue),
		BonusPointsValue: nullDecimal(r.BonusPointsValue),
		Source:           r.Source.StringVal,
		MerchRef:         r.MerchRef.StringVal,
		StatementID:      r.StatementID.StringVal,
		Name:             r.Name.StringVal,
		CardType:         r.CardType.StringVal,
		FormOfPmt:        r.FormOfPmt.StringVal,
		TxTypeCode:       r.TxTypeCode.StringVal,
		ProductCode:      r.ProductCode.StringVal,
		GroupCode:        r.GroupCode.StringVal,
		Qty:              nullDecimal(r.Qty),
		Value:            nullDecimal(r.Value),
		StdPts:           nullDecimal(r.StdPts),
		BonusPts:         nullDecimal(r.BonusPts),
	}
}

type boundsRow struct {
	MinID bigquery.NullInt64 `bigquery:"min_id"`
	MaxID bigquery.NullInt64 `bigquery:"max_id"`
}

type groupCodeRow struct {
	GroupCode   bigquery.NullString `bigquery:"group_code"`
	Category    bigquery.NullString `bigquery:"category"`
	SubCategory bigquery.NullString `bigquery:"sub_category"`
	ProductType bigquery.NullString `bigquery:"product_type"`
}

func (r *groupCodeRow) toReference() reference.GroupCodeRow {
	return reference.GroupCodeRow{
		GroupCode:   r.GroupCode.StringVal,
		Category:    r.Category.StringVal,
		SubCategory: r.SubCategory.StringVal,
		ProductType: r.ProductType.StringVal,
	}
}

type outletRow struct {
	TerminalID      bigquery.NullString  `bigquery:"terminal_id"`
	OutletID        bigquery.NullString  `bigquery:"outlet_id"`
	OutletName      bigquery.NullString  `bigquery:"outlet_name"`
	ParticipantID   bigquery.NullString  `bigquery:"participant_id"`
	ParticipantName bigquery.NullString  `bigquery:"participant_name"`
	Latitude        bigquery.NullFloat64 `bigquery:"latitude"`
	Longitude       bigquery.NullFloat64 `bigquery:"longitude"`
}

func (r *outletRow) toDomain() domain.Outlet {
	return domain.Outlet{
		TerminalID:      r.TerminalID.StringVal,
		OutletID:        r.OutletID.StringVal,
		OutletName:      r.OutletName.StringVal,
		ParticipantID:   r.ParticipantID.StringVal,
		ParticipantName: r.ParticipantName.StringVal,
		Latitude:        r.Latitude.Float64,
		Longitude:       r.Longitude.Float64,
	}
}

type contactRow struct {
	CardNo bigquery.NullString `bigquery:"card_no"`
	Email  bigquery.NullString `bigquery:"email"`
	Mobile bigquery.NullString `bigquery:"mobile"`
}

func (r *contactRow) toReference() reference.ContactRow {
	return reference.ContactRow{
		CardNo: r.CardNo.StringVal,
		Email:  r.Email.StringVal,
		Mobile: r.Mobile.StringVal,
	}
}

type newMemberRow struct {
	TransactionID    int64                 `bigquery:"transaction_id"`
	CardNo           bigquery.NullString   `bigquery:"card_no"`
	TotalTxnValue    *big.Rat              `bigquery:"total_txn_value"`
	TransactionDate  bigquery.NullDateTime `bigquery:"transaction_date"`
	RegistrationDate bigquery.NullDateTime `bigquery:"registration_date"`
	AppInstallDate   bigquery.NullDateTime `bigquery:"app_install_date"`
	AppDayDiff       bigquery.NullInt64    `bigquery:"app_day_diff"`
	MemberDayDiff    bigquery.NullInt64    `bigquery:"member_day_diff"`
	Mobile           bigquery.NullString   `bigquery:"mobile"`
	MobileOriginal   bigquery.NullString   `bigquery:"mobile_original"`
	Name             bigquery.NullString   `bigquery:"name"`
	Email            bigquery.NullString   `bigquery:"email"`
	PartitionDate    civil.Date            `bigquery:"partition_dt"`
}

func (r *newMemberRow) toDomain() domain.NewMemberTransaction {
	return domain.NewMemberTransaction{
		TransactionID:    r.TransactionID,
		CardNo:           r.CardNo.StringVal,
		TotalTxnValue:    nullDecimal(r.TotalTxnValue),
		TransactionDate:  dateTime(r.TransactionDate),
		RegistrationDate: dateTime(r.RegistrationDate),
		AppInstallDate:   dateTime(r.AppInstallDate),
		AppDayDiff:       r.AppDayDiff.Int64,
		MemberDayDiff:    r.MemberDayDiff.Int64,
		Mobile:           r.Mobile.StringVal,
		MobileOriginal:   r.MobileOriginal.StringVal,
		Name:             r.Name.StringVal,
		Email:            r.Email.StringVal,
		PartitionDate:    r.PartitionDate,
	}
}

// nullDecimal converts a NULLABLE NUMERIC. NUMERIC values are exact at nine
// fractional digits.
func nullDecimal(r *big.Rat) decimal.NullDecimal {
	if r == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromBigRat(r, numericScale))
}

// dateTime reads a DATETIME as UTC wall-clock time. NULL is the zero time.
func dateTime(v bigquery.NullDateTime) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return v.DateTime.In(time.UTC)
}
