package warehouse

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/points-exporter/internal/domain"
	"github.com/dvloznov/points-exporter/internal/reference"
)

// ListGroupCodes returns the group code snapshot of asOf.
func (c *Client) ListGroupCodes(ctx context.Context, asOf civil.Date) ([]reference.GroupCodeRow, error) {
	stmt, err := buildGroupCodeQuery(tablesFrom(c.cfg), asOf)
	if err != nil {
		return nil, fmt.Errorf("ListGroupCodes: %w", err)
	}
	rows, err := readAll[groupCodeRow](ctx, c, "ListGroupCodes", stmt)
	if err != nil {
		return nil, err
	}

	out := make([]reference.GroupCodeRow, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toReference())
	}
	return out, nil
}

// ListOutlets returns terminals with their outlet, participant and
// coordinates. Excluded terminals are filtered out.
func (c *Client) ListOutlets(ctx context.Context, asOf civil.Date) ([]domain.Outlet, error) {
	stmt, err := buildOutletQuery(tablesFrom(c.cfg), asOf)
	if err != nil {
		return nil, fmt.Errorf("ListOutlets: %w", err)
	}
	rows, err := readAll[outletRow](ctx, c, "ListOutlets", stmt)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Outlet, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// ListContacts returns contacts that have an email or a mobile number.
func (c *Client) ListContacts(ctx context.Context, asOf civil.Date) ([]reference.ContactRow, error) {
	stmt, err := buildContactQuery(tablesFrom(c.cfg), asOf)
	if err != nil {
		return nil, fmt.Errorf("ListContacts: %w", err)
	}
	rows, err := readAll[contactRow](ctx, c, "ListContacts", stmt)
	if err != nil {
		return nil, err
	}

	out := make([]reference.ContactRow, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toReference())
	}
	return out, nil
}

var _ reference.Source = (*Client)(nil)
