package domain

// GroupCode describes a product group code.
type GroupCode struct {
	Code        int64
	Category    string
	SubCategory string
	ProductType string
}

// Contact holds the contact details registered for a card. Empty strings mean
// the value is unknown.
type Contact struct {
	CardNo int64
	Email  string
	Mobile string
}

// Outlet is the location of the outlet a terminal belongs to.
type Outlet struct {
	TerminalID      string
	OutletID        string
	OutletName      string
	ParticipantID   string
	ParticipantName string
	Latitude        float64
	Longitude       float64
}
