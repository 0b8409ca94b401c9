package domain

import "time"

type Vehicle struct {
	ID        int64     `json:"id"`
	Make      string    `json:"make"`
	Model     string    `json:"model"`
	Year      int       `json:"year"`
	Trim      string    `json:"trim,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// VehicleConfig narrows a vehicle row to one build configuration:
// engine, transmission, drivetrain, body. Aliases and fitments may
// reference a config when the source data is that specific.
type VehicleConfig struct {
	ID               int64     `json:"id"`
	VehicleID        int64     `json:"vehicleId"`
	EngineCode       string    `json:"engineCode,omitempty"`
	DisplacementL    float64   `json:"displacementL,omitempty"`
	Aspiration       string    `json:"aspiration,omitempty"`
	TransmissionCode string    `json:"transmissionCode,omitempty"`
	Drivetrain       string    `json:"drivetrain,omitempty"`
	Doors            int       `json:"doors,omitempty"`
	VINPattern       string    `json:"vinPattern,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// VehicleAlias records one raw vehicle string as seen on a source.
// AliasText is write-once; VehicleID only ever moves from unset to set.
type VehicleAlias struct {
	ID           int64     `json:"id"`
	AliasText    string    `json:"aliasText"`
	AliasNorm    string    `json:"aliasNorm"`
	SourceDomain string    `json:"sourceDomain"`
	VehicleID    *int64    `json:"vehicleId,omitempty"`
	ConfigID     *int64    `json:"configId,omitempty"`
	Confidence   int       `json:"confidence"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (a VehicleAlias) Linked() bool {
	return a.VehicleID != nil
}

type AliasResolution struct {
	Alias      VehicleAlias `json:"alias"`
	Vehicle    *Vehicle     `json:"vehicle,omitempty"`
	ConfigID   *int64       `json:"configId,omitempty"`
	Created    bool         `json:"created"`
	LinkedNow  bool         `json:"linkedNow"`
	Confidence int          `json:"confidence"`
}

const (
	PartTypeOEM         = "oem"
	PartTypeAftermarket = "aftermarket"
	PartTypeUsed        = "used"
	PartTypeUniversal   = "universal"
)

type Part struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	PartType    string `json:"partType"`
	Brand       string `json:"brand,omitempty"`
}

type PartNumber struct {
	ID        int64  `json:"id"`
	PartID    int64  `json:"partId"`
	Namespace string `json:"namespace"`
	Value     string `json:"value"`
	ValueNorm string `json:"valueNorm"`
}

const (
	FitmentConfirmed = "confirmed_fit"
	FitmentLikely    = "likely_fit"
	FitmentNoData    = "no_data"
)

type Fitment struct {
	ID           int64  `json:"id"`
	PartNumberID int64  `json:"partNumberId"`
	VehicleID    int64  `json:"vehicleId"`
	ConfigID     *int64 `json:"configId,omitempty"`
	Qualifiers   string `json:"qualifiers,omitempty"`
	Confidence   int    `json:"confidence"`
	Source       string `json:"source,omitempty"`
}

type FitmentCheck struct {
	Status     string    `json:"status"`
	Confidence int       `json:"confidence,omitempty"`
	Qualifiers []string  `json:"qualifiers,omitempty"`
	Fitments   []Fitment `json:"fitments,omitempty"`
}

type SearchHistoryEntry struct {
	ID          int64     `json:"id"`
	Query       string    `json:"query"`
	QueryType   QueryType `json:"queryType"`
	ResultCount int       `json:"resultCount"`
	VehicleID   *int64    `json:"vehicleId,omitempty"`
	ConfigID    *int64    `json:"configId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type PriceSnapshot struct {
	ID         int64     `json:"id"`
	PartNumber string    `json:"partNumber"`
	Brand      string    `json:"brand,omitempty"`
	Source     string    `json:"source"`
	Price      float64   `json:"price"`
	Shipping   float64   `json:"shipping,omitempty"`
	Condition  string    `json:"condition,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

type SavedSearch struct {
	ID        string     `json:"id"`
	Query     string     `json:"query"`
	Sort      SearchSort `json:"sort,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// PriceAlert fires once when the lowest recent snapshot for a part
// number drops to or below the target price.
type PriceAlert struct {
	ID            int64      `json:"id"`
	SavedSearchID string     `json:"savedSearchId,omitempty"`
	PartNumber    string     `json:"partNumber"`
	Brand         string     `json:"brand,omitempty"`
	TargetPrice   float64    `json:"targetPrice"`
	CurrentLowest *float64   `json:"currentLowest,omitempty"`
	Triggered     bool       `json:"triggered"`
	TriggeredAt   *time.Time `json:"triggeredAt,omitempty"`
	Source        string     `json:"source,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}
