package models

// OverallKey is the aggregate entry of an AccuracyReport.
const OverallKey = "overall"

// Accuracy holds percentage figures rounded to two decimals.
type Accuracy struct {
	Accuracy  float64 `json:"accuracy"`
	ErrorRate float64 `json:"error_rate"`
	Size      int     `json:"size"`
}

// AccuracyReport maps each domain name, plus OverallKey, to its figures.
type AccuracyReport map[string]Accuracy
