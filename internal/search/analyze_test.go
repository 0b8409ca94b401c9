package search

import (
	"testing"

	"partlogic/searchservice/internal/domain"
)

func TestAnalyzeQuery_PartNumber(t *testing.T) {
	analysis := AnalyzeQuery("11427566327")
	if analysis.QueryType != domain.QueryTypePartNumber {
		t.Fatalf("expected part_number query type, got %s", analysis.QueryType)
	}
	if len(analysis.PartNumbers) != 1 || analysis.PartNumbers[0] != "11427566327" {
		t.Fatalf("expected extracted part number, got %v", analysis.PartNumbers)
	}
	if analysis.Vehicle != nil {
		t.Fatalf("expected no vehicle hint, got %+v", analysis.Vehicle)
	}
}

func TestAnalyzeQuery_PartNumberWithPrefix(t *testing.T) {
	analysis := AnalyzeQuery("OEM 11427566327")
	if analysis.QueryType != domain.QueryTypePartNumber {
		t.Fatalf("expected part_number query type, got %s", analysis.QueryType)
	}
}

func TestAnalyzeQuery_VehiclePart(t *testing.T) {
	analysis := AnalyzeQuery("2015 Honda Civic brake pads")
	if analysis.QueryType != domain.QueryTypeVehiclePart {
		t.Fatalf("expected vehicle_part query type, got %s", analysis.QueryType)
	}
	if analysis.Vehicle == nil {
		t.Fatal("expected vehicle hint")
	}
	if analysis.Vehicle.Year != 2015 {
		t.Errorf("year = %d, want 2015", analysis.Vehicle.Year)
	}
	if analysis.Vehicle.Make != "Honda" {
		t.Errorf("make = %q, want Honda", analysis.Vehicle.Make)
	}
	if analysis.Vehicle.Model != "Civic" {
		t.Errorf("model = %q, want Civic", analysis.Vehicle.Model)
	}
	if analysis.PartDescription != "brake pads" {
		t.Errorf("part description = %q, want %q", analysis.PartDescription, "brake pads")
	}
}

func TestAnalyzeQuery_VehicleWithoutYear(t *testing.T) {
	analysis := AnalyzeQuery("Honda Civic window regulator")
	if analysis.QueryType != domain.QueryTypeVehiclePart {
		t.Fatalf("expected vehicle_part query type, got %s", analysis.QueryType)
	}
	if analysis.Vehicle == nil || analysis.Vehicle.Make != "Honda" || analysis.Vehicle.Model != "Civic" {
		t.Fatalf("unexpected vehicle hint %+v", analysis.Vehicle)
	}
	if analysis.Vehicle.Year != 0 {
		t.Errorf("year = %d, want 0", analysis.Vehicle.Year)
	}
}

func TestAnalyzeQuery_MultiWordMake(t *testing.T) {
	analysis := AnalyzeQuery("2004 Land Rover Discovery thermostat")
	if analysis.Vehicle == nil {
		t.Fatal("expected vehicle hint")
	}
	if analysis.Vehicle.Make != "Land Rover" {
		t.Errorf("make = %q, want %q", analysis.Vehicle.Make, "Land Rover")
	}
	if analysis.Vehicle.Model != "Discovery" {
		t.Errorf("model = %q, want Discovery", analysis.Vehicle.Model)
	}
}

func TestAnalyzeQuery_MakeAliases(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"2010 vw jetta alternator", "Volkswagen"},
		{"2008 chevy silverado starter", "Chevrolet"},
		{"2016 mercedes c300 air filter", "Mercedes-Benz"},
	}
	for _, tt := range tests {
		analysis := AnalyzeQuery(tt.query)
		if analysis.Vehicle == nil {
			t.Errorf("AnalyzeQuery(%q): expected vehicle hint", tt.query)
			continue
		}
		if analysis.Vehicle.Make != tt.want {
			t.Errorf("AnalyzeQuery(%q): make = %q, want %q", tt.query, analysis.Vehicle.Make, tt.want)
		}
	}
}

func TestAnalyzeQuery_Keywords(t *testing.T) {
	analysis := AnalyzeQuery("oil filter")
	if analysis.QueryType != domain.QueryTypeKeywords {
		t.Fatalf("expected keywords query type, got %s", analysis.QueryType)
	}
	if analysis.PartDescription != "oil filter" {
		t.Errorf("part description = %q, want %q", analysis.PartDescription, "oil filter")
	}
}

func TestAnalyzeQuery_PartNumberWithDescription(t *testing.T) {
	// A real part number plus descriptive words is still a part number
	// query; only the number routes the search.
	analysis := AnalyzeQuery("brake rotor 34116794300")
	if analysis.QueryType != domain.QueryTypePartNumber {
		t.Fatalf("expected part_number query type, got %s", analysis.QueryType)
	}
	if len(analysis.PartNumbers) != 1 || analysis.PartNumbers[0] != "34116794300" {
		t.Fatalf("unexpected part numbers %v", analysis.PartNumbers)
	}
}
