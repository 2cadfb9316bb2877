// Package testutil provides common constants and utilities for tests
package testutil

const (
	// TestThreshold is the suppression threshold used by most fixtures
	TestThreshold = 6

	// TestLargeRowCount is enough geoids to exercise parallel suppression
	TestLargeRowCount = 2000
)

// Common test strings
const (
	TestTable             = "b01992"
	TestEditionName       = "2023"
	TestCategory          = "housing"
	TestDescription       = "Residential parcels by property class"
	TestDescriptionSimple = "Parcels"
	TestUniverse          = "Residential parcels"
	TestSubjectArea       = "Housing"
	TestSourceDB          = "edw"
	TestSourceSchema      = "hip"
)
