package ingest

import (
	"testing"

	"go.uber.org/goleak"
)

// The pipeline fans embedding work out to goroutines; every test run
// must end with all of them joined.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
