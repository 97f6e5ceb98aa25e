package winnow_test

import (
	"context"
	"fmt"
	"log"

	"github.com/iron-birch/winnow/pkg/winnow"
)

func Example() {
	w, err := winnow.New(winnow.WithTopK(3))
	if err != nil {
		log.Fatal(err)
	}

	records := []map[string]any{
		{"timestamp": 1700000000, "service_name": "cart-service", "level": "ERROR", "message": "cart lookup failed for user 4001"},
		{"timestamp": 1700000001, "service_name": "cart-service", "level": "ERROR", "message": "cart lookup failed for user 4002"},
		{"timestamp": 1700000002, "service_name": "checkout-service", "level": "INFO", "message": "checkout flow completed"},
	}

	report, err := w.Reduce(context.Background(), records, "cart service is crashing")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%d of %d records survived\n", report.SurvivingRecords, report.TotalRecords)
	fmt.Printf("windows: %d\n", len(report.Windows))
	// Output:
	// 2 of 3 records survived
	// windows: 1
}
