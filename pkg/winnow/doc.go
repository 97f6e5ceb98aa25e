// Package winnow reduces large structured log batches to the few windows
// relevant to a plain-language query, sized for handoff to a language model
// or a human reviewer.
//
// Quick start:
//
//	w, err := winnow.New(winnow.WithTopK(5))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := w.ReduceFile(ctx, "logs.ndjson", "cart service is crashing")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d of %d records survived\n", report.SurvivingRecords, report.TotalRecords)
//
// A Winnow instance is safe for concurrent use. Create once, reuse across
// requests. See the README for full documentation.
package winnow
