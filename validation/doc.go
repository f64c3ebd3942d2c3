// Package validation validates configuration and caller input and reports
// failures as *errors.AppError values carrying per-field details.
//
// # Struct Tag Validation
//
//	type Config struct {
//	    Concurrency int `yaml:"concurrency" validate:"gte=1,lte=1024"`
//	}
//	err := validation.Validate(cfg)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Range("pages", pages, 1, 1000).OptionalUUID("run_id", runID)
//	if err := v.Err(); err != nil { ... }
//
// Struct merges the struct-tag rules of a value into the same report.
package validation
