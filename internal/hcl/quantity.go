package hcl

import "regexp"

// Resource quantities are pass-through for the downstream engine, but their
// literal shape is validated here so a typo fails at compile time instead of
// at scheduling time.
var (
	cpuQuantity    = regexp.MustCompile(`^[0-9]+m?$`)
	memoryQuantity = regexp.MustCompile(`^[0-9]+(E|Ei|P|Pi|T|Ti|G|Gi|M|Mi|K|Ki)?$`)
)
