package ir

// Version constants for the plan format and the translator.
const (
	// PlanVersion is the canonical plan schema version. Bump it when the
	// shape emitted by queryir.CompiledStatement.Plan changes.
	PlanVersion = "1"

	// TranslatorVersion is the sqlrest release version.
	TranslatorVersion = "0.3.0"
)
