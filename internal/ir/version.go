package ir

// Version constants for the text format and the engine.
const (
	// Magic is the format marker on the first line of every graph or pattern.
	Magic = "7767517"

	// EngineVersion is the rewrite engine version.
	EngineVersion = "0.1.0"
)
