package types

// Version is the canonical xrayview version.
// The CLI, journal header and archive records all report this value.
const Version = "0.3.0"
