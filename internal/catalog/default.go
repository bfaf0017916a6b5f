package catalog

// Default returns the built-in catalog used when no pattern file is given.
// It covers the Augment extension family, the VS Code telemetry identifier
// fields, trial bookkeeping keys and cached auth tokens.
func Default() *Catalog {
	c, err := New([]Rule{
		// Extension identity: anything the extension wrote under its own name.
		{Scope: ScopeBoth, Match: MatchSubstring, Text: "augment", Category: CategoryExtension},
		{Scope: ScopeKey, Match: MatchPrefix, Text: "augment.", Category: CategoryExtension},
		{Scope: ScopeBoth, Match: MatchSubstring, Text: "context7", Category: CategoryExtension},
		{Scope: ScopeKey, Match: MatchPrefix, Text: "context7.", Category: CategoryExtension},

		// Telemetry identifiers. Key-scoped so unrelated values that merely
		// mention "telemetry" are left alone.
		{Scope: ScopeKey, Match: MatchPrefix, Text: "telemetry.", Category: CategoryTelemetry},
		{Scope: ScopeKey, Match: MatchSubstring, Text: "machineid", Category: CategoryTelemetry},
		{Scope: ScopeKey, Match: MatchSubstring, Text: "devdeviceid", Category: CategoryTelemetry},
		{Scope: ScopeKey, Match: MatchSubstring, Text: "sqmid", Category: CategoryTelemetry},
		{Scope: ScopeKey, Match: MatchLike, Text: "%telemetry%sessionid%", Category: CategoryTelemetry},
		{Scope: ScopeKey, Match: MatchLike, Text: "%telemetry%instanceid%", Category: CategoryTelemetry},

		// Trial and license bookkeeping.
		{Scope: ScopeKey, Match: MatchSubstring, Text: "trial", Category: CategoryTrial},
		{Scope: ScopeKey, Match: MatchSubstring, Text: "license", Category: CategoryTrial},

		// Cached credentials.
		{Scope: ScopeKey, Match: MatchPrefix, Text: "cursorauth/", Category: CategoryAuth},
		{Scope: ScopeKey, Match: MatchSubstring, Text: "accesstoken", Category: CategoryAuth},
		{Scope: ScopeKey, Match: MatchSubstring, Text: "refreshtoken", Category: CategoryAuth},
	})
	if err != nil {
		// The built-in rules are validated by tests; reaching this is a bug.
		panic(err)
	}
	return c
}
