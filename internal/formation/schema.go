package formation

// Level is the organizational tier a node label or link type belongs to.
type Level string

const (
	LevelPersonal       Level = "n1"
	LevelOrganizational Level = "n2"
	LevelEcosystem      Level = "n3"
	LevelShared         Level = "shared"
)

// nodeLabels is the closed set of node types the substrate recognizes,
// organized by level. A formation whose type is absent from this set is
// rejected with a QA task rather than written.
var nodeLabels = map[string]Level{
	// n1 — personal.
	"Realization":     LevelPersonal,
	"Personal_Pattern": LevelPersonal,
	"Struggle":         LevelPersonal,
	"Goal":             LevelPersonal,
	"Memory":           LevelPersonal,
	"Habit":            LevelPersonal,
	"Value":            LevelPersonal,
	"Fear":             LevelPersonal,
	"Aspiration":       LevelPersonal,
	"Relationship":     LevelPersonal,

	// n2 — organizational.
	"Principle":     LevelOrganizational,
	"Process":       LevelOrganizational,
	"Decision":      LevelOrganizational,
	"Role":          LevelOrganizational,
	"Collaboration": LevelOrganizational,
	"Policy":        LevelOrganizational,
	"Initiative":    LevelOrganizational,
	"Milestone":     LevelOrganizational,
	"Team":          LevelOrganizational,
	"Ritual":        LevelOrganizational,

	// n3 — ecosystem.
	"Mechanism":   LevelEcosystem,
	"Convention":  LevelEcosystem,
	"Trend":       LevelEcosystem,
	"Standard":    LevelEcosystem,
	"Institution": LevelEcosystem,
	"Market":      LevelEcosystem,
	"Protocol":    LevelEcosystem,
	"Movement":    LevelEcosystem,

	// shared.
	"Concept":     LevelShared,
	"Entity":      LevelShared,
	"Event":       LevelShared,
	"Artifact":    LevelShared,
	"Source":      LevelShared,
	"Location":    LevelShared,
	"Question":    LevelShared,
	"Risk":        LevelShared,
	"Opportunity": LevelShared,
	"SubEntity":   LevelShared,
}

// IsKnownNodeLabel reports whether label is part of the closed node schema.
func IsKnownNodeLabel(label string) bool {
	_, ok := nodeLabels[label]
	return ok
}

// typeDescriptionField maps a node type to the type-specific field that
// plays the role of its "description" when the generic field is absent (and
// vice versa) — e.g. a Realization's "insight" field doubles as its
// description.
var typeDescriptionField = map[string]string{
	"Realization":     "insight",
	"Personal_Pattern": "trigger",
	"Struggle":         "struggle",
	"Goal":             "goal",
	"Decision":         "rationale",
	"Principle":        "rationale",
	"Mechanism":        "how_it_works",
}

// linkContracts is the closed set of link types and the meta fields their
// contract requires. A link missing required fields is still created; it
// additionally produces an incomplete_metadata QA task.
var linkContracts = map[string][]string{
	"SUPPORTS":        {"since"},
	"CONTRADICTS":     {"since"},
	"CAUSES":          {"strength"},
	"MEMBER_OF":       {"weight", "role"},
	"COACTIVATES_WITH": {"both_ema", "either_ema"},
	"RELATES_TO":      {},
	"DERIVED_FROM":    {"since"},
	"PART_OF":         {},
	"PRECEDES":        {"since"},
	"INFORMS":         {"strength"},
	"CONFLICTS_WITH":  {"since"},
	"DEPENDS_ON":      {"strength"},
	"EXEMPLIFIES":     {},
	"MOTIVATES":       {"strength"},
	"RESOLVES":        {"since"},
	"TRIGGERS":        {"strength"},
	"OWNS":            {"since"},
	"PARTICIPATES_IN": {"role"},
	"GOVERNS":         {"since"},
	"REFERENCES":      {},
}

// IsKnownLinkType reports whether typ is part of the closed link schema.
func IsKnownLinkType(typ string) bool {
	_, ok := linkContracts[typ]
	return ok
}

// RequiredLinkFields returns the meta fields typ's contract requires. The
// bool is false if typ is unknown.
func RequiredLinkFields(typ string) ([]string, bool) {
	fields, ok := linkContracts[typ]
	return fields, ok
}

// MissingLinkFields returns which of typ's required meta fields are absent
// or empty in meta.
func MissingLinkFields(typ string, meta map[string]string) []string {
	required, ok := RequiredLinkFields(typ)
	if !ok {
		return nil
	}
	var missing []string
	for _, f := range required {
		if v, present := meta[f]; !present || v == "" {
			missing = append(missing, f)
		}
	}
	return missing
}
